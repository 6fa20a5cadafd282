package signing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

var (
	// ErrNoSignatureConfigured means no signature image was given and the signer has no
	// registered default.
	ErrNoSignatureConfigured = errors.New("no signature configured for signer")
	// ErrAlreadySigned means the signer's slot has already been signed.
	ErrAlreadySigned = errors.New("signature slot already signed")
	// ErrNotEligible means no slot is assigned to, or claimable by, the signer.
	ErrNotEligible = errors.New("signer is not eligible for any signature slot")
	// ErrSlotNotFound means the requested role has no slot on the document.
	ErrSlotNotFound = errors.New("signature slot not found")
	// ErrInvalidGeometry means a signing placement is outside usable bounds.
	ErrInvalidGeometry = errors.New("invalid signature geometry")
	// ErrDraftExists means a different rendered draft is already attached.
	ErrDraftExists = errors.New("document already has a rendered draft")
	// ErrStampInProgress means another caller holds the stamping claim on the document.
	ErrStampInProgress = errors.New("final artifact is already being stamped")
	// ErrConflict means the record kept changing under concurrent updates.
	ErrConflict = errors.New("document modified concurrently, retries exhausted")
)

// WaitingForError rejects an out-of-order signature in a sequential document. Labels
// name the required slots that must be signed first, in signing order.
type WaitingForError struct {
	Labels []string
}

func (e *WaitingForError) Error() string {
	return "waiting for: " + strings.Join(e.Labels, ", ")
}

// StateError rejects an operation that the document's lifecycle status does not allow.
type StateError struct {
	Op     string
	Status models.DocumentStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a document in status %s", e.Op, e.Status)
}
