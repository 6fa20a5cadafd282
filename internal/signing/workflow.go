// Package signing runs the multi-party signature workflow of a document record: slot
// eligibility, the sequential ordering gate, completion and exactly-once stamping.
package signing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
	"go.uber.org/zap"
)

// Repository is the persistence the workflow needs.
type Repository interface {
	GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	SwapDocument(ctx context.Context, doc *models.DocumentRecord, expectedVersion int64) (bool, error)
}

// SignatureRegistry returns a signer's registered default signature image.
type SignatureRegistry interface {
	DefaultSignature(ctx context.Context, signerID string) (string, error)
}

// Stamper produces the final artifact of a completed document. It returns "" without
// error when the document has no draft yet.
type Stamper interface {
	Stamp(ctx context.Context, doc *models.DocumentRecord) (string, error)
}

// Signer identifies who is signing. Roles are the authorities the signer holds.
type Signer struct {
	ID    string
	Name  string
	Roles []string
}

// HasRole reports whether the signer holds role.
func (s Signer) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SignRequest is one signature event.
type SignRequest struct {
	DocumentID string
	Signer     Signer
	// SignatureRef is the signature image blob; empty uses the signer's default.
	SignatureRef string
	// Geometry overrides the slot placement when set.
	Geometry *models.Geometry
	// Role selects a slot when the signer is eligible for several.
	Role string
}

// Workflow applies signature events to document records with compare-and-set updates.
type Workflow struct {
	repo        Repository
	stamper     Stamper
	registry    SignatureRegistry
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
	stampLease  time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

func WithLogger(l *zap.Logger) Option { return func(w *Workflow) { w.logger = l } }

// WithRegistry enables the default-signature fallback.
func WithRegistry(r SignatureRegistry) Option { return func(w *Workflow) { w.registry = r } }

func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }

// WithStampLease sets how long a stamping claim blocks other stampers. An expired claim
// is taken over, so a crashed stamper does not block retries forever.
func WithStampLease(d time.Duration) Option { return func(w *Workflow) { w.stampLease = d } }

// WithMaxAttempts bounds compare-and-set retries per operation.
func WithMaxAttempts(n int) Option { return func(w *Workflow) { w.maxAttempts = n } }

// NewWorkflow returns a workflow over repo. stamper may be nil when final artifacts are
// produced elsewhere.
func NewWorkflow(repo Repository, stamper Stamper, opts ...Option) *Workflow {
	w := &Workflow{
		repo:        repo,
		stamper:     stamper,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: 16,
		stampLease:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// errUnchanged lets a mutation skip the write.
var errUnchanged = errors.New("unchanged")

// update reloads the record, applies mutate to a copy and swaps it in, retrying on a
// lost race. mutate runs again on every attempt against fresh state.
func (w *Workflow) update(ctx context.Context, id string, mutate func(cur, next *models.DocumentRecord) error) (*models.DocumentRecord, error) {
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		cur, err := w.repo.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		next := cur.Clone()
		if err := mutate(cur, next); err != nil {
			if errors.Is(err, errUnchanged) {
				return cur, nil
			}
			return nil, err
		}
		swapped, err := w.repo.SwapDocument(ctx, next, cur.GetVersion())
		if err != nil {
			return nil, fmt.Errorf("failed to update document: %w", err)
		}
		if swapped {
			return next, nil
		}
		w.logger.Debug("document changed concurrently, retrying",
			zap.String("document_id", id), zap.Int("attempt", attempt))
	}
	return nil, ErrConflict
}

// Sign records one signature. When it completes the last required slot, the caller that
// wins that transition stamps the final artifact before returning.
func (w *Workflow) Sign(ctx context.Context, req SignRequest) (*models.DocumentRecord, error) {
	if req.Geometry != nil {
		if err := validGeometry(*req.Geometry); err != nil {
			return nil, err
		}
	}
	ref, err := w.signatureRef(ctx, req)
	if err != nil {
		return nil, err
	}

	var completed bool
	var slotLabel string
	doc, err := w.update(ctx, req.DocumentID, func(cur, next *models.DocumentRecord) error {
		completed = false
		idx, err := selectSlot(cur, req.Signer, req.Role)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return &StateError{Op: "sign", Status: cur.Status}
		}
		if cur.Sequential {
			if labels := waitingFor(cur, idx); len(labels) > 0 {
				return &WaitingForError{Labels: labels}
			}
		}

		now := w.now()
		slot := &next.Slots[idx]
		slot.Status = models.SlotSigned
		slot.SignerID = req.Signer.ID
		slot.SignerName = req.Signer.Name
		if slot.SignerName == "" {
			slot.SignerName = req.Signer.ID
		}
		slot.SignatureRef = ref
		slot.SignedAt = &now
		if req.Geometry != nil {
			slot.Geometry = *req.Geometry
		}
		slotLabel = slot.Label

		if next.Status == models.DocumentDraft {
			next.Status = models.DocumentPendingSignatures
		}
		if next.RequiredSigned() {
			next.Status = models.DocumentCompleted
			next.CompletedAt = &now
			completed = true
		}
		next.Touch(now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("document signed",
		zap.String("document_id", doc.ID),
		zap.String("slot", slotLabel),
		zap.String("signer_id", req.Signer.ID),
	)
	if !completed {
		return doc, nil
	}
	w.logger.Info("document completed", zap.String("document_id", doc.ID))
	return w.stampOrKeep(ctx, doc)
}

func (w *Workflow) signatureRef(ctx context.Context, req SignRequest) (string, error) {
	if req.SignatureRef != "" {
		return req.SignatureRef, nil
	}
	if w.registry == nil {
		return "", ErrNoSignatureConfigured
	}
	ref, err := w.registry.DefaultSignature(ctx, req.Signer.ID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && ref == "") {
		return "", ErrNoSignatureConfigured
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up default signature: %w", err)
	}
	return ref, nil
}

// selectSlot returns the index of the slot the signer acts on: the first pending eligible
// slot in signing order. A signer whose eligible slots are all signed gets
// ErrAlreadySigned.
func selectSlot(doc *models.DocumentRecord, signer Signer, role string) (int, error) {
	order := signingOrder(doc)
	roleFound := role == ""
	signed := false
	for _, i := range order {
		s := &doc.Slots[i]
		if role != "" {
			if s.Role != role {
				continue
			}
			roleFound = true
		}
		if !eligible(s, signer) {
			continue
		}
		if s.Signed() {
			signed = true
			continue
		}
		return i, nil
	}
	switch {
	case !roleFound:
		return -1, fmt.Errorf("%w: role %q", ErrSlotNotFound, role)
	case signed:
		return -1, ErrAlreadySigned
	}
	return -1, ErrNotEligible
}

// eligible reports whether signer may act on s. Pre-assigned slots accept only their
// assignee; unassigned slots accept any holder of the claim role. A signed claim slot
// stays eligible for everyone holding the role so a racing claimant sees it as signed.
func eligible(s *models.SignatureSlot, signer Signer) bool {
	if s.AssigneeID != "" {
		return s.AssigneeID == signer.ID
	}
	return s.ClaimRole != "" && signer.HasRole(s.ClaimRole)
}

// signingOrder returns slot indexes by position, ties broken by insertion order.
func signingOrder(doc *models.DocumentRecord) []int {
	order := make([]int, len(doc.Slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return doc.Slots[order[a]].Position < doc.Slots[order[b]].Position
	})
	return order
}

// waitingFor lists the labels of unsigned required slots at a strictly lower position
// than slot idx. Optional slots never block.
func waitingFor(doc *models.DocumentRecord, idx int) []string {
	pos := doc.Slots[idx].Position
	var labels []string
	for _, i := range signingOrder(doc) {
		s := &doc.Slots[i]
		if s.Position >= pos {
			break
		}
		if s.Required && !s.Signed() {
			labels = append(labels, s.Label)
		}
	}
	return labels
}

func validGeometry(g models.Geometry) error {
	switch {
	case g.Page < 1:
		return fmt.Errorf("%w: page %d", ErrInvalidGeometry, g.Page)
	case g.Width <= 0 || g.Height <= 0:
		return fmt.Errorf("%w: size %.1fx%.1f", ErrInvalidGeometry, g.Width, g.Height)
	case g.X < 0 || g.Y < 0:
		return fmt.Errorf("%w: origin (%.1f, %.1f)", ErrInvalidGeometry, g.X, g.Y)
	}
	return nil
}

// Cancel moves a document that is not completed to cancelled. Signed slots are kept.
// Cancelling a cancelled document is a no-op.
func (w *Workflow) Cancel(ctx context.Context, id string) (*models.DocumentRecord, error) {
	doc, err := w.update(ctx, id, func(cur, next *models.DocumentRecord) error {
		switch cur.Status {
		case models.DocumentCancelled:
			return errUnchanged
		case models.DocumentCompleted:
			return &StateError{Op: "cancel", Status: cur.Status}
		}
		next.Status = models.DocumentCancelled
		next.Touch(w.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.logger.Info("document cancelled", zap.String("document_id", id))
	return doc, nil
}

// AttachDraft records the rendered artifact of a document whose render was pending. If
// the document is already completed, the final artifact is stamped right away.
func (w *Workflow) AttachDraft(ctx context.Context, id, draftRef string) (*models.DocumentRecord, error) {
	doc, err := w.update(ctx, id, func(cur, next *models.DocumentRecord) error {
		if cur.HasDraft() {
			if cur.DraftRef == draftRef {
				return errUnchanged
			}
			return ErrDraftExists
		}
		if cur.Status == models.DocumentCancelled {
			return &StateError{Op: "attach a render to", Status: cur.Status}
		}
		next.DraftRef = draftRef
		next.PDFStatus = models.PDFCompleted
		next.Touch(w.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.logger.Info("draft attached", zap.String("document_id", id), zap.String("draft_ref", draftRef))
	if doc.Status == models.DocumentCompleted && doc.FinalRef == "" {
		return w.stampOrKeep(ctx, doc)
	}
	return doc, nil
}

// RetryStamp stamps a completed document that has no final artifact yet. It returns
// ErrStampInProgress while another caller holds an unexpired stamping claim.
func (w *Workflow) RetryStamp(ctx context.Context, id string) (*models.DocumentRecord, error) {
	doc, err := w.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != models.DocumentCompleted {
		return nil, &StateError{Op: "stamp", Status: doc.Status}
	}
	if doc.FinalRef != "" {
		return doc, nil
	}
	return w.stamp(ctx, doc)
}

// stampOrKeep stamps doc, or returns it as is when a concurrent caller already holds
// the stamping claim.
func (w *Workflow) stampOrKeep(ctx context.Context, doc *models.DocumentRecord) (*models.DocumentRecord, error) {
	stamped, err := w.stamp(ctx, doc)
	if errors.Is(err, ErrStampInProgress) {
		return doc, nil
	}
	return stamped, err
}

// claimStamp marks the document as being stamped. Only the caller whose swap sets the
// marker may run the stamper. claimed is false when nothing is left to stamp.
func (w *Workflow) claimStamp(ctx context.Context, id string) (doc *models.DocumentRecord, claimed bool, err error) {
	doc, err = w.update(ctx, id, func(cur, next *models.DocumentRecord) error {
		claimed = false
		if cur.FinalRef != "" || !cur.HasDraft() {
			return errUnchanged
		}
		now := w.now()
		if cur.StampingSince != nil && now.Sub(*cur.StampingSince) < w.stampLease {
			return ErrStampInProgress
		}
		next.StampingSince = &now
		claimed = true
		return nil
	})
	return doc, claimed, err
}

// stamp produces the final artifact and records it, or records the failure. A stamping
// failure never undoes signatures.
func (w *Workflow) stamp(ctx context.Context, doc *models.DocumentRecord) (*models.DocumentRecord, error) {
	if w.stamper == nil || !doc.HasDraft() {
		return doc, nil
	}
	doc, claimed, err := w.claimStamp(ctx, doc.ID)
	if err != nil || !claimed {
		return doc, err
	}
	ref, stampErr := w.stamper.Stamp(ctx, doc)
	if stampErr != nil {
		w.logger.Error("stamping failed", zap.String("document_id", doc.ID), zap.Error(stampErr))
	}

	updated, err := w.update(ctx, doc.ID, func(cur, next *models.DocumentRecord) error {
		next.StampingSince = nil
		if cur.FinalRef != "" {
			if cur.StampingSince == nil {
				return errUnchanged
			}
			return nil
		}
		switch {
		case stampErr != nil:
			next.StampError = stampErr.Error()
		case ref != "":
			next.FinalRef = ref
			next.StampError = ""
		}
		next.Touch(w.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stampErr == nil && ref != "" {
		w.logger.Info("final artifact stored", zap.String("document_id", doc.ID), zap.String("final_ref", ref))
	}
	return updated, nil
}
