package server

import (
	"errors"
	"net/http"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/generate"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/signing"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/storage"
)

// statusFor maps library errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation *generate.ValidationError
		waiting    *signing.WaitingForError
		state      *signing.StateError
		structural *docx.StructuralError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, signing.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &structural), errors.Is(err, signing.ErrNoSignatureConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, signing.ErrNotEligible):
		return http.StatusForbidden
	case errors.As(err, &waiting), errors.As(err, &state),
		errors.Is(err, signing.ErrAlreadySigned), errors.Is(err, signing.ErrDraftExists), errors.Is(err, signing.ErrConflict),
		errors.Is(err, signing.ErrStampInProgress),
		errors.Is(err, generate.ErrTemplateInactive), errors.Is(err, generate.ErrNoSource),
		errors.Is(err, storage.ErrExists):
		return http.StatusConflict
	case errors.Is(err, generate.ErrInvalidSignatory), errors.Is(err, signing.ErrInvalidGeometry), errors.Is(err, blob.ErrInvalidRef):
		return http.StatusBadRequest
	case errors.Is(err, generate.ErrRenderPending):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorBody is the JSON error payload. Missing is set for validation failures and Waiting
// for out-of-order signatures.
type errorBody struct {
	Error   string `json:"error"`
	Missing any    `json:"missing,omitempty"`
	Waiting any    `json:"waiting_for,omitempty"`
}

func bodyFor(err error) errorBody {
	out := errorBody{Error: err.Error()}
	var validation *generate.ValidationError
	if errors.As(err, &validation) {
		out.Missing = validation.Report.BySource()
	}
	var waiting *signing.WaitingForError
	if errors.As(err, &waiting) {
		out.Waiting = waiting.Labels
	}
	return out
}
