package generate

import (
	"errors"
	"fmt"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/variables"
)

var (
	// ErrTemplateInactive is returned when generating from a template that is not active.
	ErrTemplateInactive = errors.New("template is not active")
	// ErrNoSource is returned when a template has no source document.
	ErrNoSource = errors.New("template has no source document")
	// ErrInvalidSignatory is returned by ConfigureTemplate for an unusable signatory.
	ErrInvalidSignatory = errors.New("invalid signatory")
	// ErrRenderPending is returned when a deferred render still found no converter.
	ErrRenderPending = errors.New("render still pending")
)

// ValidationError reports placeholders that could not be filled. Nothing is generated.
type ValidationError struct {
	Report variables.Report
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing %d field(s): %s", len(e.Report.Missing), e.Report)
}
