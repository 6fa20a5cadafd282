// Package render converts filled .docx documents to PDF through an ordered chain of
// conversion strategies, degrading to a pending result when none succeeds.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/docx"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ErrUnavailable is returned by a strategy that cannot run in this environment.
var ErrUnavailable = errors.New("conversion strategy unavailable")

// Strategy converts a .docx container to PDF bytes.
type Strategy interface {
	Name() string
	Convert(ctx context.Context, docx []byte) ([]byte, error)
}

// Result is the outcome of a render. PDF is nil when Status is pending.
type Result struct {
	PDF      []byte
	Status   models.PDFStatus
	Strategy string
}

// Pending reports whether no strategy produced output.
func (r Result) Pending() bool { return r.Status == models.PDFPending }

// Pipeline tries strategies in order; the first verified output wins.
type Pipeline struct {
	strategies []Strategy
	timeout    time.Duration
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTimeout bounds the whole pipeline. A timeout yields a pending result.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithLogger sets the logger used for strategy failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// DefaultTimeout bounds a render when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// NewPipeline returns a pipeline over strategies in priority order.
func NewPipeline(strategies []Strategy, opts ...Option) *Pipeline {
	p := &Pipeline{strategies: strategies, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render converts content. Strategy failures fall through to the next strategy; only an
// unreadable input container is returned as an error.
func (p *Pipeline) Render(ctx context.Context, content []byte) (Result, error) {
	if _, err := docx.Open(content); err != nil {
		return Result{}, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	for _, s := range p.strategies {
		if ctx.Err() != nil {
			p.logger.Warn("render timed out", zap.Duration("timeout", p.timeout))
			break
		}
		start := time.Now()
		out, err := s.Convert(ctx, content)
		if err == nil {
			err = Verify(out)
		}
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				p.logger.Debug("strategy unavailable", zap.String("strategy", s.Name()))
			} else {
				p.logger.Warn("strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			}
			continue
		}
		p.logger.Info("document rendered",
			zap.String("strategy", s.Name()),
			zap.Int("bytes", len(out)),
			zap.Duration("took", time.Since(start)),
		)
		return Result{PDF: out, Status: models.PDFCompleted, Strategy: s.Name()}, nil
	}
	return Result{Status: models.PDFPending}, nil
}

// Verify checks that b is a readable PDF with at least one page.
func Verify(b []byte) (err error) {
	if len(b) == 0 {
		return fmt.Errorf("empty output")
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return fmt.Errorf("open PDF: %w", err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("PDF has no pages")
	}
	return nil
}
