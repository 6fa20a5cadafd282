// Package stamp composites signature images and timestamp labels onto a rendered draft
// to produce the final artifact of a completed document.
package stamp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/config"
	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// density is the signature raster resolution in pixels per point.
const density = 2

// fetchLimit bounds concurrent signature image fetches.
const fetchLimit = 4

// BoundsError reports a slot placed outside its page.
type BoundsError struct {
	Label string
	Page  int
	Pages int
	Geom  models.Geometry
	Dim   types.Dim
}

func (e *BoundsError) Error() string {
	if e.Page < 1 || e.Page > e.Pages {
		return fmt.Sprintf("slot %q: page %d out of range (document has %d pages)", e.Label, e.Page, e.Pages)
	}
	return fmt.Sprintf("slot %q: box (%.1f, %.1f, %.1fx%.1f) exceeds page %d (%.1fx%.1f)",
		e.Label, e.Geom.X, e.Geom.Y, e.Geom.Width, e.Geom.Height, e.Page, e.Dim.Width, e.Dim.Height)
}

// Stamper overlays signed slots onto a document's draft PDF.
type Stamper struct {
	blobs  blob.Store
	images ImageProvider
	cfg    config.StampConfig
	loc    *time.Location
	conf   *model.Configuration
	logger *zap.Logger
}

// New returns a stamper reading drafts from and writing final artifacts to blobs.
func New(blobs blob.Store, images ImageProvider, cfg config.StampConfig, logger *zap.Logger) (*Stamper, error) {
	loc := time.UTC
	if cfg.Location != "" {
		l, err := time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid stamp location: %w", err)
		}
		loc = l
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = "02/01/2006 15:04"
	}
	if cfg.LabelPoints == 0 {
		cfg.LabelPoints = 7
	}
	if cfg.Opacity == 0 {
		cfg.Opacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Stamper{blobs: blobs, images: images, cfg: cfg, loc: loc, conf: conf, logger: logger}, nil
}

// Stamp writes the final artifact and returns its reference. It is a no-op returning ""
// when the draft does not exist yet.
func (s *Stamper) Stamp(ctx context.Context, doc *models.DocumentRecord) (string, error) {
	if !doc.HasDraft() {
		return "", nil
	}
	draft, err := s.blobs.Get(ctx, doc.DraftRef)
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	dims, err := api.PageDims(bytes.NewReader(draft), s.conf)
	if err != nil {
		return "", fmt.Errorf("failed to read draft pages: %w", err)
	}

	slots := signedSlots(doc)
	for _, sl := range slots {
		if err := checkBounds(sl, dims); err != nil {
			return "", err
		}
	}
	imgs, err := s.fetchImages(ctx, slots)
	if err != nil {
		return "", err
	}

	out := draft
	for i, sl := range slots {
		if out, err = s.overlay(out, sl, imgs[i]); err != nil {
			return "", fmt.Errorf("failed to stamp slot %q: %w", sl.Label, err)
		}
	}
	if len(slots) == 0 {
		// Rewrite so the final artifact is a distinct blob from the draft.
		var buf bytes.Buffer
		if err := api.Optimize(bytes.NewReader(draft), &buf, s.conf); err != nil {
			return "", fmt.Errorf("failed to finalize draft: %w", err)
		}
		out = buf.Bytes()
	}

	ref, err := s.blobs.Put(ctx, out)
	if err != nil {
		return "", fmt.Errorf("failed to store final artifact: %w", err)
	}
	s.logger.Debug("document stamped",
		zap.String("document_id", doc.ID),
		zap.Int("slots", len(slots)),
		zap.Int("bytes", len(out)),
	)
	return ref, nil
}

// signedSlots returns the signed slots in signing order.
func signedSlots(doc *models.DocumentRecord) []models.SignatureSlot {
	var out []models.SignatureSlot
	for _, sl := range doc.Slots {
		if sl.Signed() {
			out = append(out, sl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func checkBounds(sl models.SignatureSlot, dims []types.Dim) error {
	g := sl.Geometry
	if g.Page < 1 || g.Page > len(dims) {
		return &BoundsError{Label: sl.Label, Page: g.Page, Pages: len(dims), Geom: g}
	}
	d := dims[g.Page-1]
	if g.X < 0 || g.Y < 0 || g.Width <= 0 || g.Height <= 0 || g.X+g.Width > d.Width || g.Y+g.Height > d.Height {
		return &BoundsError{Label: sl.Label, Page: g.Page, Pages: len(dims), Geom: g, Dim: d}
	}
	return nil
}

func (s *Stamper) fetchImages(ctx context.Context, slots []models.SignatureSlot) ([]image.Image, error) {
	imgs := make([]image.Image, len(slots))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchLimit)
	for i, sl := range slots {
		g.Go(func() error {
			img, err := s.images.Image(ctx, sl.SignatureRef)
			if err != nil {
				return fmt.Errorf("failed to load signature of %q: %w", sl.Label, err)
			}
			imgs[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return imgs, nil
}

// overlay stamps the signature image, centered in its box, and the timestamp label.
func (s *Stamper) overlay(in []byte, sl models.SignatureSlot, img image.Image) ([]byte, error) {
	g := sl.Geometry
	page := []string{fmt.Sprint(g.Page)}

	w, h := fit(img, g.Width, g.Height)
	png, err := rasterize(img, w, h, density)
	if err != nil {
		return nil, err
	}
	x := g.X + (g.Width-w)/2
	y := g.Y + (g.Height-h)/2
	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scale:%.4f abs, rot:0, op:%.2f", x, y, 1.0/density, s.cfg.Opacity)
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(png), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("image watermark: %w", err)
	}
	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(in), &buf, page, wm, s.conf); err != nil {
		return nil, err
	}

	lx, ly := g.DateLabelPosition()
	desc = fmt.Sprintf("font:Helvetica, points:%d, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillc:#000000, op:%.2f",
		s.cfg.LabelPoints, lx, max(ly, 0), s.cfg.Opacity)
	wm, err = api.TextWatermark(s.label(sl), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("text watermark: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(buf.Bytes()), &out, page, wm, s.conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// label is the timestamp text drawn next to a signature.
func (s *Stamper) label(sl models.SignatureSlot) string {
	parts := []string{}
	if s.cfg.LabelPrefix != "" {
		parts = append(parts, s.cfg.LabelPrefix)
	}
	if sl.SignerName != "" {
		parts = append(parts, sl.SignerName)
	}
	if sl.SignedAt != nil {
		parts = append(parts, sl.SignedAt.In(s.loc).Format(s.cfg.DateLayout))
	}
	// Commas separate watermark description fields and are not allowed in the text.
	return strings.ReplaceAll(strings.Join(parts, " "), ",", " ")
}
