package stamp

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	// Signature uploads may be PNG or JPEG.
	_ "image/jpeg"

	"golang.org/x/image/draw"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/blob"
)

// ImageProvider returns the raster image of a stored signature.
type ImageProvider interface {
	Image(ctx context.Context, ref string) (image.Image, error)
}

// BlobImages decodes signature images kept in a blob store.
type BlobImages struct {
	Store blob.Store
}

func (p BlobImages) Image(ctx context.Context, ref string) (image.Image, error) {
	data, err := p.Store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature %s: %w", ref, err)
	}
	return img, nil
}

// fit returns the largest size with img's aspect ratio that fits in w x h.
func fit(img image.Image, w, h float64) (float64, float64) {
	b := img.Bounds()
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw == 0 || ih == 0 {
		return w, h
	}
	s := min(w/iw, h/ih)
	return iw * s, ih * s
}

// rasterize scales img to w x h points at the given pixel density and encodes it as PNG.
func rasterize(img image.Image, w, h float64, density int) ([]byte, error) {
	pw := max(1, int(w*float64(density)+0.5))
	ph := max(1, int(h*float64(density)+0.5))
	dst := image.NewNRGBA(image.Rect(0, 0, pw, ph))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode signature: %w", err)
	}
	return buf.Bytes(), nil
}
