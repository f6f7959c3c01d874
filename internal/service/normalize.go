package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/timmy/imgprompt/internal/domain"
)

// decodableTypes have a registered image decoder.
var decodableTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

type NormalizerConfig struct {
	MaxDimension int
	JPEGQuality  int
	// PassthroughUndecodable forwards allowed formats without a decoder
	// (SVG, ICO, HEIC, HEIF, AVIF) unchanged instead of failing.
	PassthroughUndecodable bool
}

// ImageNormalizer bounds the payload sent to the vision provider.
type ImageNormalizer struct {
	maxDimension int
	quality      int
	passthrough  bool
}

func NewImageNormalizer(cfg NormalizerConfig) *ImageNormalizer {
	n := &ImageNormalizer{
		maxDimension: cfg.MaxDimension,
		quality:      cfg.JPEGQuality,
		passthrough:  cfg.PassthroughUndecodable,
	}
	if n.maxDimension <= 0 {
		n.maxDimension = 2048
	}
	if n.quality <= 0 || n.quality > 100 {
		n.quality = jpeg.DefaultQuality
	}
	return n
}

// Normalize decodes blob, scales it down to fit the bounding box and
// re-encodes it as JPEG. Images already inside the box keep their size.
func (n *ImageNormalizer) Normalize(blob *domain.ImageBlob) (*domain.NormalizedImage, error) {
	mimeType := canonicalMIME(blob.MIMEType)
	if !decodableTypes[mimeType] {
		if !n.passthrough {
			return nil, fmt.Errorf("%w: no decoder for %s", domain.ErrImageProcessing, mimeType)
		}
		return &domain.NormalizedImage{
			Data:        blob.Data,
			MIMEType:    mimeType,
			Passthrough: true,
		}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(blob.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrImageProcessing, mimeType, err)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", domain.ErrImageProcessing)
	}
	w, h := fitWithin(b.Dx(), b.Dy(), n.maxDimension)

	// JPEG has no alpha channel, so composite onto white first
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.quality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %v", domain.ErrImageProcessing, err)
	}

	return &domain.NormalizedImage{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    w,
		Height:   h,
	}, nil
}

// fitWithin scales w x h down to fit a limit x limit box, preserving aspect
// ratio. It never upscales.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		nh := int(float64(h)*float64(limit)/float64(w) + 0.5)
		if nh < 1 {
			nh = 1
		}
		return limit, nh
	}
	nw := int(float64(w)*float64(limit)/float64(h) + 0.5)
	if nw < 1 {
		nw = 1
	}
	return nw, limit
}
