// Package preview renders the thumbnail shown in the widget's preview panel.
package preview

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultSize = 400
	jpegQuality = 85
)

// Thumbnail decodes r and fits it into a size×size box. Images that already
// fit are returned as decoded.
func Thumbnail(r io.Reader, size int) (image.Image, error) {
	if size <= 0 {
		size = DefaultSize
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= size && bounds.Dy() <= size {
		return img, nil
	}

	return imaging.Fit(img, size, size, imaging.Lanczos), nil
}

func Encode(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}
