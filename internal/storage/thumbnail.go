package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// Thumbnail bounds.
const (
	ThumbnailWidth  = 320
	ThumbnailHeight = 320
)

// Thumbnail decodes an image and returns a JPEG that fits inside the
// thumbnail bounds, honouring EXIF orientation.
func Thumbnail(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fit(img, ThumbnailWidth, ThumbnailHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
