package storage

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder for image.Decode
)

// PreviewMaxDim bounds both preview dimensions.
const PreviewMaxDim = 300

// PreviewMimeType is the format of every preview regardless of the source.
const PreviewMimeType = "image/png"

// RenderPreview decodes data and returns a PNG that fits inside
// PreviewMaxDim x PreviewMaxDim with the aspect ratio kept. Images that
// already fit are re-encoded without scaling.
func RenderPreview(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	thumb := imaging.Fit(img, PreviewMaxDim, PreviewMaxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
