package approval

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// maxImageWidth and maxImageHeight are the hard caps local attachment
// images are scaled to fit, per spec.md §4.K "Local image injection".
const (
	maxImageWidth  = 2048
	maxImageHeight = 768
)

// LocalImage is a resized, base64-encoded local image ready for
// input_image content, per spec.md §4.K.
type LocalImage struct {
	DataURL string // "data:image/png;base64,...."
	Width   int
	Height  int
}

// InjectLocalImage reads path, resizes it (if needed) so its longest
// dimension fits the configured cap, and encodes it as a PNG data URL.
func InjectLocalImage(path string) (LocalImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LocalImage{}, fmt.Errorf("approval: read image %s: %w", path, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return LocalImage{}, fmt.Errorf("approval: decode image %s: %w", path, err)
	}

	img = fitWithinCap(img, maxImageWidth, maxImageHeight)
	bounds := img.Bounds()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return LocalImage{}, fmt.Errorf("approval: encode image %s: %w", path, err)
	}

	return LocalImage{
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}, nil
}

// fitWithinCap scales img down (never up) so width <= maxW and height <=
// maxH, preserving aspect ratio.
func fitWithinCap(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxW && height <= maxH {
		return img
	}

	widthRatio := float64(maxW) / float64(width)
	heightRatio := float64(maxH) / float64(height)
	ratio := widthRatio
	if heightRatio < ratio {
		ratio = heightRatio
	}

	newWidth := int(float64(width) * ratio)
	newHeight := int(float64(height) * ratio)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
