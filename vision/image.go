// Package vision derives depth, edge and gradient maps from chart images.
package vision

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"chartsight/types"
)

// LoadGray decodes an image file into 8-bit grayscale.
func LoadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return ToGray(img), nil
}

// ToGray converts any image to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// NormalizeToGray scales a float buffer to 8-bit grayscale using the buffer's
// min/max range. A flat buffer maps to all zeros.
func NormalizeToGray(buf []float64, width, height int) *image.Gray {
	min, max := buf[0], buf[0]
	for _, v := range buf {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	gray := image.NewGray(image.Rect(0, 0, width, height))
	if max > min {
		scale := 255.0 / (max - min)
		for i, v := range buf {
			gray.Pix[i] = uint8((v - min) * scale)
		}
	}
	return gray
}

// WriteGrayPNG writes a grayscale PNG atomically: the file is written to a
// temp name in the target directory, then renamed into place.
func WriteGrayPNG(path string, img *image.Gray) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create map dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".map-*.png")
	if err != nil {
		return fmt.Errorf("create temp map file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode map png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp map file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename map into place: %w", err)
	}
	return nil
}
