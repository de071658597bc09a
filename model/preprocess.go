package model

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"chartsight/types"
)

// clipInputSize is the square input resolution of the image encoder.
const clipInputSize = 224

// CLIP preprocessing constants (per-channel mean/std over RGB in [0,1]).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImage decodes an image file. Unreadable or undecodable files are
// reported as IOError.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &types.IOError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return img, nil
}

// ResizeRGBA scales img to size x size with bicubic interpolation.
func ResizeRGBA(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// pixelTensor converts a square RGBA image to a CHW float32 tensor with
// CLIP normalization applied per channel.
func pixelTensor(img *image.RGBA, size int) []float32 {
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := img.PixOffset(x, y)
			r := float32(img.Pix[i]) / 255.0
			g := float32(img.Pix[i+1]) / 255.0
			b := float32(img.Pix[i+2]) / 255.0
			p := y*size + x
			out[p] = (r - clipMean[0]) / clipStd[0]
			out[plane+p] = (g - clipMean[1]) / clipStd[1]
			out[2*plane+p] = (b - clipMean[2]) / clipStd[2]
		}
	}
	return out
}
