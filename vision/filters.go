package vision

import "image"

// laplacianKernel emphasizes the central pixel against its neighbors,
// responding to intensity discontinuities in every direction.
var laplacianKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

// sobelXKernel responds to horizontal intensity gradients.
var sobelXKernel = [9]float64{
	-1, 0, 1,
	-2, 0, 2,
	-1, 0, 1,
}

// convolve3x3 applies a 3x3 kernel over the grayscale image and returns the
// raw response buffer. Border pixels clamp to the nearest valid sample.
func convolve3x3(gray *image.Gray, kernel [9]float64) []float64 {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]float64, w*h)

	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := clamp(x+kx, 0, w-1)
					sy := clamp(y+ky, 0, h-1)
					px := gray.Pix[sy*gray.Stride+sx]
					acc += float64(px) * kernel[(ky+1)*3+(kx+1)]
				}
			}
			out[y*w+x] = acc
		}
	}
	return out
}

// EdgeMap runs the Laplacian kernel over the image and normalizes the
// response to 8-bit grayscale.
func EdgeMap(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	resp := convolve3x3(gray, laplacianKernel)
	return NormalizeToGray(resp, bounds.Dx(), bounds.Dy())
}

// GradientMap runs the horizontal Sobel kernel over the image and normalizes
// the response to 8-bit grayscale.
func GradientMap(gray *image.Gray) *image.Gray {
	bounds := gray.Bounds()
	resp := convolve3x3(gray, sobelXKernel)
	return NormalizeToGray(resp, bounds.Dx(), bounds.Dy())
}
