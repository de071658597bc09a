//go:build cgo
// +build cgo

package vision

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"chartsight/types"
)

// midasInputSize is the square input resolution of the depth model.
const midasInputSize = 256

// Depth model normalization constants (ImageNet mean/std over RGB in [0,1]).
var (
	depthMean = [3]float32{0.485, 0.456, 0.406}
	depthStd  = [3]float32{0.229, 0.224, 0.225}
)

// ONNXDepthEstimator runs a monocular depth model through ONNX Runtime. One
// session per process, serialized by a mutex, same lifecycle as the CLIP
// embedder.
type ONNXDepthEstimator struct {
	session      *ort.AdvancedSession
	timeout      time.Duration
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

func NewONNXDepthEstimator(modelPath string, timeout time.Duration) (*ONNXDepthEstimator, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputData := make([]float32, 3*midasInputSize*midasInputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, midasInputSize, midasInputSize), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, midasInputSize*midasInputSize)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, midasInputSize, midasInputSize), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXDepthEstimator{
		session:      session,
		timeout:      timeout,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// EstimateDepth runs the model and returns the depth buffer normalized to
// 8-bit grayscale at the source image's resolution.
func (e *ONNXDepthEstimator) EstimateDepth(ctx context.Context, img image.Image) (*image.Gray, error) {
	resized := image.NewRGBA(image.Rect(0, 0, midasInputSize, midasInputSize))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Over, nil)

	plane := midasInputSize * midasInputSize
	pixels := make([]float32, 3*plane)
	for y := 0; y < midasInputSize; y++ {
		for x := 0; x < midasInputSize; x++ {
			i := resized.PixOffset(x, y)
			p := y*midasInputSize + x
			pixels[p] = (float32(resized.Pix[i])/255.0 - depthMean[0]) / depthStd[0]
			pixels[plane+p] = (float32(resized.Pix[i+1])/255.0 - depthMean[1]) / depthStd[1]
			pixels[2*plane+p] = (float32(resized.Pix[i+2])/255.0 - depthMean[2]) / depthStd[2]
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), pixels)

	if err := e.runWithTimeout(ctx); err != nil {
		return nil, &types.ComputeError{Op: "depth inference", Err: err}
	}

	raw := e.outputTensor.GetData()
	buf := make([]float64, plane)
	for i, v := range raw[:plane] {
		buf[i] = float64(v)
	}
	depth := NormalizeToGray(buf, midasInputSize, midasInputSize)

	// Scale the depth map back to the source resolution.
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.CatmullRom.Scale(out, out.Bounds(), depth, depth.Bounds(), draw.Over, nil)
	return out, nil
}

func (e *ONNXDepthEstimator) runWithTimeout(ctx context.Context) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- e.session.Run()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close destroys the session and tensors.
func (e *ONNXDepthEstimator) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
