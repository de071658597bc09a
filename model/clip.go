//go:build cgo
// +build cgo

package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"chartsight/types"
)

// CLIPEmbedder runs a CLIP-style image encoder through ONNX Runtime. The
// session and its tensors are expensive to build, so one instance is
// constructed at process start and shared; Run is serialized by a mutex.
type CLIPEmbedder struct {
	session      *ort.AdvancedSession
	dimensions   int
	outputTokens int
	timeout      time.Duration
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewCLIPEmbedder creates the encoder session. outputTokens is the token
// count of the model's feature output: 1 for exports that pool internally,
// the sequence length otherwise (features are then mean-pooled here).
func NewCLIPEmbedder(modelPath string, outputTokens int, timeout time.Duration) (*CLIPEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if outputTokens <= 0 {
		outputTokens = 1
	}

	inputData := make([]float32, 3*clipInputSize*clipInputSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, clipInputSize, clipInputSize), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputData := make([]float32, outputTokens*types.EmbeddingDim)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(outputTokens), int64(types.EmbeddingDim)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &CLIPEmbedder{
		session:      session,
		dimensions:   types.EmbeddingDim,
		outputTokens: outputTokens,
		timeout:      timeout,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// EmbedImage loads and preprocesses the image, runs the encoder and returns
// the mean-pooled, L2-normalized feature vector.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	resized := ResizeRGBA(img, clipInputSize)
	pixels := pixelTensor(resized, clipInputSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), pixels)

	if err := e.runWithTimeout(ctx); err != nil {
		return nil, &types.ComputeError{Op: "clip inference", Err: err}
	}

	pooled := MeanPool(e.outputTensor.GetData(), e.outputTokens, e.dimensions)
	if len(pooled) != e.dimensions {
		return nil, &types.ConsistencyError{Want: e.dimensions, Got: len(pooled)}
	}
	return NormalizeL2(pooled), nil
}

// runWithTimeout bounds Run by the configured timeout and the caller's
// context. ONNX Runtime cannot abort an in-flight Run, so on timeout the
// call returns while the run finishes in the background under the mutex.
func (e *CLIPEmbedder) runWithTimeout(ctx context.Context) error {
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

func (e *CLIPEmbedder) Dimensions() int { return e.dimensions }

func (e *CLIPEmbedder) ModelID() string { return "clip-vit-onnx" }

// Close destroys the session and tensors.
func (e *CLIPEmbedder) Close() error {
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
