//go:build onnx

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxModelName    = "all-MiniLM-L6-v2"
	onnxEmbeddingDim = 384
	onnxMaxTokenLen  = 128
	onnxBatchSize    = 1
)

// ONNXAvailable indicates that the ONNX embedding provider is compiled in.
const ONNXAvailable = true

// ONNXEmbedder produces embeddings using a local ONNX model. The session and
// its bound tensors are created once and reused; Embed serializes access.
type ONNXEmbedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	ids     *ort.Tensor[int64]
	mask    *ort.Tensor[int64]
	typeIDs *ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

// NewONNXEmbedder loads the MiniLM model and ONNX Runtime from cfg.ModelDir
// (default ~/.voxcheck/models/), downloading the model on first use.
func NewONNXEmbedder(cfg EmbedderConfig) (Embedder, error) {
	modelDir := cfg.ModelDir
	if modelDir == "" {
		modelDir = defaultModelDir()
	}

	libPath, err := findRuntime(modelDir)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: %w", err)
	}
	ort.SetSharedLibraryPath(libPath)

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx embedder: initialize environment: %w", err)
		}
	}

	modelPath, err := ensureModel(modelDir)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: %w", err)
	}

	e := &ONNXEmbedder{}
	if err := e.bind(modelPath); err != nil {
		e.Close()
		return nil, fmt.Errorf("onnx embedder: %w", err)
	}
	return e, nil
}

func (e *ONNXEmbedder) bind(modelPath string) error {
	shape := ort.NewShape(int64(onnxBatchSize), int64(onnxMaxTokenLen))
	outShape := ort.NewShape(int64(onnxBatchSize), int64(onnxMaxTokenLen), int64(onnxEmbeddingDim))

	var err error
	if e.ids, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create input_ids tensor: %w", err)
	}
	if e.mask, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create attention_mask tensor: %w", err)
	}
	if e.typeIDs, err = ort.NewEmptyTensor[int64](shape); err != nil {
		return fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	if e.output, err = ort.NewEmptyTensor[float32](outShape); err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.Value{e.ids, e.mask, e.typeIDs},
		[]ort.Value{e.output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Model returns the ONNX model name.
func (e *ONNXEmbedder) Model() string { return onnxModelName }

// Embed produces a normalized embedding vector for the given text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, errors.New("onnx embed: session closed")
	}

	mask := e.mask.GetData()
	tokenizeInto(text, e.ids.GetData(), mask)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx embed: run inference: %w", err)
	}

	result := meanPool(e.output.GetData(), mask, onnxMaxTokenLen, onnxEmbeddingDim)
	Normalize(result)
	return result, nil
}

// Close releases the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.ids != nil {
		e.ids.Destroy()
	}
	if e.mask != nil {
		e.mask.Destroy()
	}
	if e.typeIDs != nil {
		e.typeIDs.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
	return nil
}

// meanPool computes the mean of token embeddings weighted by attention mask.
func meanPool(output []float32, mask []int64, seqLen, dim int) []float32 {
	result := make([]float32, dim)
	var count float32

	for i := 0; i < seqLen; i++ {
		if mask[i] == 0 {
			continue
		}
		count++
		offset := i * dim
		for j := 0; j < dim; j++ {
			result[j] += output[offset+j]
		}
	}

	if count > 0 {
		for j := range result {
			result[j] /= count
		}
	}
	return result
}
