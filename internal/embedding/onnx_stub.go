//go:build !onnx

package embedding

// ONNXAvailable indicates whether the ONNX embedding provider was compiled in.
const ONNXAvailable = false

// NewONNXEmbedder always fails in builds without the onnx tag; callers fall
// back to another provider.
func NewONNXEmbedder(_ EmbedderConfig) (Embedder, error) {
	return nil, errONNXNotAvailable
}
