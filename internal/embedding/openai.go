package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
)

const (
	openAIDefaultModel   = "text-embedding-3-small"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a non-JSON error body ends up in an error message.
	maxErrorBody = 512
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

// NewOpenAIEmbedder creates an Embedder for cfg.BaseURL (OpenAI by default)
// using cfg.Model (text-embedding-3-small by default). An API key is required.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: APIKey is required")
	}
	e := &OpenAIEmbedder{
		client:   &http.Client{Timeout: openAIDefaultTimeout},
		endpoint: strings.TrimSuffix(orDefault(cfg.BaseURL, openAIDefaultBaseURL), "/") + "/embeddings",
		apiKey:   cfg.APIKey,
		model:    orDefault(cfg.Model, openAIDefaultModel),
	}
	return e, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

type embeddingsRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type apiErrorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// StatusError reports a non-2xx response from the embeddings endpoint.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai embed: HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, status, err := e.post(ctx, embeddingsRequest{Model: e.model, Input: text, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, newStatusError(status, raw)
	}

	var out embeddingsResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("openai embed: decode response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: response has no embedding")
	}
	return out.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) post(ctx context.Context, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("openai embed: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("openai embed: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("openai embed: read body: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// newStatusError builds a StatusError from the API error envelope when the
// body carries one, or from the truncated raw body otherwise.
func newStatusError(status int, body []byte) *StatusError {
	var env apiErrorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		return &StatusError{StatusCode: status, Message: fmt.Sprintf("%s (%s)", env.Error.Message, env.Error.Type)}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &StatusError{StatusCode: status, Message: msg}
}
