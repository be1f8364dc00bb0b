package embedding

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"
)

// embeddingsServer records the last request and answers with status and body.
type embeddingsServer struct {
	*httptest.Server
	mu   sync.Mutex
	last capturedRequest
}

type capturedRequest struct {
	path string
	auth string
	body embeddingsRequest
}

func (s *embeddingsServer) lastRequest() capturedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func newEmbeddingsServer(t *testing.T, status int, body string) *embeddingsServer {
	t.Helper()
	s := &embeddingsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c := capturedRequest{path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_ = json.Unmarshal(raw, &c.body)
		s.mu.Lock()
		s.last = c
		s.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := newEmbeddingsServer(t, http.StatusOK, `{"data":[{"embedding":[0.5,-0.25,1]}]}`)

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "Your order has shipped")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(vec) != 3 || vec[0] != 0.5 || vec[1] != -0.25 {
		t.Errorf("vector = %v", vec)
	}
	req := srv.lastRequest()
	if req.path != "/v1/embeddings" {
		t.Errorf("path = %q, want /v1/embeddings", req.path)
	}
	if req.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", req.auth)
	}
	if req.body.Input != "Your order has shipped" || req.body.Model != openAIDefaultModel {
		t.Errorf("request body = %+v", req.body)
	}
}

func TestNewOpenAIEmbedder_Config(t *testing.T) {
	if _, err := NewOpenAIEmbedder(EmbedderConfig{}); err == nil {
		t.Error("expected error without API key")
	}

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Model: "text-embedding-3-large"})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	if e.Model() != "text-embedding-3-large" {
		t.Errorf("Model() = %q", e.Model())
	}
	if e.endpoint != openAIDefaultBaseURL+"/embeddings" {
		t.Errorf("endpoint = %q", e.endpoint)
	}
}

func TestOpenAIEmbedder_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		temporary bool
	}{
		{
			name:    "api envelope",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`,
			wantMsg: "Incorrect API key (invalid_request_error)",
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"slow down","type":"rate_limit"}}`,
			wantMsg:   "slow down",
			temporary: true,
		},
		{
			name:      "gateway html",
			status:    http.StatusBadGateway,
			body:      "<html>" + strings.Repeat("x", 2*maxErrorBody) + "</html>",
			wantMsg:   "<html>",
			temporary: true,
		},
		{
			name:    "empty body",
			status:  http.StatusForbidden,
			wantMsg: "Forbidden",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newEmbeddingsServer(t, tt.status, tt.body)
			e, _ := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL})

			_, err := e.Embed(context.Background(), "hi")
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StatusError", err)
			}
			if se.StatusCode != tt.status {
				t.Errorf("StatusCode = %d", se.StatusCode)
			}
			if !strings.Contains(se.Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", se.Message, tt.wantMsg)
			}
			if len(se.Message) > maxErrorBody {
				t.Errorf("Message length %d exceeds %d", len(se.Message), maxErrorBody)
			}
			if se.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", se.Temporary(), tt.temporary)
			}
		})
	}
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	srv := newEmbeddingsServer(t, http.StatusOK, `{"data":[]}`)
	e, _ := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := e.Embed(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestOpenAIEmbedder_MalformedJSON(t *testing.T) {
	srv := newEmbeddingsServer(t, http.StatusOK, `{"data":`)
	e, _ := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := e.Embed(context.Background(), "hi"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestOpenAIEmbedder_HonoursContext(t *testing.T) {
	srv := newEmbeddingsServer(t, http.StatusOK, `{"data":[{"embedding":[1]}]}`)
	e, _ := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
