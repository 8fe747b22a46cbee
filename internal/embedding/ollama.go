package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/wislaw/internal/resilience"
	"github.com/hyperjump/wislaw/pkg/utils"
)

// OllamaEmbedder embeds text with a model served by Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
	breaker    *resilience.Breaker
	logger     *zap.Logger
}

// OllamaOption configures an OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) OllamaOption {
	return func(e *OllamaEmbedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBreaker guards requests with a circuit breaker.
func WithBreaker(b *resilience.Breaker) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.breaker = b
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(e *OllamaEmbedder) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// NewOllamaEmbedder creates an embedder for model at baseURL producing vectors of dimensions.
func NewOllamaEmbedder(baseURL, model string, dimensions int, opts ...OllamaOption) (*OllamaEmbedder, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("ollama embedding model is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("ollama embedding dimensions must be positive")
	}
	e := &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the normalized embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. Vectors are L2-normalized so that inner
// product equals cosine similarity.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request := map[string]any{
		"model": e.model,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		return e.postJSON(ctx, "/api/embed", request, &response)
	})
	if err != nil {
		e.logger.Warn("ollama embed failed", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts: %w", len(response.Embeddings), len(texts), ErrEmptyEmbedding)
	}
	for i, v := range response.Embeddings {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("ollama embedding %d has dimension %d, expected %d", i, len(v), e.dimensions)
		}
		utils.NormalizeL2(v)
	}
	return response.Embeddings, nil
}

func (e *OllamaEmbedder) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if s := strings.TrimSpace(string(msg)); s != "" {
			return fmt.Errorf("ollama embed status: %s: %s", resp.Status, s)
		}
		return fmt.Errorf("ollama embed status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode embed response: %w", err)
	}
	return nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases idle HTTP connections.
func (e *OllamaEmbedder) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
