// Package qdrant implements the similarity index on a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/wislaw/internal/embedding"
	"github.com/hyperjump/wislaw/internal/index"
	"github.com/hyperjump/wislaw/internal/models"
	"github.com/hyperjump/wislaw/internal/resilience"
)

const scrollPageSize = 256

// pointNamespace derives stable point UUIDs from passage IDs so re-upserts replace points.
var pointNamespace = uuid.MustParse("6f1f3c2e-9a4b-5d7e-8c21-3b0a4e5f6d70")

// PointID returns the Qdrant point ID of a passage.
func PointID(passageID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(passageID)).String()
}

// StatusError is a non-2xx answer from Qdrant.
type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Client is an index.ReadWriter backed by one Qdrant collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embedder   embedding.Embedder
	breaker    *resilience.Breaker
	logger     *zap.Logger

	ensureMu          sync.Mutex
	ensuredCollection bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBreaker guards every request with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New creates a client for collection at baseURL. Queries are embedded with embedder.
func New(baseURL, collection string, embedder embedding.Embedder, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embedder:   embedder,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsClientError reports whether err is a 4xx answer from Qdrant.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// BreakerClassifier counts transport failures and 5xx answers, not client errors or cancellations.
func BreakerClassifier(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !IsClientError(err)
}

func (c *Client) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, suffix)
}

// do sends one JSON request through the breaker and decodes the answer into out when non-nil.
func (c *Client) do(ctx context.Context, method, url, operation string, payload any, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("marshal %s body: %w", operation, err)
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
		}
		if out == nil {
			return nil
		}
		dec := json.NewDecoder(resp.Body)
		// Numbers keep their literal text so numeric payloads and point IDs convert exactly.
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	})
}

// classify maps a transport or status error onto the index sentinels.
// A 4xx on a filtered request means the filter was rejected.
func classify(operation string, err error, filtered bool) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return fmt.Errorf("%w: %s: circuit open: %w", index.ErrIndexUnavailable, operation, err)
	}
	if filtered && IsClientError(err) {
		return fmt.Errorf("%w: %s: %w", index.ErrMalformedFilter, operation, err)
	}
	return fmt.Errorf("%w: %s: %w", index.ErrIndexUnavailable, operation, err)
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// buildFilter renders an exact-match conjunction as a Qdrant payload filter.
func buildFilter(f index.Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": f[k]},
		})
	}
	return map[string]any{"must": must}
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Query embeds text and searches the collection. Distance is 1 - cosine score.
func (c *Client) Query(ctx context.Context, text string, k int, filter index.Filter) ([]index.Hit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	qv, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", index.ErrIndexUnavailable, err)
	}

	reqBody := map[string]any{
		"vector":       qv,
		"limit":        k,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, c.collectionURL("/points/search"), "search", reqBody, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		c.logger.Warn("qdrant search failed", zap.String("filter", filter.String()), zap.Error(err))
		return nil, classify("search", err, len(filter) > 0)
	}

	hits := make([]index.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, index.Hit{Passage: passageFromPayload(r.ID, r.Payload), Distance: 1 - r.Score})
	}
	return hits, nil
}

// GetByMetadata scrolls every point matching filter, ordered by source file and chunk index.
func (c *Client) GetByMetadata(ctx context.Context, filter index.Filter) ([]*models.Passage, error) {
	if len(filter) == 0 {
		return nil, fmt.Errorf("empty filter: %w", index.ErrMalformedFilter)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var out []*models.Passage
	var offset any
	for {
		reqBody := map[string]any{
			"filter":       buildFilter(filter),
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      any            `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.do(ctx, http.MethodPost, c.collectionURL("/points/scroll"), "scroll", reqBody, &resp); err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			c.logger.Warn("qdrant scroll failed", zap.String("filter", filter.String()), zap.Error(err))
			return nil, classify("scroll", err, true)
		}
		for _, p := range resp.Result.Points {
			out = append(out, passageFromPayload(p.ID, p.Payload))
		}
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Metadata.SourceFile != out[j].Metadata.SourceFile {
			return out[i].Metadata.SourceFile < out[j].Metadata.SourceFile
		}
		return out[i].Metadata.ChunkIndex < out[j].Metadata.ChunkIndex
	})
	return out, nil
}

// Count returns the exact number of points in the collection. A missing collection counts as 0.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, c.collectionURL("/points/count"), "count", map[string]any{"exact": true}, &resp)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, classify("count", err, false)
	}
	return resp.Result.Count, nil
}

// Upsert embeds passages and writes them as points, creating the collection on first use.
func (c *Client) Upsert(ctx context.Context, passages []*models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("passage %d has no id", i)
		}
		texts[i] = p.Text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed passages: %w", err)
	}
	if err := c.ensureCollection(ctx, c.embedder.Dimensions()); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, len(passages))
	for i, p := range passages {
		points[i] = point{ID: PointID(p.ID), Vector: vectors[i], Payload: payloadFromPassage(p)}
	}
	if err := c.do(ctx, http.MethodPut, c.collectionURL("/points?wait=true"), "upsert", map[string]any{"points": points}, nil); err != nil {
		return classify("upsert", err, false)
	}
	c.logger.Debug("points upserted", zap.String("collection", c.collection), zap.Int("count", len(points)))
	return nil
}

// DeleteBySource deletes every point whose source_file payload equals sourceFile.
func (c *Client) DeleteBySource(ctx context.Context, sourceFile string) error {
	reqBody := map[string]any{"filter": buildFilter(index.Filter{models.MetaSourceFile: sourceFile})}
	err := c.do(ctx, http.MethodPost, c.collectionURL("/points/delete?wait=true"), "delete", reqBody, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify("delete", err, true)
	}
	return nil
}

// Delete deletes the points of the given passage IDs.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	err := c.do(ctx, http.MethodPost, c.collectionURL("/points/delete?wait=true"), "delete", map[string]any{"points": points}, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify("delete", err, false)
	}
	return nil
}

// Close releases idle HTTP connections and the embedder.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return c.embedder.Close()
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, c.collectionURL(""), "ensure collection", reqBody, nil)
	var se *StatusError
	// 409 when the collection already exists.
	if err != nil && !(errors.As(err, &se) && se.StatusCode == http.StatusConflict) {
		return classify("ensure collection", err, false)
	}
	for _, field := range []string{models.MetaSourceFile, models.MetaDocType, models.MetaSectionNumber, models.MetaChapter} {
		body := map[string]any{"field_name": field, "field_schema": "keyword"}
		if err := c.do(ctx, http.MethodPut, c.collectionURL("/index?wait=true"), "create payload index", body, nil); err != nil {
			c.logger.Warn("qdrant payload index not created", zap.String("field", field), zap.Error(err))
		}
	}
	c.ensuredCollection = true
	return nil
}

func payloadFromPassage(p *models.Passage) map[string]any {
	m := p.Metadata
	payload := map[string]any{
		"passage_id":          p.ID,
		"text":                p.Text,
		models.MetaSourceFile: m.SourceFile,
		models.MetaDocType:    string(m.DocType),
	}
	if m.SectionNumber != "" {
		payload[models.MetaSectionNumber] = m.SectionNumber
	}
	if m.Chapter != "" {
		payload[models.MetaChapter] = m.Chapter
	}
	if m.SubChunk != 0 {
		payload["sub_chunk"] = m.SubChunk
	}
	if m.ChunkIndex != 0 {
		payload["chunk_index"] = m.ChunkIndex
	}
	return payload
}

// passageFromPayload rebuilds a passage from a point. Points written by other
// tools may lack passage_id; the point ID stands in so identity keys stay distinct.
func passageFromPayload(pointID any, payload map[string]any) *models.Passage {
	id := getStringPayload(payload, "passage_id")
	if id == "" {
		id = scalarString(pointID)
	}
	return &models.Passage{
		ID:   id,
		Text: getStringPayload(payload, "text"),
		Metadata: models.Metadata{
			SourceFile:    getStringPayload(payload, models.MetaSourceFile),
			DocType:       models.ParseDocType(getStringPayload(payload, models.MetaDocType)),
			SectionNumber: getStringPayload(payload, models.MetaSectionNumber),
			Chapter:       getStringPayload(payload, models.MetaChapter),
			SubChunk:      getIntPayload(payload, "sub_chunk"),
			ChunkIndex:    getIntPayload(payload, "chunk_index"),
		},
	}
}

func getStringPayload(payload map[string]any, key string) string {
	return scalarString(payload[key])
}

// scalarString converts a decoded JSON string or number to its literal text.
// Other values (objects, arrays, booleans, null) give "".
func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
