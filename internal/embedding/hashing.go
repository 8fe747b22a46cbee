package embedding

import (
	"context"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/hyperjump/wislaw/pkg/utils"
)

// DefaultHashingDimensions is the vector size of the hashing embedder when none is configured.
const DefaultHashingDimensions = 384

// Statute numbers such as 346.63 stay one token.
var hashingTokenPattern = regexp.MustCompile(`[a-z0-9]+(?:\.[0-9]+)?`)

// HashingEmbedder is a deterministic bag-of-words embedder using signed feature hashing.
// Texts sharing words get positive cosine similarity; it needs no model or network.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the L2-normalized hashed term vector of text.
// Text without any tokens embeds to the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range hashingTokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dimensions))
		if h&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}
