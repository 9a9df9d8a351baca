package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/internal/services/index"
	"github.com/yagpt/gateway/pkg/logger"
)

// QueryEmbedder embeds search queries
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service ranks indexed chunks by cosine similarity to a query.
// The index is read-only so concurrent searches need no locking.
type Service struct {
	index    *index.Index
	embedder QueryEmbedder
}

func NewService(ix *index.Index, embedder QueryEmbedder) *Service {
	return &Service{
		index:    ix,
		embedder: embedder,
	}
}

// Search returns at most k passages ordered by non-increasing score
func (s *Service) Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	if s == nil || s.index == nil {
		return nil, &domain.RetrievalError{Err: domain.ErrIndexUnavailable}
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &domain.RetrievalError{Err: err}
	}

	chunks := s.index.Chunks()
	passages := make([]models.RetrievedPassage, 0, len(chunks))
	for _, chunk := range chunks {
		passages = append(passages, models.RetrievedPassage{
			Text:     chunk.Text,
			Score:    cosine(vector, chunk.Vector),
			SourceID: chunk.SourceID,
		})
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})

	if k < len(passages) {
		passages = passages[:max(k, 0)]
	}

	log := logger.For(logger.RETRIEVAL)
	log.Debug().
		Int("candidates", len(chunks)).
		Int("returned", len(passages)).
		Msg("Search complete")

	return passages, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
