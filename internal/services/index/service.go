package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yagpt/gateway/internal/infrastructure/badger"
	"github.com/yagpt/gateway/internal/infrastructure/objectstore"
	"github.com/yagpt/gateway/pkg/logger"
)

const cacheKeyPrefix = "index:"

// Chunk is one embedded piece of a corpus document
type Chunk struct {
	Text     string    `json:"text"`
	SourceID string    `json:"source_id"`
	Vector   []float32 `json:"vector"`
}

// Index holds embedded corpus chunks. It is never modified after construction.
type Index struct {
	fingerprint string
	chunks      []Chunk
}

// NewIndex builds an index from already embedded chunks
func NewIndex(chunks []Chunk) *Index {
	return &Index{chunks: chunks}
}

func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Chunks returns the indexed chunks. Callers must not modify them.
func (ix *Index) Chunks() []Chunk {
	return ix.chunks
}

func (ix *Index) Fingerprint() string {
	return ix.fingerprint
}

// ObjectSource lists and reads corpus documents
type ObjectSource interface {
	List(ctx context.Context) ([]objectstore.Object, error)
	Read(ctx context.Context, key string) (string, error)
}

// DocumentEmbedder embeds corpus chunks
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache persists built indexes keyed by corpus fingerprint
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

type SourceOpener func(cfg objectstore.Config) (ObjectSource, error)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

type Service struct {
	open     SourceOpener
	embedder DocumentEmbedder
	cache    Cache
	opts     Options
}

// NewService creates an index provider. cache may be nil, in which case every call rebuilds.
func NewService(embedder DocumentEmbedder, cache Cache, opts Options) *Service {
	return &Service{
		open: func(cfg objectstore.Config) (ObjectSource, error) {
			return objectstore.NewService(cfg)
		},
		embedder: embedder,
		cache:    cache,
		opts:     opts,
	}
}

// WithSourceOpener replaces how the object source is created from storage configuration
func (s *Service) WithSourceOpener(open SourceOpener) *Service {
	s.open = open
	return s
}

// BuildOrLoad returns the cached index for the current corpus or builds and caches a new one
func (s *Service) BuildOrLoad(ctx context.Context, storage objectstore.Config) (*Index, error) {
	log := logger.For(logger.INDEX)
	start := time.Now()

	source, err := s.open(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open document storage: %w", err)
	}

	objects, err := source.List(ctx)
	if err != nil {
		return nil, err
	}

	fingerprint := s.fingerprint(storage, objects)

	if ix, ok := s.load(fingerprint); ok {
		log.Info().
			Str("fingerprint", fingerprint[:12]).
			Int("chunks", ix.Len()).
			Msg("Loaded document index from cache")
		return ix, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.opts.ChunkSize),
		textsplitter.WithChunkOverlap(s.opts.ChunkOverlap),
	)

	var texts []string
	var sources []string
	for _, obj := range objects {
		content, err := source.Read(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		parts, err := splitter.SplitText(content)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", obj.Key, err)
		}
		for _, part := range parts {
			texts = append(texts, part)
			sources = append(sources, obj.Key)
		}
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed corpus: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]Chunk, len(texts))
	for i := range texts {
		chunks[i] = Chunk{Text: texts[i], SourceID: sources[i], Vector: vectors[i]}
	}

	ix := &Index{fingerprint: fingerprint, chunks: chunks}
	s.store(ix)

	log.Info().
		Str("fingerprint", fingerprint[:12]).
		Int("documents", len(objects)).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Built document index")

	return ix, nil
}

func (s *Service) fingerprint(storage objectstore.Config, objects []objectstore.Object) string {
	sorted := make([]objectstore.Object, len(objects))
	copy(sorted, objects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d\n", storage.Bucket, storage.Prefix, s.opts.ChunkSize, s.opts.ChunkOverlap)
	for _, obj := range sorted {
		fmt.Fprintf(h, "%s|%s\n", obj.Key, obj.ETag)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) load(fingerprint string) (*Index, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(cacheKeyPrefix + fingerprint)
	if err != nil {
		if !errors.Is(err, badger.ErrNotFound) {
			log := logger.For(logger.INDEX)
			log.Warn().Err(err).Msg("Failed to read cached index")
		}
		return nil, false
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		log := logger.For(logger.INDEX)
		log.Warn().Err(err).Msg("Discarding corrupt cached index")
		return nil, false
	}

	return &Index{fingerprint: fingerprint, chunks: chunks}, true
}

func (s *Service) store(ix *Index) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(ix.chunks)
	if err != nil {
		log := logger.For(logger.INDEX)
		log.Warn().Err(err).Msg("Failed to encode index for cache")
		return
	}

	if err := s.cache.Set(cacheKeyPrefix+ix.fingerprint, data); err != nil {
		log := logger.For(logger.INDEX)
		log.Warn().Err(err).Msg("Failed to cache index")
	}
}
