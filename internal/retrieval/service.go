// Package retrieval orchestrates tenant resolution, query embedding, and
// the retrieval engine behind a single search operation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/embeddings"
	"github.com/fyrsmithlabs/patentd/internal/logging"
	"github.com/fyrsmithlabs/patentd/internal/query"
	"github.com/fyrsmithlabs/patentd/internal/search"
	"github.com/fyrsmithlabs/patentd/internal/sourcecache"
)

// ErrInvalidRequest indicates a request missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// DefaultK is the result count used when a request does not specify one.
const DefaultK = 10

// lookupScore is reported for patent-number lookup results, where vector
// similarity is not meaningful.
const lookupScore = 1.0

// Request is one search request. Exactly one of Query or Vector must be
// set; a zero K means DefaultK.
type Request struct {
	Tenant string
	Query  string
	Vector []float32
	K      int
	Filter *search.Predicate
}

// Resolver resolves tenant ids to indexes. Satisfied by *registry.Registry.
type Resolver interface {
	Resolve(tenant string) (*corpus.Index, error)
}

// Service is the retrieval core shared by every transport.
type Service struct {
	registry Resolver
	embedder embeddings.Embedder
	engine   *search.Engine
	sources  *sourcecache.Cache
	logger   *logging.Logger
}

// NewService creates the retrieval service.
func NewService(reg Resolver, embedder embeddings.Embedder, engine *search.Engine, sources *sourcecache.Cache, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		registry: reg,
		embedder: embedder,
		engine:   engine,
		sources:  sources,
		logger:   logger.Named("retrieval"),
	}
}

// Search executes one retrieval request.
//
// Text queries are classified first: a query naming a patent number is
// answered from that document's chunks without calling the embedder; a
// topic query is embedded and handed to the engine. Vector queries skip
// classification and go straight to the engine.
func (s *Service) Search(ctx context.Context, req Request) ([]search.Result, error) {
	if req.Tenant == "" {
		return nil, fmt.Errorf("%w: tenant required", ErrInvalidRequest)
	}
	if req.Query == "" && len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: query text or vector required", ErrInvalidRequest)
	}
	if req.Query != "" && len(req.Vector) > 0 {
		return nil, fmt.Errorf("%w: query text and vector are mutually exclusive", ErrInvalidRequest)
	}
	k := req.K
	if k == 0 {
		k = DefaultK
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1", ErrInvalidRequest)
	}

	ctx = logging.WithTenant(ctx, req.Tenant)
	ix, err := s.registry.Resolve(req.Tenant)
	if err != nil {
		return nil, err
	}

	if len(req.Vector) > 0 {
		return s.engine.Search(ctx, ix, req.Vector, k, req.Filter)
	}

	classified := query.Classify(req.Query)
	s.logger.Debug(ctx, "classified query", zap.String("intent", classified.Intent.String()))

	switch classified.Intent {
	case query.IntentPatentLookup:
		return s.lookup(ctx, ix, classified.PatentNumber, k, req.Filter)
	default:
		return s.topicSearch(ctx, ix, classified.Text, k, req.Filter)
	}
}

// topicSearch embeds the query text and runs the similarity engine.
func (s *Service) topicSearch(ctx context.Context, ix *corpus.Index, text string, k int, pred *search.Predicate) ([]search.Result, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.engine.Search(ctx, ix, vector, k, pred)
}

// lookup returns the chunks of the document whose source matches the
// patent number, in chunk id order. A miss is an empty result.
func (s *Service) lookup(ctx context.Context, ix *corpus.Index, number string, k int, pred *search.Predicate) ([]search.Result, error) {
	if err := pred.Validate(); err != nil {
		return nil, err
	}

	listing := s.sources.Listing(ix.Tenant(), ix)

	// Sources are few (one per document); scan for a containing match the
	// way the original corpus names files, e.g. us20230012345a1p.txt.
	var chunkIDs []string
	for source, ids := range listing {
		if strings.Contains(source, number) {
			chunkIDs = append(chunkIDs, ids...)
		}
	}
	if chunkIDs == nil {
		s.logger.Info(ctx, "patent lookup miss", zap.String("patent_number", number))
		return []search.Result{}, nil
	}
	sort.Strings(chunkIDs)

	results := make([]search.Result, 0, min(k, len(chunkIDs)))
	for _, id := range chunkIDs {
		if len(results) == k {
			break
		}
		chunk, ok := ix.Chunk(id)
		if !ok {
			continue
		}
		if !pred.Matches(chunk.Metadata) {
			continue
		}
		results = append(results, search.Result{Chunk: chunk, Score: lookupScore})
	}
	return results, nil
}
