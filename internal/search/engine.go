// Package search implements deterministic top-k similarity search with
// filter-aware over-fetch over an immutable chunk index.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
	"github.com/fyrsmithlabs/patentd/internal/logging"
)

var (
	// ErrDimensionMismatch indicates the query vector does not match the
	// index's embedding dimension.
	ErrDimensionMismatch = errors.New("query vector dimension mismatch")

	// ErrInvalidK indicates a non-positive result count.
	ErrInvalidK = errors.New("k must be >= 1")
)

// deadlineCheckInterval is how many chunks are scored between cooperative
// context checks. Checks are coarse so the scan stays cheap.
const deadlineCheckInterval = 4096

// Result is one scored chunk.
type Result struct {
	Chunk corpus.Chunk
	Score float32
}

// Config tunes the filter-aware over-fetch.
type Config struct {
	// OversampleFactor multiplies k for the initial candidate window.
	OversampleFactor int
	// MinOversample is the floor for the initial candidate window.
	MinOversample int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{OversampleFactor: 4, MinOversample: 32}
}

// Engine executes similarity search against a tenant's index.
//
// Indexes are immutable after load, so any number of searches may run
// concurrently over the same index without coordination.
type Engine struct {
	config  Config
	metrics *Metrics
	logger  *logging.Logger
}

// NewEngine creates an engine. Zero config fields fall back to defaults.
func NewEngine(config Config, logger *logging.Logger) *Engine {
	if config.OversampleFactor < 1 {
		config.OversampleFactor = DefaultConfig().OversampleFactor
	}
	if config.MinOversample < 1 {
		config.MinOversample = DefaultConfig().MinOversample
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{config: config, metrics: NewMetrics(), logger: logger.Named("search")}
}

// scored pairs a chunk position with its similarity score.
type scored struct {
	pos   int
	score float32
}

// Search returns up to k chunks most similar to query, optionally
// restricted by pred.
//
// Results are ordered by score descending with ties broken by ascending
// chunk id, so an identical query against an unchanged index always yields
// an identical result. When pred accepts fewer than k chunks the result is
// shorter than k; that is a valid result, not an error.
func (e *Engine) Search(ctx context.Context, ix *corpus.Index, query []float32, k int, pred *Predicate) ([]Result, error) {
	start := time.Now()

	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if len(query) != ix.Dimension() {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query), ix.Dimension())
	}
	if err := pred.Validate(); err != nil {
		return nil, err
	}

	n := ix.Len()
	if n == 0 {
		return []Result{}, nil
	}

	ranking, err := e.rank(ctx, ix, query)
	if err != nil {
		return nil, err
	}

	var (
		picked      []scored
		growthSteps int
	)
	if pred == nil {
		if k < len(ranking) {
			picked = ranking[:k]
		} else {
			picked = ranking
		}
	} else {
		picked, growthSteps, err = e.overFetch(ctx, ix, ranking, k, pred)
		if err != nil {
			return nil, err
		}
	}

	chunks := ix.Chunks()
	results := make([]Result, len(picked))
	for i, s := range picked {
		results[i] = Result{Chunk: chunks[s.pos], Score: s.score}
	}

	e.metrics.RecordSearch(ctx, ix.Tenant(), time.Since(start), len(results), growthSteps, pred != nil)
	e.logger.Debug(ctx, "search complete",
		zap.String("tenant", ix.Tenant()),
		zap.Int("k", k),
		zap.Int("results", len(results)),
		zap.Int("overfetch_steps", growthSteps),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// rank scores every chunk against the query and returns positions ordered
// by score descending, chunk id ascending on ties. Chunks are already held
// sorted by id, so a stable sort on score alone preserves the tie order.
func (e *Engine) rank(ctx context.Context, ix *corpus.Index, query []float32) ([]scored, error) {
	chunks := ix.Chunks()

	var queryNorm float64
	for _, v := range query {
		queryNorm += float64(v) * float64(v)
	}
	queryNorm = math.Sqrt(queryNorm)

	ranking := make([]scored, len(chunks))
	for i := range chunks {
		if i%deadlineCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ranking[i] = scored{pos: i, score: cosine(query, chunks[i].Vector, queryNorm)}
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].score > ranking[j].score
	})
	return ranking, nil
}

// overFetch walks geometrically growing prefixes of the ranking, filtering
// by pred, until k matches are collected or the index is exhausted. The
// common case (selective but not rare predicate, small k) stops well short
// of the full index; a predicate satisfied by fewer than k chunks ends with
// the whole ranking scanned and a short result.
func (e *Engine) overFetch(ctx context.Context, ix *corpus.Index, ranking []scored, k int, pred *Predicate) ([]scored, int, error) {
	n := len(ranking)
	chunks := ix.Chunks()

	m := k * e.config.OversampleFactor
	if m < e.config.MinOversample {
		m = e.config.MinOversample
	}
	if m > n {
		m = n
	}

	matches := make([]scored, 0, k)
	scanned := 0
	steps := 0
	for {
		for _, s := range ranking[scanned:m] {
			if pred.Matches(chunks[s.pos].Metadata) {
				matches = append(matches, s)
			}
		}
		scanned = m

		if len(matches) >= k || m == n {
			break
		}

		// Deadline check per growth step keeps cancellation cheap.
		if err := ctx.Err(); err != nil {
			return nil, steps, err
		}
		steps++
		m *= 2
		if m > n {
			m = n
		}
	}

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, steps, nil
}

// cosine computes cosine similarity given a precomputed query norm.
// Zero-magnitude vectors score 0.
func cosine(query, vec []float32, queryNorm float64) float32 {
	var dot, norm float64
	for i := range vec {
		dot += float64(query[i]) * float64(vec[i])
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	if queryNorm == 0 || norm == 0 {
		return 0
	}
	return float32(dot / (queryNorm * norm))
}
