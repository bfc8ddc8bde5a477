package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/util"
)

// errTreeHasErrors marks a tier whose tree contains ERROR or MISSING nodes.
var errTreeHasErrors = errors.New("syntax tree contains errors")

// LadderParser parses component sources through a descending leniency
// ladder of grammars. The first tier producing an error-free tree wins.
//
// Memory Management:
// - Parser pools are created lazily per grammar
// - LadderParser owns the pools and must be closed via Close()
// - Callers own Result trees and must call Result.Close()
//
// Thread Safety:
// - Safe for concurrent use; each grammar pool holds up to PoolSize parsers
//
// Example:
//
//	lp := NewLadderParser(Options{Logger: logger})
//	defer lp.Close()
//
//	res, err := lp.Parse(ctx, source)
//	if err != nil {
//	    var pf *ParseFailure
//	    errors.As(err, &pf) // every tier rejected the source
//	}
//	defer res.Close()
type LadderParser struct {
	tiers    []Tier
	poolSize int
	logger   *slog.Logger

	mutex sync.RWMutex
	pools map[Grammar]*parserPool

	statsMu sync.Mutex
	stats   ParserStats
}

// Options configures a LadderParser.
type Options struct {
	// Tiers overrides the ladder. Nil selects DefaultTiers().
	Tiers []Tier

	// PoolSize caps parsers per grammar. Zero selects a CPU-based default.
	PoolSize int

	Logger *slog.Logger
}

// Result is a successful parse.
type Result struct {
	Tree *ts.Tree
	Tier Tier
}

// Root returns the tree's root node.
func (r *Result) Root() *ts.Node {
	root := r.Tree.RootNode()
	return root
}

// Close releases the tree.
func (r *Result) Close() {
	if r != nil && r.Tree != nil {
		r.Tree.Close()
		r.Tree = nil
	}
}

// TierError records why one tier rejected the source.
type TierError struct {
	Tier Tier
	Err  error
}

// ParseFailure is returned when every tier rejected the source.
type ParseFailure struct {
	Attempts []TierError
}

func (e *ParseFailure) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Tier.Name+": "+a.Err.Error())
	}
	return fmt.Sprintf("all %d grammar tiers failed (%s)", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match catalog.ErrParseFailure.
func (e *ParseFailure) Unwrap() error {
	return catalog.ErrParseFailure
}

// ParserStats contains parser usage statistics.
type ParserStats struct {
	// ParsersCreated is the total number of parser instances created
	ParsersCreated int

	// ParsesCalled is the total number of Parse() calls
	ParsesCalled int

	// TierWins counts successful parses per tier name.
	TierWins map[string]int

	// Failures counts sources rejected by every tier.
	Failures int
}

// NewLadderParser creates a LadderParser.
func NewLadderParser(opts Options) *LadderParser {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &LadderParser{
		tiers:    tiers,
		poolSize: util.GetOptimalPoolSizeWithOverride(opts.PoolSize),
		logger:   opts.Logger,
		pools:    make(map[Grammar]*parserPool),
		stats:    ParserStats{TierWins: make(map[string]int)},
	}
}

// Tiers returns a copy of the configured ladder.
func (lp *LadderParser) Tiers() []Tier {
	return append([]Tier(nil), lp.tiers...)
}

// Parse tries each tier in order and returns the first error-free tree.
// Per-tier failures are logged at debug level only. When every tier fails
// the error is a *ParseFailure. A cancelled ctx stops the ladder between
// tiers and returns ctx.Err().
func (lp *LadderParser) Parse(ctx context.Context, source []byte) (*Result, error) {
	lp.statsMu.Lock()
	lp.stats.ParsesCalled++
	lp.statsMu.Unlock()

	failure := &ParseFailure{}
	for _, tier := range lp.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tree, err := lp.parseWith(tier.Grammar, source)
		if err == nil {
			lp.statsMu.Lock()
			lp.stats.TierWins[tier.Name]++
			lp.statsMu.Unlock()
			return &Result{Tree: tree, Tier: tier}, nil
		}

		lp.logger.Debug("grammar tier rejected source",
			"tier", tier.Name,
			"error", err)
		failure.Attempts = append(failure.Attempts, TierError{Tier: tier, Err: err})
	}

	lp.statsMu.Lock()
	lp.stats.Failures++
	lp.statsMu.Unlock()
	return nil, failure
}

// parseWith runs one grammar. A tree with error nodes is closed and
// reported as a failure.
func (lp *LadderParser) parseWith(grammar Grammar, source []byte) (*ts.Tree, error) {
	pool, err := lp.getOrCreatePool(grammar)
	if err != nil {
		return nil, err
	}

	parser, err := pool.acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire parser: %w", err)
	}
	tree := parser.Parse(source, nil)
	pool.release(parser)

	if tree == nil {
		return nil, fmt.Errorf("parser returned nil tree")
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, errTreeHasErrors
	}
	return tree, nil
}

// getOrCreatePool returns an existing parser pool or creates a new one.
// Thread-safe using double-checked locking pattern.
func (lp *LadderParser) getOrCreatePool(grammar Grammar) (*parserPool, error) {
	lp.mutex.RLock()
	pool, exists := lp.pools[grammar]
	lp.mutex.RUnlock()
	if exists {
		return pool, nil
	}

	lp.mutex.Lock()
	defer lp.mutex.Unlock()

	if pool, exists = lp.pools[grammar]; exists {
		return pool, nil
	}
	if grammar.languagePointer() == nil {
		return nil, fmt.Errorf("unsupported grammar: %s", grammar)
	}

	pool = newParserPool(grammar, lp.poolSize, lp.logger)
	lp.pools[grammar] = pool

	lp.logger.Debug("created new parser pool",
		"grammar", grammar.String(),
		"max_size", lp.poolSize)

	return pool, nil
}

// Stats returns parser usage statistics.
func (lp *LadderParser) Stats() ParserStats {
	lp.mutex.RLock()
	created := 0
	for _, pool := range lp.pools {
		created += pool.getCreatedCount()
	}
	lp.mutex.RUnlock()

	lp.statsMu.Lock()
	defer lp.statsMu.Unlock()
	wins := make(map[string]int, len(lp.stats.TierWins))
	for k, v := range lp.stats.TierWins {
		wins[k] = v
	}
	return ParserStats{
		ParsersCreated: created,
		ParsesCalled:   lp.stats.ParsesCalled,
		TierWins:       wins,
		Failures:       lp.stats.Failures,
	}
}

// Close releases all parser pool resources. The LadderParser cannot be
// used afterwards.
func (lp *LadderParser) Close() error {
	lp.mutex.Lock()
	defer lp.mutex.Unlock()

	for _, pool := range lp.pools {
		pool.close()
	}
	lp.pools = make(map[Grammar]*parserPool)

	lp.statsMu.Lock()
	lp.logger.Debug("closed LadderParser",
		"parses_called", lp.stats.ParsesCalled,
		"failures", lp.stats.Failures)
	lp.statsMu.Unlock()
	return nil
}
