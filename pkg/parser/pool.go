package parser

import (
	"fmt"
	"log/slog"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
)

// parserPool manages a pool of tree-sitter parsers for one grammar.
//
// Design:
// - Channel-based pooling for thread-safe acquire/release
// - Lazy parser creation up to maxSize
// - Blocks when maxSize parsers are in use
type parserPool struct {
	// pool is a buffered channel storing available parsers
	pool chan *ts.Parser

	grammar Grammar
	maxSize int

	// mutex protects created count and parser creation
	mutex   sync.Mutex
	created int

	logger *slog.Logger
}

func newParserPool(grammar Grammar, maxSize int, logger *slog.Logger) *parserPool {
	return &parserPool{
		pool:    make(chan *ts.Parser, maxSize),
		grammar: grammar,
		maxSize: maxSize,
		logger:  logger,
	}
}

// acquire returns a parser from the pool, creating one if needed.
func (p *parserPool) acquire() (*ts.Parser, error) {
	select {
	case parser := <-p.pool:
		return parser, nil
	default:
		return p.createParserIfNeeded()
	}
}

// createParserIfNeeded creates a new parser if we haven't reached maxSize.
// If maxSize is reached, it blocks waiting for a parser to be released.
func (p *parserPool) createParserIfNeeded() (*ts.Parser, error) {
	p.mutex.Lock()

	if p.created < p.maxSize {
		parser := ts.NewParser()
		if parser == nil {
			p.mutex.Unlock()
			return nil, fmt.Errorf("failed to create parser")
		}

		if err := parser.SetLanguage(ts.NewLanguage(p.grammar.languagePointer())); err != nil {
			parser.Close()
			p.mutex.Unlock()
			return nil, fmt.Errorf("failed to set language %s: %w", p.grammar, err)
		}

		p.created++
		p.logger.Debug("created parser in pool",
			"grammar", p.grammar.String(),
			"pool_size", p.created)

		p.mutex.Unlock()
		return parser, nil
	}

	p.mutex.Unlock()
	parser := <-p.pool
	return parser, nil
}

// release returns a parser to the pool for reuse.
func (p *parserPool) release(parser *ts.Parser) {
	if parser == nil {
		return
	}

	select {
	case p.pool <- parser:
	default:
		// Pool is full (shouldn't happen with proper usage)
		parser.Close()
		p.logger.Warn("parser pool full, closing excess parser",
			"grammar", p.grammar.String())
	}
}

// close releases all idle parsers in the pool.
func (p *parserPool) close() {
	close(p.pool)

	count := 0
	for parser := range p.pool {
		if parser != nil {
			parser.Close()
			count++
		}
	}

	p.logger.Debug("closed parser pool",
		"grammar", p.grammar.String(),
		"parsers_closed", count)
}

func (p *parserPool) getCreatedCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.created
}
