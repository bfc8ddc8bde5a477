package indexer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gnana997/compreg/pkg/cache"
	"github.com/gnana997/compreg/pkg/parser"
	"github.com/gnana997/compreg/pkg/registry"
	"github.com/gnana997/compreg/pkg/scanner"
	"github.com/gnana997/compreg/pkg/util"
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFullScanning
	StateIncrementalUpdating
	StateShuttingDown
)

var allStates = []State{StateIdle, StateFullScanning, StateIncrementalUpdating, StateShuttingDown}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFullScanning:
		return "full_scanning"
	case StateIncrementalUpdating:
		return "incremental_updating"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EngineState bundles everything a scan needs. It is built once and handed
// to the Orchestrator; nothing in the engine is global.
type EngineState struct {
	Options   Options
	Logger    *slog.Logger
	Store     *registry.Store
	Cache     *cache.Cache
	Memo      *cache.Memo
	Parser    *parser.LadderParser
	Extractor *scanner.Extractor
	Reader    *util.SourceReader
	Metrics   *Metrics

	mu    sync.RWMutex
	state State
}

// EngineConfig holds the collaborators NewEngineState cannot build itself.
type EngineConfig struct {
	Options Options
	Store   *registry.Store
	Cache   *cache.Cache
	Logger  *slog.Logger

	// Metrics may be nil, in which case a private registry is used.
	Metrics *Metrics

	// MemoSize bounds the in-process extraction memo. 0 selects the default.
	MemoSize int
}

// NewEngineState wires the parser, extractor, source reader and memo around
// the given store and cache.
func NewEngineState(config EngineConfig) *EngineState {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := config.Options
	if opts.MaxParallelScans <= 0 {
		opts.MaxParallelScans = DefaultMaxParallelScans
	}
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	p := parser.NewLadderParser(parser.Options{
		PoolSize: util.GetOptimalPoolSizeWithOverride(opts.MaxParallelScans),
		Logger:   logger,
	})

	es := &EngineState{
		Options:   opts,
		Logger:    logger,
		Store:     config.Store,
		Cache:     config.Cache,
		Memo:      cache.NewMemo(config.MemoSize, logger),
		Parser:    p,
		Extractor: scanner.NewExtractor(p, logger),
		Reader:    util.NewSourceReader(util.SourceReaderConfig{Logger: logger}),
		Metrics:   metrics,
	}
	metrics.setState(StateIdle)
	return es
}

// State returns the current lifecycle state.
func (es *EngineState) State() State {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.state
}

// transition moves to next and returns the previous state.
func (es *EngineState) transition(next State) State {
	es.mu.Lock()
	prev := es.state
	es.state = next
	es.mu.Unlock()

	if prev != next {
		es.Logger.Debug("engine state transition", "from", prev.String(), "to", next.String())
		es.Metrics.setState(next)
	}
	return prev
}

// Close releases parser resources.
func (es *EngineState) Close() error {
	return es.Parser.Close()
}
