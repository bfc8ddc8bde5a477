// Package indexer drives component scans: full scans, debounced incremental
// updates from a file watcher, and removals, all through a single writer.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/scanner"
)

// ChangeSource delivers debounced change batches and removals. *Watcher
// implements it.
type ChangeSource interface {
	Batches() <-chan []string
	Removals() <-chan string
	Stop() error
}

// Orchestrator is the only writer of the registry store and the cache.
//
// **Thread Safety:**
//   - FullScan, ProcessUpdates and Remove serialize on an internal mutex
//   - State() and the store's readers are safe from any goroutine
type Orchestrator struct {
	es  *EngineState
	mu  sync.Mutex
	now func() time.Time
}

// NewOrchestrator creates an Orchestrator over es.
func NewOrchestrator(es *EngineState) *Orchestrator {
	return &Orchestrator{es: es, now: time.Now}
}

// Engine returns the engine state.
func (o *Orchestrator) Engine() *EngineState {
	return o.es
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return o.es.State()
}

// Load restores the cache and the previous registry. Both are best effort:
// a corrupt cache restarts empty and an unreadable registry is ignored.
func (o *Orchestrator) Load(ctx context.Context) {
	if err := o.es.Cache.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
		o.es.Logger.Warn("cache reset", "error", err)
	}
	if err := o.es.Store.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
		o.es.Logger.Warn("existing registry ignored", "path", o.es.Store.OutputPath(), "error", err)
	}
}

// FullScan resolves the file set, processes every file and replaces the
// live document. A resolve failure persists the fallback document and
// returns an error wrapping catalog.ErrScanFatal. A cancelled ctx still
// persists what was processed and returns ctx.Err().
func (o *Orchestrator) FullScan(ctx context.Context) (ScanSummary, error) {
	return o.FullScanWith(ctx, nil)
}

// FullScanWith is FullScan with stamp applied to the new document, or to
// the fallback document, before it is persisted.
func (o *Orchestrator) FullScanWith(ctx context.Context, stamp func(doc *catalog.RegistryDocument)) (ScanSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fullScan(ctx, stamp)
}

func (o *Orchestrator) fullScan(ctx context.Context, stamp func(doc *catalog.RegistryDocument)) (ScanSummary, error) {
	defer o.enter(StateFullScanning)()

	start := o.now()
	summary := ScanSummary{Kind: "full"}
	opts := o.es.Options

	resolved, err := scanner.Resolve(scanner.ResolveOptions{
		ProjectRoot: opts.ProjectRoot,
		Roots:       opts.Roots,
		Include:     opts.Include,
		Exclude:     opts.Exclude,
	}, o.es.Logger)
	if err != nil {
		fatal := fmt.Errorf("%w: %v", catalog.ErrScanFatal, err)
		o.es.Logger.Error("full scan failed, writing fallback registry", "error", err)
		o.persistFallback(ctx, fatal, stamp)
		summary.Duration = o.now().Sub(start)
		summary.Components = o.es.Store.ComponentCount()
		o.es.Metrics.observeScan(summary.Kind, summary, fatal)
		return summary, fatal
	}
	summary.Files = len(resolved.Files)

	o.es.Logger.Info("starting full scan",
		"roots", len(opts.Roots),
		"files", len(resolved.Files))

	results, scanErr := o.processFiles(ctx, resolved.Files)
	warnings := tally(&summary, results)

	prevDoc := o.es.Store.Snapshot()
	previous := recordsByPath(prevDoc)
	resolvedSet := make(map[string]bool, len(resolved.Files))
	for _, ref := range resolved.Files {
		resolvedSet[ref.RelPath] = true
	}

	var components []catalog.ComponentRecord
	extracted := 0
	oldFresh, newFresh := 0, 0
	for _, r := range results {
		if r.retained {
			components = append(components, previous[r.ref.RelPath]...)
			continue
		}
		components = append(components, r.records...)
		extracted += len(r.records)
		// A degraded file losing records is a failure, not a removal.
		if r.err == nil {
			oldFresh += len(previous[r.ref.RelPath])
			newFresh += len(r.records)
		}
	}
	// Files the cancelled scan never reached keep their records.
	for _, ref := range resolved.Files[len(results):] {
		components = append(components, previous[ref.RelPath]...)
	}

	intentional := 0
	if shrink := oldFresh - newFresh; shrink > 0 {
		intentional += shrink
	}
	vanished := 0
	for path, recs := range previous {
		if !resolvedSet[path] {
			vanished += len(recs)
		}
	}
	if len(resolved.Warnings) == 0 {
		intentional += vanished
	} else if vanished > 0 {
		o.es.Logger.Warn("component roots missing, keeping vanished components on disk",
			"vanished", vanished)
	}

	now := o.now()
	doc := catalog.NewDocument(now)
	doc.Components = catalog.DedupComponents(components)
	summary.Duration = now.Sub(start)
	summary.Components = len(doc.Components)
	doc.ScanDurationMs = summary.Duration.Milliseconds()
	doc.CacheHits = summary.CacheHits
	doc.SuccessfulFiles = summary.SuccessfulFiles
	doc.FailedFiles = summary.FailedFiles
	for _, w := range resolved.Warnings {
		doc.AddWarning(w)
	}
	for _, w := range warnings {
		doc.AddWarning(w)
	}
	doc.Metadata = &catalog.Metadata{
		TotalFiles:          len(resolved.Files),
		ExtractedComponents: extracted,
		UniqueComponents:    len(doc.Components),
		Environment:         opts.Environment,
	}
	if prevDoc != nil {
		doc.BuildID = prevDoc.BuildID
		doc.BuildTime = prevDoc.BuildTime
		doc.Environment = prevDoc.Environment
	}
	if stamp != nil {
		stamp(doc)
	}

	o.es.Store.Replace(doc, intentional)

	o.recordCache(results, now)
	o.es.Cache.Retain(resolvedSet)

	persistCtx := context.WithoutCancel(ctx)
	o.persist(persistCtx)

	o.logSummary(summary)
	o.es.Metrics.observeScan(summary.Kind, summary, scanErr)
	return summary, scanErr
}

// ProcessUpdates re-extracts the given absolute paths and merges the results
// in one step. Paths that no longer exist are removed. Without a live
// document, or with Incremental off, it runs a full scan instead.
func (o *Orchestrator) ProcessUpdates(ctx context.Context, paths []string) (ScanSummary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.es.Store.Loaded() || !o.es.Options.Incremental {
		return o.fullScan(ctx, nil)
	}

	defer o.enter(StateIncrementalUpdating)()

	start := o.now()
	summary := ScanSummary{Kind: "incremental"}

	refs, gone := o.refsFor(paths)
	summary.Files = len(refs)

	removed := 0
	for _, rel := range gone {
		removed += o.es.Store.RemoveComponentsForPath(rel)
		o.es.Cache.Evict(rel)
	}

	results, scanErr := o.processFiles(ctx, refs)
	warnings := tally(&summary, results)

	var records []catalog.ComponentRecord
	var touched, degraded []string
	for _, r := range results {
		if r.retained {
			continue
		}
		records = append(records, r.records...)
		touched = append(touched, r.ref.RelPath)
		if r.err != nil {
			degraded = append(degraded, r.ref.RelPath)
		}
	}

	merge := o.es.Store.Merge(records, touched, degraded)
	now := o.now()
	summary.Duration = now.Sub(start)
	summary.Components = merge.Total

	o.es.Store.Update(func(doc *catalog.RegistryDocument) {
		doc.ScanDurationMs = summary.Duration.Milliseconds()
		doc.CacheHits = summary.CacheHits
		doc.SuccessfulFiles = summary.SuccessfulFiles
		doc.FailedFiles = summary.FailedFiles
		for _, w := range warnings {
			doc.AddWarning(w)
		}
	})

	o.recordCache(results, now)

	if len(touched) > 0 || removed > 0 {
		o.persist(context.WithoutCancel(ctx))
	}

	o.es.Logger.Info("incremental update complete",
		"files", summary.Files,
		"removed_files", len(gone),
		"components", summary.Components,
		"cache_hits", summary.CacheHits,
		"failed", summary.FailedFiles,
		"duration_ms", summary.Duration.Milliseconds())
	o.logFailures(summary)
	o.es.Metrics.observeScan(summary.Kind, summary, scanErr)
	return summary, scanErr
}

// Remove drops the components and cache entry of a deleted file and
// persists when anything changed. A path with no records of its own is
// treated as a removed directory and every file below it is dropped.
func (o *Orchestrator) Remove(ctx context.Context, path string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rel, err := scanner.RelPath(o.es.Options.ProjectRoot, path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	removed := o.es.Store.RemoveComponentsForPath(rel)
	evicted := o.es.Cache.Evict(rel)
	if removed == 0 && !evicted {
		prefix := rel + "/"
		for p := range o.es.Store.PathsWithComponents() {
			if strings.HasPrefix(p, prefix) {
				removed += o.es.Store.RemoveComponentsForPath(p)
				o.es.Cache.Evict(p)
			}
		}
		if removed == 0 {
			return 0, nil
		}
	}

	o.es.Logger.Info("removed components for deleted path",
		"path", rel,
		"components", removed)
	o.es.Metrics.componentsTotal.Set(float64(o.es.Store.ComponentCount()))

	return removed, o.persist(context.WithoutCancel(ctx))
}

// Run consumes src until ctx is done, then stops src and makes a final
// persist. Batches and removals are applied one at a time.
func (o *Orchestrator) Run(ctx context.Context, src ChangeSource) error {
	o.es.Logger.Debug("orchestrator run loop started")
	for {
		select {
		case <-ctx.Done():
			return o.Shutdown(context.WithoutCancel(ctx), src)

		case batch := <-src.Batches():
			if _, err := o.ProcessUpdates(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
				o.es.Logger.Error("incremental update failed", "error", err)
			}

		case path := <-src.Removals():
			if _, err := o.Remove(ctx, path); err != nil {
				o.es.Logger.Error("removal failed", "file", path, "error", err)
			}
		}
	}
}

// Shutdown stops src (when non-nil) and persists the store and cache.
func (o *Orchestrator) Shutdown(ctx context.Context, src ChangeSource) error {
	o.es.transition(StateShuttingDown)

	if src != nil {
		if err := src.Stop(); err != nil {
			o.es.Logger.Warn("failed to stop watcher", "error", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.es.Store.Loaded() {
		return nil
	}
	return o.persist(ctx)
}

// persist writes the store and the cache, each only when it changed.
// Failures are logged and counted; the store error is returned.
func (o *Orchestrator) persist(ctx context.Context) error {
	storeErr := o.es.Store.Persist(ctx)
	if storeErr != nil {
		o.es.Metrics.persistFailures.Inc()
	}

	if o.es.Cache.Enabled() && o.es.Cache.Dirty() {
		if err := o.es.Cache.Persist(ctx); err != nil {
			o.es.Metrics.persistFailures.Inc()
			o.es.Logger.Warn("failed to persist cache", "error", err)
		}
	}
	return storeErr
}

func (o *Orchestrator) persistFallback(ctx context.Context, cause error, stamp func(doc *catalog.RegistryDocument)) {
	doc := catalog.FallbackDocument(o.now(), cause, o.es.Options.Environment)
	doc.AddWarning(cause.Error())
	if stamp != nil {
		stamp(doc)
	}
	o.es.Store.Replace(doc, 0)
	_ = o.persist(context.WithoutCancel(ctx))
}

// enter moves to state and returns a func that restores Idle, unless a
// shutdown started in between.
func (o *Orchestrator) enter(state State) func() {
	o.es.transition(state)
	return func() {
		if o.es.State() == state {
			o.es.transition(StateIdle)
		}
	}
}

// refsFor maps absolute paths to file refs. Paths that no longer exist are
// returned separately as project-relative paths.
func (o *Orchestrator) refsFor(paths []string) ([]scanner.FileRef, []string) {
	seen := make(map[string]bool, len(paths))
	var refs []scanner.FileRef
	var gone []string

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := scanner.RelPath(o.es.Options.ProjectRoot, abs)
		if err != nil || seen[rel] {
			continue
		}
		seen[rel] = true

		if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
			gone = append(gone, rel)
			continue
		}
		refs = append(refs, scanner.FileRef{AbsPath: abs, RelPath: rel})
	}
	return refs, gone
}

func (o *Orchestrator) logSummary(summary ScanSummary) {
	o.es.Logger.Info("full scan complete",
		"files", summary.Files,
		"components", summary.Components,
		"cache_hits", summary.CacheHits,
		"failed", summary.FailedFiles,
		"duration_ms", summary.Duration.Milliseconds())
	o.logFailures(summary)
}

func (o *Orchestrator) logFailures(summary ScanSummary) {
	if len(summary.Failures) == 0 {
		return
	}
	if !o.es.Options.Verbose {
		o.es.Logger.Warn(fmt.Sprintf("%d failures, run with verbose to inspect", len(summary.Failures)))
		return
	}
	for _, f := range summary.Failures {
		o.es.Logger.Warn("file processing failed", "file", f.Path, "error", f.Err)
	}
}

func recordsByPath(doc *catalog.RegistryDocument) map[string][]catalog.ComponentRecord {
	out := make(map[string][]catalog.ComponentRecord)
	if doc == nil {
		return out
	}
	for _, c := range doc.Components {
		out[c.Path] = append(out[c.Path], c)
	}
	return out
}
