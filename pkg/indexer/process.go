package indexer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gnana997/compreg/pkg/cache"
	"github.com/gnana997/compreg/pkg/catalog"
	"github.com/gnana997/compreg/pkg/scanner"
	"github.com/gnana997/compreg/pkg/util"
)

// processFiles runs processFile over refs in consecutive batches of
// MaxParallelScans. Each batch is bounded by errgroup.SetLimit and batch k+1
// starts only after batch k is done. A batch in flight always finishes;
// after ctx is done no new batch starts and the processed prefix is
// returned with ctx.Err().
func (o *Orchestrator) processFiles(ctx context.Context, refs []scanner.FileRef) ([]fileResult, error) {
	limit := o.es.Options.MaxParallelScans
	results := make([]fileResult, 0, len(refs))

	for i, batch := range util.Chunk(refs, limit) {
		if err := ctx.Err(); err != nil {
			o.es.Logger.Debug("scan cancelled between batches",
				"completed_batches", i,
				"processed", len(results),
				"total", len(refs))
			return results, err
		}

		out := make([]fileResult, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(limit)
		for j, ref := range batch {
			g.Go(func() error {
				out[j] = o.processFile(ctx, ref)
				return nil
			})
		}
		_ = g.Wait()

		results = append(results, out...)
	}
	return results, nil
}

// processFile is the file boundary: every error and panic stops here.
//
// **Pipeline:**
//  1. Read through the mmap source reader
//  2. Hash the content
//  3. Reuse the live records when the cache entry is valid
//  4. Reuse a memoized extraction for the same content
//  5. Otherwise parse and extract
func (o *Orchestrator) processFile(ctx context.Context, ref scanner.FileRef) (res fileResult) {
	res.ref = ref
	defer func() {
		if r := recover(); r != nil {
			res = fileResult{
				ref:      ref,
				err:      fmt.Errorf("%w: %v", catalog.ErrExtractionFailure, r),
				retained: true,
			}
		}
	}()

	src, err := o.es.Reader.Open(ref.AbsPath)
	if err != nil {
		res.err = err
		res.retained = true
		return res
	}
	defer src.Close()

	content := src.Bytes()
	res.hash = cache.HashContent(content)

	if o.es.Cache.IsValid(ref.RelPath, res.hash) {
		if records, ok := o.es.Store.RecordsFor(ref.RelPath, o.es.Cache.Names(ref.RelPath)); ok {
			res.records = records
			res.cacheHit = true
			return res
		}
		o.es.Logger.Debug("cache entry without live records, re-extracting", "file", ref.RelPath)
	}

	key := cache.Key(ref.RelPath, res.hash)
	if records, ok := o.es.Memo.Get(key); ok {
		res.records = records
		res.memoHit = true
		return res
	}

	outcome := o.es.Extractor.Extract(ctx, ref.RelPath, content)
	if outcome.Records == nil {
		// Cancelled before a tree was produced.
		res.err = outcome.Err
		res.retained = true
		return res
	}

	res.records = outcome.Records
	if outcome.Degraded() {
		res.err = outcome.Err
		return res
	}
	o.es.Memo.Add(key, outcome.Records)
	return res
}

// recordCache updates the cache from fresh results. Degraded and empty
// results are evicted so the next scan extracts them again.
func (o *Orchestrator) recordCache(results []fileResult, now time.Time) {
	for _, r := range results {
		if r.retained || r.cacheHit {
			continue
		}
		if r.err != nil || len(r.records) == 0 {
			o.es.Cache.Evict(r.ref.RelPath)
			continue
		}
		names := make([]string, 0, len(r.records))
		for _, rec := range r.records {
			names = append(names, rec.Name)
		}
		o.es.Cache.Put(r.ref.RelPath, cache.Entry{
			Hash:        r.hash,
			Components:  names,
			LastUpdated: now,
		})
	}
}

// tally fills the per-file counters of summary and returns the warnings
// to record, in file order.
func tally(summary *ScanSummary, results []fileResult) []string {
	var warnings []string
	for _, r := range results {
		if r.err != nil {
			summary.FailedFiles++
			summary.Failures = append(summary.Failures, FileError{Path: r.ref.RelPath, Err: r.err})
			warnings = append(warnings, fmt.Sprintf("%s: %v", r.ref.RelPath, r.err))
			continue
		}
		summary.SuccessfulFiles++
		if r.cacheHit {
			summary.CacheHits++
		}
	}
	return warnings
}
