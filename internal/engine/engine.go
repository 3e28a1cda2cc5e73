// Package engine runs catalog synthesis passes. A pass takes one
// consistent snapshot of the record set, synthesizes all four catalog
// documents from it, reconciles the persisted snapshot, and commits the
// results atomically. Two passes never interleave their writes; the
// snapshot generation counter rejects the loser.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/telos-labs/catalogd/internal/aggregate"
	"github.com/telos-labs/catalogd/internal/catalog"
	"github.com/telos-labs/catalogd/internal/ingest"
	"github.com/telos-labs/catalogd/internal/priority"
	"github.com/telos-labs/catalogd/internal/reconcile"
	"github.com/telos-labs/catalogd/internal/record"
	"github.com/telos-labs/catalogd/internal/store"
)

// Document file names, one per target installer client.
const (
	AltStoreFile = "store.json"
	ScarletFile  = "scarlet.json"
	EsignFile    = "esign.json"
	FeatherFile  = "feather.json"
)

// Sweeper feeds records already sitting in the inbox into the queue.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Options wires an Engine's collaborators.
type Options struct {
	Store     *store.Store
	Queue     *ingest.Queue
	Sweeper   Sweeper
	Checker   reconcile.Checker
	Lookup    aggregate.Lookup
	Source    catalog.Source
	Policy    aggregate.Policy
	Overrides priority.Overrides
	OutputDir string
	Logger    *zap.Logger
}

// Engine runs synthesis passes against one store.
type Engine struct {
	opts Options
}

// Result reports what one pass did.
type Result struct {
	Summary     store.PassSummary
	Corrections reconcile.Corrections
	Documents   []string
	Apps        int
}

// New creates an Engine. The checker and lookup are optional; without a
// checker every asset is taken as valid, without a lookup apps fall back
// to their bundle identifier.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Checker == nil {
		opts.Checker = reconcile.CheckerFunc(func(context.Context, string) reconcile.Verdict {
			return reconcile.VerdictValid
		})
	}
	if opts.Lookup == nil {
		opts.Lookup = func(string) (aggregate.Info, bool) { return aggregate.Info{}, false }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{opts: opts}, nil
}

// RunPass executes one full synthesis pass. On store.ErrSnapshotConflict
// no document is written and no state changes; the caller may retry
// against the fresh snapshot.
func (e *Engine) RunPass(ctx context.Context) (*Result, error) {
	passStart := time.Now().UTC()
	logger := e.opts.Logger

	gen, err := e.opts.Store.Generation()
	if err != nil {
		return nil, err
	}

	processed, dropped, droppedIDs, err := e.absorbQueue(ctx)
	if err != nil {
		return nil, err
	}

	records, err := e.opts.Store.ListRecords()
	if err != nil {
		return nil, err
	}
	prior, err := e.opts.Store.ListEntries()
	if err != nil {
		return nil, err
	}

	filtered := reconcile.FilterCorrupt(records, prior)
	entries := aggregate.Build(filtered, e.opts.Overrides, e.opts.Policy, e.opts.Lookup, passStart)

	logger.Info("aggregated records",
		zap.Int("records", len(records)),
		zap.Int("apps", len(entries)),
		zap.Int64("generation", gen))

	docs, err := e.synthesize(ctx, entries, passStart)
	if err != nil {
		return nil, err
	}

	plan := reconcile.Reconcile(ctx, reconcile.Input{
		Prior:    prior,
		Entries:  entries,
		Snapshot: records,
	}, e.opts.Checker)

	// Nothing is committed once the caller has given up.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := store.PassSummary{
		StartedAt:        passStart,
		RecordsProcessed: processed,
		RecordsDropped:   dropped,
		CorruptCount:     plan.CorruptCount,
		RemovedCount:     plan.RemovedCount,
		DroppedBundleIDs: droppedIDs,
	}

	if err := e.opts.Store.CommitPass(store.Commit{
		ExpectedGeneration: gen,
		Upserts:            plan.Upserts,
		Removes:            plan.Removes,
		Summary:            summary,
	}); err != nil {
		return nil, err
	}

	written, err := e.writeDocuments(docs)
	if err != nil {
		return nil, err
	}

	logger.Info("pass committed",
		zap.Int("apps", len(entries)),
		zap.Int("added", plan.Added),
		zap.Int("updated", plan.Updated),
		zap.Int("repaired", plan.Repaired),
		zap.Int("corrupt", plan.CorruptCount),
		zap.Int("removed", plan.RemovedCount))

	return &Result{
		Summary:     summary,
		Corrections: plan.Corrections,
		Documents:   written,
		Apps:        len(entries),
	}, nil
}

// absorbQueue normalizes queued raw records into the store. Malformed
// records are dropped with a warning; the pass continues. When a sweeper
// is wired it runs concurrently with the drain: the sweep produces into
// the same bounded queue this pass consumes, so an inbox larger than the
// queue never stalls waiting for a consumer.
func (e *Engine) absorbQueue(ctx context.Context) (processed, dropped int, droppedIDs []string, err error) {
	if e.opts.Queue == nil {
		return 0, 0, nil, nil
	}

	seen := make(map[string]bool)
	absorb := func(raw record.Raw) error {
		avr, nerr := record.Normalize(raw)
		if nerr != nil {
			dropped++
			e.opts.Logger.Warn("record dropped",
				zap.String("bundle_id", raw.BundleID),
				zap.String("version", raw.Version),
				zap.Error(nerr))
			if id := raw.BundleID; id != "" && !seen[id] {
				seen[id] = true
				droppedIDs = append(droppedIDs, id)
			}
			return nil
		}
		if uerr := e.opts.Store.UpsertRecord(avr); uerr != nil {
			return uerr
		}
		processed++
		return nil
	}

	if e.opts.Sweeper != nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- e.opts.Sweeper.Sweep(sweepCtx) }()

	sweep:
		for {
			select {
			case raw := <-e.opts.Queue.C():
				if aerr := absorb(raw); aerr != nil {
					cancel()
					<-done
					return 0, 0, nil, aerr
				}
			case serr := <-done:
				if serr != nil {
					e.opts.Logger.Warn("inbox sweep failed", zap.Error(serr))
				}
				break sweep
			case <-ctx.Done():
				cancel()
				<-done
				return 0, 0, nil, ctx.Err()
			}
		}
	}

	for _, raw := range e.opts.Queue.Drain() {
		if cerr := ctx.Err(); cerr != nil {
			return 0, 0, nil, cerr
		}
		if aerr := absorb(raw); aerr != nil {
			return 0, 0, nil, aerr
		}
	}
	sort.Strings(droppedIDs)
	return processed, dropped, droppedIDs, nil
}

// synthesize builds all four documents concurrently. Each synthesizer
// reads the shared entry set and writes only its own slot.
func (e *Engine) synthesize(ctx context.Context, entries []aggregate.Entry, passStart time.Time) (map[string][]byte, error) {
	src := e.opts.Source
	logger := e.opts.Logger

	var altstore, scarlet, esign, feather []byte
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		altstore, err = marshalDocument(catalog.BuildAltStore(src, entries, logger))
		return err
	})
	g.Go(func() error {
		var err error
		scarlet, err = marshalDocument(catalog.BuildScarlet(src, entries, passStart, logger))
		return err
	})
	g.Go(func() error {
		var err error
		esign, err = marshalDocument(catalog.BuildEsign(src, entries, passStart, logger))
		return err
	})
	g.Go(func() error {
		var err error
		feather, err = marshalDocument(catalog.BuildFeather(src, entries, logger))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return map[string][]byte{
		AltStoreFile: altstore,
		ScarletFile:  scarlet,
		EsignFile:    esign,
		FeatherFile:  feather,
	}, nil
}

func marshalDocument(doc any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// writeDocuments lands every document via temp file and rename so a
// reader never sees a half-written catalog.
func (e *Engine) writeDocuments(docs map[string][]byte) ([]string, error) {
	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	written := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(e.opts.OutputDir, name)
		if err := writeAtomic(path, docs[name]); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
