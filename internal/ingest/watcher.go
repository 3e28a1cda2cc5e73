package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/telos-labs/catalogd/internal/record"
)

// Stats counts what the watcher has done since it started.
type Stats struct {
	FilesIngested  int
	FilesMalformed int
	Records        int
}

// Watcher ingests raw-record JSON files dropped into the inbox directory.
// Each file holds one record object or an array of them. Successfully
// ingested files are deleted; malformed files are left in place and
// counted.
type Watcher struct {
	dir    string
	queue  *Queue
	logger *zap.Logger

	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewWatcher creates a watcher over the inbox directory.
func NewWatcher(dir string, q *Queue, logger *zap.Logger) (*Watcher, error) {
	if q == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:    dir,
		queue:  q,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins watching the inbox for new files. Files already present
// are picked up by the next pass's Sweep, which runs with a consumer
// draining the queue; sweeping here could fill the queue with nothing
// reading it.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fs watcher: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.fs = fs

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// run consumes filesystem events until stopped.
func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isRecordFile(event.Name) {
				continue
			}
			if err := w.ingestFile(ctx, event.Name); err != nil {
				w.logger.Warn("inbox file rejected",
					zap.String("file", event.Name),
					zap.Error(err))
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

// Stop halts the watcher. Queued records stay queued.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.cancel != nil {
		w.cancel()
	}
	if w.fs != nil {
		w.fs.Close()
	}
	w.wg.Wait()
	return nil
}

// Sweep ingests every record file currently in the inbox. Each pass runs
// it so nothing dropped while the watcher was down is missed.
func (w *Watcher) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ingestFile(ctx, path); err != nil {
			w.logger.Warn("inbox file rejected",
				zap.String("file", path),
				zap.Error(err))
		}
	}
	return nil
}

// Stats returns a copy of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// ingestFile parses one inbox file, enqueues its records, and deletes it.
func (w *Watcher) ingestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Already consumed by a racing event.
			return nil
		}
		return fmt.Errorf("failed to read record file: %w", err)
	}

	raws, err := parseRecords(data)
	if err != nil {
		w.mu.Lock()
		w.stats.FilesMalformed++
		w.mu.Unlock()
		return err
	}

	for _, raw := range raws {
		if err := w.queue.Enqueue(ctx, raw); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.stats.FilesIngested++
	w.stats.Records += len(raws)
	w.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("failed to remove ingested file",
			zap.String("file", path),
			zap.Error(err))
	}

	w.logger.Debug("ingested inbox file",
		zap.String("file", path),
		zap.Int("records", len(raws)))

	return nil
}

// parseRecords accepts a single record object or an array of them.
func parseRecords(data []byte) ([]record.Raw, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raws []record.Raw
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse record array: %w", err)
		}
		return raws, nil
	}

	var raw record.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	return []record.Raw{raw}, nil
}

// isRecordFile reports whether an inbox path looks like a record payload.
// Hidden files and editor temp files are skipped.
func isRecordFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".json")
}
