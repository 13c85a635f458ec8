package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// DefaultPath is where the file ledger lives unless configured otherwise.
const DefaultPath = "data/quota.json"

// FileLedger keeps the records in memory and writes them through to a JSON
// object {"provider-id": "YYYY-MM-DD"} on every change. Writers take an
// exclusive flock on a sidecar "<path>.lock", re-read the file, merge by the
// later date and replace the file atomically, so several processes can share
// one ledger without losing each other's marks. Reads reload the cache when
// the file on disk has been replaced since the last load.
type FileLedger struct {
	path string
	lock *flock.Flock

	mu      sync.Mutex
	records map[string]Date
	seen    fs.FileInfo
	closed  bool
}

// OpenFile loads path if it exists and creates its directory otherwise.
func OpenFile(path string) (*FileLedger, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	l := &FileLedger{
		path:    path,
		lock:    flock.New(path + ".lock"),
		records: make(map[string]Date),
	}

	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock ledger %s: %w", path, err)
	}
	defer l.lock.Unlock()

	records, info, err := l.readDisk()
	if err != nil {
		return nil, err
	}
	l.records, l.seen = records, info

	slog.Debug("quota ledger loaded", "path", path, "records", len(l.records))
	return l, nil
}

func (l *FileLedger) IsExhausted(_ context.Context, providerID string, today Date) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	if err := l.refreshLocked(); err != nil {
		return false, err
	}
	return exhaustedOn(l.records[providerID], today), nil
}

func (l *FileLedger) MarkExhausted(_ context.Context, providerID string, today Date) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	return l.updateLocked(func(records map[string]Date) bool {
		if cur, ok := records[providerID]; ok && !cur.Before(today) {
			return false
		}
		records[providerID] = today
		return true
	})
}

func (l *FileLedger) List(_ context.Context) (map[string]Date, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	if err := l.refreshLocked(); err != nil {
		return nil, err
	}
	return maps.Clone(l.records), nil
}

func (l *FileLedger) Prune(_ context.Context, before Date) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}

	removed := 0
	err := l.updateLocked(func(records map[string]Date) bool {
		for id, d := range records {
			if d.Before(before) {
				delete(records, id)
				removed++
			}
		}
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (l *FileLedger) Ping(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return nil
}

func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.lock.Close()
}

// updateLocked applies change to the on-disk records under the exclusive
// file lock and writes them back when change reports a modification.
func (l *FileLedger) updateLocked(change func(map[string]Date) bool) error {
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock ledger %s: %w", l.path, err)
	}
	defer l.lock.Unlock()

	// every write lands on disk under this lock, so the file already holds
	// our own marks and the other writers' ones
	records, info, err := l.readDisk()
	if err != nil {
		return err
	}
	l.records, l.seen = records, info

	if !change(l.records) {
		return nil
	}
	return l.flushLocked()
}

// refreshLocked reloads the records when the file was replaced by another
// writer since the last read.
func (l *FileLedger) refreshLocked() error {
	info, err := os.Stat(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat ledger %s: %w", l.path, err)
	}
	if l.seen != nil && os.SameFile(l.seen, info) && l.seen.ModTime().Equal(info.ModTime()) {
		return nil
	}

	if err := l.lock.RLock(); err != nil {
		return fmt.Errorf("lock ledger %s: %w", l.path, err)
	}
	defer l.lock.Unlock()

	records, info, err := l.readDisk()
	if err != nil {
		return err
	}
	l.records, l.seen = records, info
	return nil
}

// readDisk returns the records stored at path and the file's info, or an
// empty set and nil info when the file does not exist yet.
func (l *FileLedger) readDisk() (map[string]Date, fs.FileInfo, error) {
	records := make(map[string]Date)

	f, err := os.Open(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return records, nil, nil
	case err != nil:
		return nil, nil, fmt.Errorf("read ledger %s: %w", l.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat ledger %s: %w", l.path, err)
	}
	if info.Size() == 0 {
		return records, info, nil
	}
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, nil, fmt.Errorf("decode ledger %s: %w", l.path, err)
	}
	return records, info, nil
}

func (l *FileLedger) flushLocked() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".quota-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("stat ledger %s: %w", l.path, err)
	}
	l.seen = info
	return nil
}
