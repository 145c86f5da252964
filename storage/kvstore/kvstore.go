// Package kvstore implements the agent snapshot store on top of an embedded
// pogreb key-value database.
package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/akrylysov/pogreb"

	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/metrics"
)

const moduleName = "kvstore"

// How long OpenKVStore waits for the database before returning.
var openTimeout = 30 * time.Second

// KVStore is a key-value store.
type KVStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Close() error
}

type pogrebKVStore struct {
	db *pogreb.DB

	path    string
	logger  *log.Logger
	metrics metrics.StorageMetrics

	// Set once the database is open. The database may be opened in a
	// background goroutine.
	initialized atomic.Bool
}

var _ KVStore = (*pogrebKVStore)(nil)

func (s *pogrebKVStore) observe(op string, err error) {
	status := metrics.OutcomeSuccess
	if err != nil {
		status = metrics.OutcomeFailure
	}
	s.metrics.DatabaseOperations(op, status).Inc()
}

// Get implements KVStore.
func (s *pogrebKVStore) Get(key []byte) ([]byte, error) {
	if !s.initialized.Load() {
		return nil, fmt.Errorf("kvstore: not initialized yet")
	}
	timer := s.metrics.DatabaseLatencies("get")
	defer timer.ObserveDuration()
	value, err := s.db.Get(key)
	s.observe("get", err)
	return value, err
}

// Has implements KVStore.
func (s *pogrebKVStore) Has(key []byte) (bool, error) {
	if !s.initialized.Load() {
		return false, fmt.Errorf("kvstore: not initialized yet")
	}
	ok, err := s.db.Has(key)
	s.observe("has", err)
	return ok, err
}

// Put implements KVStore. The write is synced to disk before returning.
func (s *pogrebKVStore) Put(key []byte, value []byte) error {
	if !s.initialized.Load() {
		return fmt.Errorf("kvstore: not initialized yet")
	}
	timer := s.metrics.DatabaseLatencies("put")
	defer timer.ObserveDuration()
	err := s.db.Put(key, value)
	if err == nil {
		err = s.db.Sync()
	}
	s.observe("put", err)
	return err
}

// Close implements KVStore.
func (s *pogrebKVStore) Close() error {
	if !s.initialized.Load() {
		// If pogreb is in the middle of recovery in the background, it will
		// die and have to start over next time.
		s.logger.Warn("skipping closing uninitialized KVStore")
		return nil
	}
	s.logger.Info("closing KVStore", "path", s.path)
	return s.db.Close()
}

// Returns true if path exists. Uses simplified error handling
// to match pogreb's behavior.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Returns the files that match any of the patterns but none of the antipatterns.
func glob(patterns []string, antipatterns []string) ([]string, error) {
	files := map[string]struct{}{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			files[match] = struct{}{}
		}
	}
	for _, antipattern := range antipatterns {
		matches, err := filepath.Glob(antipattern)
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			delete(files, match)
		}
	}
	out := make([]string, 0, len(files))
	for k := range files {
		out = append(out, k)
	}
	return out, nil
}

// Moves the files matching the source patterns to dst.
func moveFiles(srcPatterns []string, srcAntipatterns []string, dst string) error {
	files, err := glob(srcPatterns, srcAntipatterns)
	if err != nil {
		return fmt.Errorf("unable to glob for files to move: %w", err)
	}
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return fmt.Errorf("unable to create destination directory %s: %w", dst, err)
	}
	for _, src := range files {
		target := filepath.Join(dst, filepath.Base(src))
		if err := os.Rename(src, target); err != nil {
			return fmt.Errorf("unable to move file %s to %s: %w", src, target, err)
		}
	}
	return nil
}

// Deletes all files that match the glob pattern.
func deleteFiles(pattern string) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("unable to glob for files %s to delete: %w", pattern, err)
	}
	var lastErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			lastErr = fmt.Errorf("unable to delete file %s: %w", f, err)
		}
	}
	return lastErr
}

// preBackup moves stale pogreb indexes out of the way when a reindex is
// pending, and drops repeatedly backed-up index files.
func (s *pogrebKVStore) preBackup() {
	backupDir := filepath.Join(filepath.Dir(s.path), filepath.Base(s.path)+".backup")
	if pathExists(filepath.Join(s.path, "lock")) {
		s.logger.Info("pogreb lock file found; preemptively backing up indexes", "path", s.path, "backup_path", backupDir)
		if !pathExists(backupDir) { // Keep the oldest backup.
			err := moveFiles(
				[]string{filepath.Join(s.path, "*")},
				[]string{
					filepath.Join(s.path, "*.psg"), // data segments
					filepath.Join(s.path, "lock"),  // triggers the reindex
				},
				backupDir,
			)
			if err != nil {
				s.logger.Warn("failed to move pogreb index files to backup directory", "err", err, "path", s.path, "backup_path", backupDir)
			}
		}
	}
	// pogreb renames old indexes to <name>.bac, which grows on every crash loop.
	if err := deleteFiles(filepath.Join(s.path, "*.bac.bac")); err != nil {
		s.logger.Warn("failed to delete backed-up pogreb index files", "err", err)
	}
}

func (s *pogrebKVStore) init() error {
	s.preBackup()

	s.logger.Info("(re)opening KVStore", "path", s.path)
	db, err := pogreb.Open(s.path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		s.logger.Error("failed to initialize pogreb store", "err", err)
		return err
	}

	s.db = db
	s.initialized.Store(true)
	s.logger.Info("KVStore opened", "path", s.path, "entries", db.Count())
	return nil
}

// OpenKVStore opens the database at path, creating it if needed.
//
// A database left dirty by a crash is reindexed on open, which can take long.
// If opening takes more than a while, the store is returned uninitialized and
// its operations fail until the reindex completes in the background.
func OpenKVStore(logger *log.Logger, path string) (KVStore, error) {
	store := &pogrebKVStore{
		logger:  logger.WithModule(moduleName),
		path:    path,
		metrics: metrics.NewDefaultStorageMetrics(moduleName, "pogreb"),
	}

	initErrCh := make(chan error, 1)
	go func() {
		initErrCh <- store.init()
	}()

	select {
	case err := <-initErrCh:
		if err != nil {
			return nil, err
		}
		return store, nil
	case <-time.After(openTimeout):
		store.logger.Warn("KVStore initialization timed out, continuing while the database is reindexing in the background")
		return store, nil
	}
}
