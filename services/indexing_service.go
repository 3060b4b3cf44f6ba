package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
)

// DocumentIngester is the part of the ingestion pipeline the directory sync
// drives.
type DocumentIngester interface {
	Ingest(ctx context.Context, doc models.Document) (*models.IngestResult, error)
	Purge(ctx context.Context, fileName string) error
}

// FileIndexingService keeps the collection in sync with a directory of
// documents. Files are keyed by their slash-separated path relative to the
// directory.
type FileIndexingService struct {
	ingester DocumentIngester
	log      *logrus.Entry

	mu     sync.Mutex
	hashes map[string]string
	locks  map[string]*sync.Mutex
}

// NewFileIndexingService creates a new indexing service.
func NewFileIndexingService(ingester DocumentIngester, log logrus.FieldLogger) *FileIndexingService {
	return &FileIndexingService{
		ingester: ingester,
		log:      logging.Component(log, "indexer"),
		hashes:   make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
	}
}

// ScanAndIndexDirectory ingests new and changed files under dirPath and
// purges files that disappeared since the previous scan.
func (s *FileIndexingService) ScanAndIndexDirectory(ctx context.Context, dirPath string) error {
	s.log.Infof("Starting directory scan for: %s", dirPath)

	seen := make(map[string]bool)
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !IsSupportedFile(path) {
			return nil
		}
		key, err := fileKey(dirPath, path)
		if err != nil {
			return err
		}
		seen[key] = true
		if err := s.indexFile(ctx, key, path); err != nil {
			s.log.WithError(err).WithField("file", key).Error("failed to index file")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dirPath, err)
	}

	for _, key := range s.knownFiles() {
		if !seen[key] {
			s.log.Infof("File deleted: %s. Removing from index...", key)
			if err := s.removeFile(ctx, key); err != nil {
				s.log.WithError(err).WithField("file", key).Error("failed to delete records")
			}
		}
	}
	s.log.Info("Directory scan finished.")
	return nil
}

// WatchDirectory re-ingests files as they are created or written and purges
// them when removed or renamed. Subdirectories are watched too, including ones
// created while watching. It blocks until ctx is cancelled. Events for the same
// file are handled one at a time in arrival order.
func (s *FileIndexingService) WatchDirectory(ctx context.Context, dirPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchTree(watcher, dirPath, nil); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dirPath, err)
	}
	log := logging.Component(s.log.Logger, "watcher")
	log.Infof("Watching directory: %s", dirPath)

	queue := newEventQueue(func(ev fileEvent) { s.handleEvent(ctx, log, ev) })
	defer queue.wait()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.dispatch(watcher, queue, dirPath, event, log)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("watcher error")
		case <-ctx.Done():
			log.Info("Context cancelled, shutting down watcher.")
			return nil
		}
	}
}

// fileEvent is a watcher event for one document, keyed like the index.
type fileEvent struct {
	fsnotify.Event
	key string
}

func (s *FileIndexingService) dispatch(watcher *fsnotify.Watcher, queue *eventQueue, root string, event fsnotify.Event, log *logrus.Entry) {
	key, err := fileKey(root, event.Name)
	if err != nil {
		log.WithError(err).Warn("ignoring event outside the watched directory")
		return
	}
	log.Debugf("event: %s", event)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files can land in a new directory before its watch is added.
			err := watchTree(watcher, event.Name, func(path string) {
				if k, err := fileKey(root, path); err == nil {
					queue.push(fileEvent{Event: fsnotify.Event{Name: path, Op: fsnotify.Create}, key: k})
				}
			})
			if err != nil {
				log.WithError(err).WithField("dir", key).Warn("failed to watch new directory")
			}
			return
		}
	}

	if IsSupportedFile(event.Name) {
		queue.push(fileEvent{Event: event, key: key})
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		_ = watcher.Remove(event.Name)
		prefix := key + "/"
		for _, known := range s.knownFiles() {
			if strings.HasPrefix(known, prefix) {
				path := filepath.Join(root, filepath.FromSlash(known))
				queue.push(fileEvent{Event: fsnotify.Event{Name: path, Op: fsnotify.Remove}, key: known})
			}
		}
	}
}

func (s *FileIndexingService) handleEvent(ctx context.Context, log *logrus.Entry, ev fileEvent) {
	switch {
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		log.Infof("File modified/created: %s. Re-indexing...", ev.key)
		if err := s.indexFile(ctx, ev.key, ev.Name); err != nil {
			log.WithError(err).WithField("file", ev.key).Error("failed to process file")
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		log.Infof("File removed/renamed: %s. Removing from index...", ev.key)
		if err := s.removeFile(ctx, ev.key); err != nil {
			log.WithError(err).WithField("file", ev.key).Error("failed to delete records")
		}
	}
}

// watchTree adds dir and every directory below it to the watcher. onFile, if
// set, is called for each supported file found on the way.
func watchTree(watcher *fsnotify.Watcher, dir string, onFile func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		if onFile != nil && IsSupportedFile(path) {
			onFile(path)
		}
		return nil
	})
}

// eventQueue runs handle for queued events. Events sharing a key are handled
// sequentially in push order; different keys proceed concurrently.
type eventQueue struct {
	handle func(fileEvent)

	mu      sync.Mutex
	pending map[string][]fileEvent
	wg      sync.WaitGroup
}

func newEventQueue(handle func(fileEvent)) *eventQueue {
	return &eventQueue{handle: handle, pending: make(map[string][]fileEvent)}
}

func (q *eventQueue) push(ev fileEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, draining := q.pending[ev.key]
	q.pending[ev.key] = append(q.pending[ev.key], ev)
	if draining {
		return
	}
	q.wg.Add(1)
	go q.drain(ev.key)
}

// drain handles the events of key until none are left. A key stays in pending
// while its drain goroutine runs.
func (q *eventQueue) drain(key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		events := q.pending[key]
		if len(events) == 0 {
			delete(q.pending, key)
			q.mu.Unlock()
			return
		}
		ev := events[0]
		q.pending[key] = events[1:]
		q.mu.Unlock()
		q.handle(ev)
	}
}

func (q *eventQueue) wait() {
	q.wg.Wait()
}

// indexFile ingests path unless its content hash is unchanged.
func (s *FileIndexingService) indexFile(ctx context.Context, key, path string) error {
	unlock := s.lockFile(key)
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	hash := contentHash(data)

	s.mu.Lock()
	unchanged := s.hashes[key] == hash
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	res, err := s.ingester.Ingest(ctx, models.Document{FileName: key, Data: data})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.hashes[key] = hash
	s.mu.Unlock()
	s.log.WithField("file", key).Infof("Indexed %d/%d chunks.", res.ChunksUpserted, res.ChunksCreated)
	return nil
}

func (s *FileIndexingService) removeFile(ctx context.Context, key string) error {
	unlock := s.lockFile(key)
	defer unlock()

	if err := s.ingester.Purge(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.hashes, key)
	s.mu.Unlock()
	return nil
}

func (s *FileIndexingService) lockFile(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *FileIndexingService) knownFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.hashes))
	for k := range s.hashes {
		keys = append(keys, k)
	}
	return keys
}

func fileKey(dir, path string) (string, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
