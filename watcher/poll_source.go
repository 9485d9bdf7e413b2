package watcher

import (
	"encoding/binary"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"prmscan/logger"
	"prmscan/metadata"
	"prmscan/utils"
)

// pollSource re-walks its roots on a ticker and compares a per-path
// signature of the attributes the risk rules depend on.
type pollSource struct {
	interval time.Duration
	events   chan Event
	errs     chan error
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	mu    sync.Mutex
	roots []string
	sigs  map[string]uint64
}

func newPollSource(opts SourceOptions) *pollSource {
	s := &pollSource{
		interval: opts.PollInterval,
		events:   make(chan Event, opts.QueueSize),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
		sigs:     make(map[string]uint64),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *pollSource) Name() string { return "poll" }
func (s *pollSource) Events() <-chan Event { return s.events }
func (s *pollSource) Errors() <-chan error { return s.errs }

// Add records the baseline for root. Files present now never produce events.
func (s *pollSource) Add(root string) error {
	current, err := snapshot(root)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots, root)
	for path, sig := range current.sigs {
		s.sigs[path] = sig
	}
	return nil
}

func (s *pollSource) run() {
	defer s.wg.Done()
	defer close(s.errs)
	defer close(s.events)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			for _, ev := range s.diff() {
				select {
				case s.events <- ev:
				case <-s.done:
					return
				}
			}
		}
	}
}

// diff rescans every root and updates the stored signatures.
func (s *pollSource) diff() []Event {
	s.mu.Lock()
	roots := append([]string(nil), s.roots...)
	s.mu.Unlock()

	seen := make(map[string]uint64)
	var held []string
	for _, root := range roots {
		current, err := snapshot(root)
		if err != nil {
			select {
			case s.errs <- err:
			default:
				logger.Debugf("Dropped poll error: %v", err)
			}
			held = append(held, root)
			continue
		}
		for path, sig := range current.sigs {
			seen[path] = sig
		}
		held = append(held, current.held...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for path, sig := range seen {
		prev, known := s.sigs[path]
		switch {
		case !known:
			out = append(out, Event{Path: path, Op: Create})
		case prev != sig:
			out = append(out, Event{Path: path, Op: Modify})
		}
	}
	for path := range s.sigs {
		if _, ok := seen[path]; ok {
			continue
		}
		if utils.IsPathWithin(path, roots) && !utils.IsPathWithin(path, held) {
			delete(s.sigs, path)
		}
	}
	for path, sig := range seen {
		s.sigs[path] = sig
	}
	return out
}

func (s *pollSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// pollScan is one walk of a root. held lists files and directories that
// exist but could not be read this time; signatures recorded under them are
// kept rather than forgotten.
type pollScan struct {
	sigs map[string]uint64
	held []string
}

// snapshot walks root and signs every entry that is not a directory.
// Entries that vanish mid-walk are left out.
func snapshot(root string) (pollScan, error) {
	scan := pollScan{sigs: make(map[string]uint64)}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if !errors.Is(err, fs.ErrNotExist) {
				scan.held = append(scan.held, path)
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		meta, err := metadata.Capture(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				scan.held = append(scan.held, path)
			}
			return nil
		}
		scan.sigs[path] = signature(meta)
		return nil
	})
	return scan, err
}

func signature(meta metadata.FileMetadata) uint64 {
	var buf [8]byte
	d := xxhash.New()
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	write(uint64(meta.Mode))
	write(uint64(meta.Size))
	write(uint64(meta.ModTime.UnixNano()))
	write(uint64(meta.ChangeTime.UnixNano()))
	write(uint64(int64(meta.UID)))
	return d.Sum64()
}
