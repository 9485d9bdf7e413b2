package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"prmscan/logger"
)

// fsnotifySource registers every directory below a root with the kernel
// notifier and follows directories created later.
type fsnotifySource struct {
	w      *fsnotify.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newFsnotifySource(opts SourceOptions) (*fsnotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &fsnotifySource{
		w:      w,
		events: make(chan Event, opts.QueueSize),
		errs:   make(chan error, 16),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *fsnotifySource) Name() string { return "fsnotify" }
func (s *fsnotifySource) Events() <-chan Event { return s.events }
func (s *fsnotifySource) Errors() <-chan error { return s.errs }

func (s *fsnotifySource) Add(root string) error {
	return s.addTree(root, false)
}

// addTree watches root and every directory below it. With emit set, regular
// entries found on the way are reported as created.
func (s *fsnotifySource) addTree(root string, emit bool) error {
	if err := s.w.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Debugf("Not watching %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if err := s.w.Add(path); err != nil {
				logger.Debugf("Not watching %s: %v", path, err)
				return fs.SkipDir
			}
			return nil
		}
		if emit && !s.send(Event{Path: path, Op: Create}) {
			return fs.SkipAll
		}
		return nil
	})
}

func (s *fsnotifySource) run() {
	defer s.wg.Done()
	defer close(s.errs)
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			s.handle(ev)
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			case <-s.done:
				return
			}
		}
	}
}

func (s *fsnotifySource) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := s.addTree(ev.Name, true); err != nil {
				logger.Debugf("Not watching %s: %v", ev.Name, err)
			}
			return
		}
		s.send(Event{Path: ev.Name, Op: Create})
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		s.send(Event{Path: ev.Name, Op: Modify})
	}
}

// send blocks until the consumer takes ev or the source is closed.
func (s *fsnotifySource) send(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *fsnotifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.w.Close()
		s.wg.Wait()
	})
	return err
}
