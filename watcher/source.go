// Package watcher re-evaluates files as the filesystem reports changes.
package watcher

import (
	"errors"
	"fmt"
	"time"

	"prmscan/logger"
)

// ErrBackendUnavailable is returned by sources that cannot deliver events.
var ErrBackendUnavailable = errors.New("watch backend unavailable")

type Op int

const (
	Create Op = iota + 1
	Modify
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Modify:
		return "modify"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

type Event struct {
	Path string
	Op   Op
}

// NotificationSource delivers create and modify events for registered roots.
// Implementations own one background goroutine, close both channels when it
// exits and join it in Close.
type NotificationSource interface {
	Add(root string) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
	Name() string
}

type SourceOptions struct {
	QueueSize    int
	PollInterval time.Duration
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// NewSource builds the source for backend. A backend that cannot be
// initialised degrades to the next one; auto tries fsnotify then poll.
func NewSource(backend string, opts SourceOptions) NotificationSource {
	opts = opts.withDefaults()
	switch backend {
	case "none":
		return newNullSource(fmt.Errorf("%w: disabled by configuration", ErrBackendUnavailable))
	case "poll":
		return newPollSource(opts)
	case "fsnotify":
		src, err := newFsnotifySource(opts)
		if err != nil {
			return newNullSource(fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
		}
		return src
	default:
		src, err := newFsnotifySource(opts)
		if err == nil {
			return src
		}
		logger.Debugf("fsnotify unavailable, falling back to polling: %v", err)
		return newPollSource(opts)
	}
}
