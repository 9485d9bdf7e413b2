package watcher

// nullSource stands in for a backend that could not be started.
type nullSource struct {
	reason error
	events chan Event
	errs   chan error
}

func newNullSource(reason error) *nullSource {
	s := &nullSource{
		reason: reason,
		events: make(chan Event),
		errs:   make(chan error),
	}
	close(s.events)
	close(s.errs)
	return s
}

func (s *nullSource) Name() string { return "none" }
func (s *nullSource) Add(string) error { return s.reason }
func (s *nullSource) Events() <-chan Event { return s.events }
func (s *nullSource) Errors() <-chan error { return s.errs }
func (s *nullSource) Close() error { return nil }
