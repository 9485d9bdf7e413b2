package output

import (
	"fmt"
	"io"
	"sync"

	"prmscan/risk"
)

// AlertSink receives every finding as soon as it is recorded.
type AlertSink interface {
	Alert(f risk.Finding)
}

// AlertPrinter writes operator alerts. Lines from concurrent callers are
// never interleaved.
type AlertPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewAlertPrinter(w io.Writer) *AlertPrinter {
	return &AlertPrinter{w: w}
}

func (p *AlertPrinter) Alert(f risk.Finding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[ALERT] %s - Risk Score: %d\n", f.File, f.RiskScore)
	for _, s := range f.Suggestions {
		fmt.Fprintf(p.w, "  -> Suggestion: %s\n", s)
	}
}

// ReportSaved confirms a persisted report.
func (p *AlertPrinter) ReportSaved(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\nFull report saved to %s\n", path)
}

type multiSink []AlertSink

func (m multiSink) Alert(f risk.Finding) {
	for _, s := range m {
		s.Alert(f)
	}
}

// Sinks fans a finding out to every non-nil sink in order.
func Sinks(sinks ...AlertSink) AlertSink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if e, ok := s.(*Exporter); ok && e == nil {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
