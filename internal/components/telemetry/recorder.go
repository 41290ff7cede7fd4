package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call made against a Recorder.
type Report struct {
	Kind   string
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps every report in memory, tests use it to
// assert that a component reported (or did not report) something.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) add(report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add(Report{Kind: "broken", ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add(Report{Kind: "warning", ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add(Report{Kind: "debug", ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add(Report{Kind: "count", ID: id, Count: count})
}

// Reports returns a copy of every report of the given kind whose id contains
// the given substring.
func (r *Recorder) Reports(kind, idContains string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Report
	for _, report := range r.reports {
		if report.Kind != kind {
			continue
		}
		if !strings.Contains(report.ID, idContains) {
			continue
		}
		out = append(out, report)
	}
	return out
}
