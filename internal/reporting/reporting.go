// Package reporting keeps an in-memory journal of payment runs and produces
// retrospective summaries over it.
package reporting

import (
	"sync"
	"time"
)

// Entry is one payment run as recorded by the orchestrator.
type Entry struct {
	Timestamp    time.Time `json:"timestamp"`
	OrderID      string    `json:"orderId"`
	Outcome      string    `json:"outcome"` // completed | failed | timeout | canceled
	Status       string    `json:"status"`  // final gateway status
	Amount       int64     `json:"amount"`  // minor units
	Currency     string    `json:"currency"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Journal is a concurrency-safe append-only run log.
type Journal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewJournal creates an empty Journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Append records one run.
func (j *Journal) Append(e Entry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
}

// Entries returns a copy of the recorded runs.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

// Report summarizes a set of run entries.
type Report struct {
	TotalRuns        int              `json:"totalRuns"`
	Completed        int              `json:"completed"`
	Failed           int              `json:"failed"`
	TimedOut         int              `json:"timedOut"`
	Canceled         int              `json:"canceled"`
	AmountByCurrency map[string]int64 `json:"amountByCurrency"` // completed runs only
	ErrorBreakdown   map[string]int   `json:"errorBreakdown"`   // by error code, failures only
	From             time.Time        `json:"from"`
	To               time.Time        `json:"to"`
}

// Generate produces a Report from the given entries. An empty input yields an
// empty report with initialized maps.
func Generate(entries []Entry) *Report {
	report := &Report{
		AmountByCurrency: make(map[string]int64),
		ErrorBreakdown:   make(map[string]int),
	}
	for _, e := range entries {
		report.TotalRuns++
		switch e.Outcome {
		case "completed":
			report.Completed++
			report.AmountByCurrency[e.Currency] += e.Amount
		case "timeout":
			report.TimedOut++
		case "canceled":
			report.Canceled++
		default:
			report.Failed++
			code := e.ErrorCode
			if code == "" {
				code = "UNCLASSIFIED"
			}
			report.ErrorBreakdown[code]++
		}
		if report.From.IsZero() || e.Timestamp.Before(report.From) {
			report.From = e.Timestamp
		}
		if e.Timestamp.After(report.To) {
			report.To = e.Timestamp
		}
	}
	return report
}
