package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/ramp"
)

// Report is the final result of a run.
type Report struct {
	Name            string                `json:"name"`
	Summary         *ramp.Summary         `json:"summary"`
	Metrics         *metrics.Snapshot     `json:"metrics"`
	SteadyStateRate float64               `json:"steadyStateRate,omitempty"`
	Phases          []metrics.PhaseChange `json:"phases,omitempty"`
	TimeSeries      []*metrics.TimeBucket `json:"timeSeries,omitempty"`
}

// NewReport assembles a report. The engine should be stopped first so the
// final bucket is included.
func NewReport(name string, summary *ramp.Summary, engine *metrics.Engine) *Report {
	r := &Report{Name: name, Summary: summary}
	if engine != nil {
		r.Metrics = engine.GetSnapshot()
		r.SteadyStateRate, _ = engine.SteadyStateRate()
		r.Phases = engine.GetPhaseHistory()
		r.TimeSeries = engine.GetTimeSeries()
	}
	return r
}

// Completed reports whether the timeline ran to the end and every worker
// finished inside the graceful stop window.
func (r *Report) Completed() bool {
	return r.Summary != nil && !r.Summary.Interrupted && !r.Summary.DrainTimedOut
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
