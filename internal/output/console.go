// Package output renders run progress and results for humans and machines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/ramp"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	ruleWidth = 56
	boxWidth  = 55
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveWorkers int
	TargetWorkers int

	Iterations    int64
	IterationRate float64
	Failed        int64
	FailureRate   float64

	DurationP95 time.Duration
	DurationAvg time.Duration

	Phase        string
	StageName    string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// NewLiveStats combines controller stats and a metrics snapshot. Either may
// be nil.
func NewLiveStats(stats *ramp.Stats, snap *metrics.Snapshot) *LiveStats {
	live := &LiveStats{Phase: string(metrics.PhaseOf(stats))}

	if stats != nil {
		live.Progress = stats.Progress
		live.Elapsed = stats.Elapsed
		live.Remaining = stats.TotalDuration - stats.Elapsed
		if live.Remaining < 0 {
			live.Remaining = 0
		}
		live.ActiveWorkers = stats.ActiveWorkers
		live.TargetWorkers = stats.TargetWorkers
		live.Iterations = stats.Iterations
		live.StageName = stats.CurrentStageName
		live.CurrentStage = stats.CurrentStage + 1
		live.TotalStages = stats.TotalStages
	}

	if snap != nil {
		live.Iterations = snap.Iterations
		live.IterationRate = snap.IterationRate
		live.Failed = snap.Iterations - snap.OK
		live.FailureRate = snap.FailureRate
		live.DurationP95 = snap.Duration.P95
		live.DurationAvg = snap.Duration.Mean
	}

	return live
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Name        string
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console manages live console output during a run.
type Console struct {
	name   string
	writer io.Writer
	isTTY  bool
	quiet  bool
	colors *ColorScheme

	mu          sync.Mutex
	linesOutput int // lines in the live display
}

// NewConsole creates a console output handler.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Name == "" {
		cfg.Name = "surge"
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)

	colors := NoColorScheme()
	switch {
	case cfg.NoColor:
	case cfg.ForceColors, isTTY && supportsColors():
		colors = ForcedColorScheme()
	}

	return &Console{
		name:   cfg.Name,
		writer: cfg.Writer,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
		colors: colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header and the stage plan.
func (c *Console) PrintHeader(timeline *ramp.Timeline) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln(rule)
	c.writeln(c.colors.Title.Sprintf("%s - Running [ramping workers]", c.name))
	c.writeln(rule)

	if timeline != nil {
		c.writeln(fmt.Sprintf("Start:    %s workers", c.colors.Value.Sprint(timeline.StartVUs())))
		for i, s := range timeline.Stages() {
			c.writeln(fmt.Sprintf("Stage %d:  %-10s %s -> %s workers",
				i+1,
				formatDuration(s.Duration),
				c.colors.Dim.Sprint(s.Name),
				c.colors.Value.Sprint(s.Target)))
		}
		c.writeln(fmt.Sprintf("Total:    %s", c.colors.Value.Sprint(formatDuration(timeline.TotalDuration()))))
	}
	c.writeln("")
}

// Progress renders stats the way the output supports: a redrawn box on a
// terminal, a status line otherwise.
func (c *Console) Progress(stats *LiveStats) {
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update redraws the live display.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintNonInteractiveUpdate prints a one-line status.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *Console) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s %.0f%% | workers: %d/%d | iterations: %d | rate: %.1f/s | failed: %d (%s) | p95: %s",
		formatDuration(stats.Elapsed),
		stats.Phase,
		stats.Progress*100,
		stats.ActiveWorkers,
		stats.TargetWorkers,
		stats.Iterations,
		stats.IterationRate,
		stats.Failed,
		formatPercent(stats.FailureRate),
		formatDurationShort(stats.DurationP95)))
}

// PrintSummary prints the final summary.
func (c *Console) PrintSummary(r *Report) {
	if c.quiet {
		if r.Completed() {
			c.writeln(c.colors.Good.Sprint("COMPLETED"))
		} else {
			c.writeln(c.colors.Warn.Sprint("INTERRUPTED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	c.linesOutput = 0

	status := c.colors.Good.Sprint("Completed ✓")
	switch {
	case r.Summary != nil && r.Summary.Interrupted:
		status = c.colors.Warn.Sprint("Interrupted")
	case r.Summary != nil && r.Summary.DrainTimedOut:
		status = c.colors.Warn.Sprint("Completed (graceful stop expired)")
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, ruleWidth))
	c.writeln("")
	c.writeln(rule)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(c.name), status))
	c.writeln(rule)
	c.writeln("")

	if s := r.Summary; s != nil {
		c.writeln(fmt.Sprintf("Run ID:        %s", c.colors.Dim.Sprint(s.RunID)))
		c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(s.Duration))))
		c.writeln(fmt.Sprintf("Peak Workers:  %s", c.colors.Value.Sprint(s.PeakWorkers)))
		if s.SpawnFailures > 0 {
			c.writeln(fmt.Sprintf("Spawn Fails:   %s", c.colors.Bad.Sprint(formatNumber(s.SpawnFailures))))
		}
	}

	if m := r.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Iterations:    %s (%.1f/s)", c.colors.Value.Sprint(formatNumber(m.Iterations)), m.IterationRate))
		if r.SteadyStateRate > 0 {
			c.writeln(fmt.Sprintf("Steady Rate:   %s", c.colors.Value.Sprintf("%.1f/s", r.SteadyStateRate)))
		}

		success := 1.0
		if m.Iterations > 0 {
			success = float64(m.OK) / float64(m.Iterations)
		}
		c.writeln(fmt.Sprintf("Success Rate:  %s  (check failures: %s, errors: %s)",
			c.colors.rateColor(success).Sprint(formatPercent(success)),
			formatNumber(m.CheckFailed),
			formatNumber(m.Errors)))
		c.writeln("")

		c.writeln(c.colors.Title.Sprint("Iteration Duration:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Duration.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Duration.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Duration.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Duration.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Duration.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Duration.Max)))
		c.writeln("")

		if len(m.Checks) > 0 {
			c.writeln(c.colors.Title.Sprint("Checks:"))
			for _, check := range m.Checks {
				mark := c.colors.Good.Sprint("✓")
				if check.Fails > 0 {
					mark = c.colors.Bad.Sprint("✗")
				}
				c.writeln(fmt.Sprintf("  %s %-30s %s  (%s / %s)",
					mark,
					check.Name,
					c.colors.rateColor(check.PassRate).Sprint(formatPercent(check.PassRate)),
					formatNumber(check.Passes),
					formatNumber(check.Passes+check.Fails)))
			}
			c.writeln("")
		}
	}
}

// clearLive erases the live display. Caller holds mu.
func (c *Console) clearLive() {
	if !c.isTTY || c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
}

// renderLiveStats renders the live statistics display.
func (c *Console) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Progress.Sprint(renderProgressBar(stats.Progress, 40)),
		c.colors.Title.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.Dim.Sprint(timeInfo)))

	stage := stats.Phase
	if stats.TotalStages > 0 {
		stage = fmt.Sprintf("%s %s (%d/%d)", stats.Phase, stats.StageName, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Stage.Sprint(stage)))
	lines = append(lines, "")

	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("Workers: %s / %d", c.colors.Value.Sprint(stats.ActiveWorkers), stats.TargetWorkers),
		fmt.Sprintf("Iterations:  %s", c.colors.Value.Sprint(formatNumber(stats.Iterations)))))

	failColor := c.colors.rateColor(1 - stats.FailureRate)
	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("Rate:    %s", c.colors.Good.Sprintf("%.1f/s", stats.IterationRate)),
		fmt.Sprintf("Failed:      %s (%s)",
			failColor.Sprint(stats.Failed),
			failColor.Sprint(formatPercent(stats.FailureRate)))))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("P95:     %s", c.colors.Latency.Sprint(formatDurationShort(stats.DurationP95))),
		fmt.Sprintf("Avg:         %s", c.colors.Latency.Sprint(formatDurationShort(stats.DurationAvg)))))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *Console) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2 // 2 borders + 2 padding

	leftPadding := colWidth - len([]rune(stripANSI(left)))
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - len([]rune(stripANSI(right)))
	if rightPadding < 0 {
		rightPadding = 0
	}

	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border, left, strings.Repeat(" ", leftPadding),
		border, right, strings.Repeat(" ", rightPadding),
		border)
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}
