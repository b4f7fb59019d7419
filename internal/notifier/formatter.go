package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

// StatusReport is the keeper summary shown for /status.
type StatusReport struct {
	Started        time.Time
	Now            time.Time
	DryRun         bool
	Ticks          int64
	SkippedTicks   int64
	PendingCredits int
	// Counts maps "table/outcome" to rows journaled since Started.
	Counts map[string]int
}

// PoolLine is one row of the /pools listing.
type PoolLine struct {
	Name      string
	Address   string
	Kick      bool
	Take      bool
	CollectLP bool
	Running   bool
	LastPrice string
	LastError string
}

// ActionLine describes one kick or take attempt.
type ActionLine struct {
	Kind     string
	Borrower string
	Outcome  string
	Err      string
}

// FormatStatus formats the keeper status for display.
func FormatStatus(r StatusReport) string {
	var b strings.Builder
	b.WriteString("🤖 <b>Keeper status</b>\n\n")
	if r.DryRun {
		b.WriteString("Mode: dry run\n")
	}
	b.WriteString(fmt.Sprintf("Uptime: %s\n", r.Now.Sub(r.Started).Truncate(time.Second)))
	b.WriteString(fmt.Sprintf("Ticks: %d (skipped pools: %d)\n", r.Ticks, r.SkippedTicks))
	b.WriteString(fmt.Sprintf("Pending reward credits: %d\n", r.PendingCredits))

	if len(r.Counts) == 0 {
		b.WriteString("\nNo actions journaled yet.\n")
		return b.String()
	}
	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("\n<b>Actions since start:</b>\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %s: %d\n", html.EscapeString(k), r.Counts[k]))
	}
	return b.String()
}

// FormatPools lists the configured pools and what is enabled on each.
func FormatPools(pools []PoolLine) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏊 <b>Pools</b> (%d)\n", len(pools)))
	for _, p := range pools {
		b.WriteString(fmt.Sprintf("\n<b>%s</b> <code>%s</code>\n", html.EscapeString(p.Name), p.Address))
		var handlers []string
		if p.Kick {
			handlers = append(handlers, "kick")
		}
		if p.Take {
			handlers = append(handlers, "take")
		}
		if p.CollectLP {
			handlers = append(handlers, "collect")
		}
		if len(handlers) == 0 {
			handlers = append(handlers, "none")
		}
		b.WriteString(fmt.Sprintf("  handlers: %s\n", strings.Join(handlers, ", ")))
		if p.LastPrice != "" {
			b.WriteString(fmt.Sprintf("  last price: %s\n", p.LastPrice))
		}
		if p.Running {
			b.WriteString("  evaluating now\n")
		}
		if p.LastError != "" {
			b.WriteString(fmt.Sprintf("  ⚠️ %s\n", html.EscapeString(p.LastError)))
		}
	}
	return b.String()
}

// FormatActions summarizes the kicks and takes sent for one pool in a tick.
// Returns "" when there is nothing worth reporting.
func FormatActions(pool string, lines []ActionLine) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚡ <b>%s</b>\n", html.EscapeString(pool)))
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %s <code>%s</code>: %s", l.Kind, l.Borrower, l.Outcome))
		if l.Err != "" {
			b.WriteString(fmt.Sprintf(" (%s)", html.EscapeString(l.Err)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDrain reports the result of a manual reward drain.
func FormatDrain(remaining int, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ Reward drain failed: %s\nCredits left: %d", html.EscapeString(err.Error()), remaining)
	}
	return fmt.Sprintf("✅ Reward drain finished. Credits left: %d", remaining)
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Commands:\n/status - keeper summary\n/pools - configured pools\n/drain - dispose pending rewards now"
}
