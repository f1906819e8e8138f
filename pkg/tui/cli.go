// Package tui renders procflow results for the terminal.
// Simple, streaming output: styled headers, tables and a progress bar.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/procflow/pkg/decouple"
	"github.com/logflow/procflow/pkg/graph"
	"github.com/logflow/procflow/pkg/session"
	"github.com/logflow/procflow/pkg/variants"
	"github.com/logflow/procflow/pkg/visible"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(white).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Section renders a "▸ TITLE" heading.
func Section(title string) string {
	return accentStyle.Render("▸ " + strings.ToUpper(title))
}

// Success renders a ✓ line.
func Success(msg string) string {
	return successStyle.Render("✓ " + msg)
}

// Muted renders secondary text.
func Muted(msg string) string {
	return mutedStyle.Render(msg)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// RenderSummary renders headline counts of a session.
func RenderSummary(s session.Summary) string {
	var b strings.Builder
	b.WriteString(Section("log summary") + "\n")
	rows := [][2]string{
		{"Cases", formatNumber(int64(s.Cases))},
		{"Events", formatNumber(int64(s.Events))},
		{"Activities", fmt.Sprintf("%d", max(s.Nodes-1, 0))},
		{"Transitions", fmt.Sprintf("%d", s.Edges)},
		{"Depth", fmt.Sprintf("%d", s.MaxDepth)},
		{"Variants", fmt.Sprintf("%d", s.Variants)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-12s", r[0]+":")), titleStyle.Render(r[1]))
	}
	return b.String()
}

// RenderVariants renders the mined variants with their share of cases.
func RenderVariants(vs []variants.Variant, totalCases int) string {
	t := newTable("#", "Cases", "Share", "Path")
	for i, v := range vs {
		names := make([]string, len(v.Path))
		for j, a := range v.Path {
			names[j] = TruncateLabel(FriendlyName(a), DefaultLabelWidth)
		}
		t.Row(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", v.Count),
			fmt.Sprintf("%.1f%%", 100*variants.Share(v, totalCases)),
			strings.Join(names, " → "),
		)
	}
	return t.Render()
}

// RenderEdges renders per-transition statistics.
func RenderEdges(edges []graph.Edge) string {
	t := newTable("Transition", "Cases", "Mean", "Median", "P90", "Actors", "Depts")
	for _, e := range edges {
		t.Row(edgeRow(e.Source, e.Target, e)...)
	}
	return t.Render()
}

// RenderView renders the grouped edges of a decouple view.
func RenderView(v *decouple.View) string {
	if v == nil || v.Empty() {
		return Muted("  no decoupled edges")
	}
	t := newTable("Group", "Transition", "Cases", "Mean", "Median", "P90", "Actors", "Depts")
	for _, e := range v.GroupEdges {
		t.Row(append([]string{e.GroupKey}, edgeRow(e.Source, e.Target, e.Edge)...)...)
	}
	return t.Render() + "\n" + Muted(fmt.Sprintf("  replaces %d base transitions", len(v.ReplacedEdgeIDs)))
}

func edgeRow(source, target string, e graph.Edge) []string {
	return []string{
		TruncateLabel(FriendlyName(source), DefaultLabelWidth) + " → " + TruncateLabel(FriendlyName(target), DefaultLabelWidth),
		fmt.Sprintf("%d", e.Count),
		formatMillis(int64(e.MeanMs)),
		formatMillis(e.MedianMs),
		formatMillis(e.P90Ms),
		fmt.Sprintf("%d", e.UniqueResources),
		fmt.Sprintf("%d", e.UniqueDepartments),
	}
}

// RenderVisible lists what a visibility policy shows.
func RenderVisible(r visible.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Section("visible"), Muted(fmt.Sprintf("(%d nodes, %d transitions)", len(r.Nodes), len(r.Edges))))
	for _, id := range r.Edges.Sorted() {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(r.Stubs) > 0 {
		b.WriteString(Section("more") + "\n")
		for _, s := range r.Stubs {
			fmt.Fprintf(&b, "  %s %s\n", Muted("…"), s.EdgeID)
		}
	}
	if len(r.Terminals) > 0 {
		fmt.Fprintf(&b, "%s %s\n", Section("ends"), strings.Join(r.Terminals.Sorted(), ", "))
	}
	return b.String()
}

// RenderNodeVisits lists the cases that reached a node.
func RenderNodeVisits(node string, visits []graph.NodeVisit) string {
	t := newTable("Case", "Visits", "Latest")
	for _, v := range visits {
		t.Row(v.CaseID, fmt.Sprintf("%d", v.Count), v.Latest.Format(time.DateTime))
	}
	return Section(FriendlyName(node)) + "\n" + t.Render()
}

// RenderTraversals lists individual traversals of one transition.
func RenderTraversals(ts []graph.Traversal) string {
	t := newTable("Case", "Start", "Duration", "Resource", "Department")
	for _, tr := range ts {
		t.Row(tr.CaseID, tr.StartTS.Format(time.DateTime), formatMillis(tr.DurationMs), tr.Resource, tr.Department)
	}
	return t.Render()
}

// formatMillis formats a millisecond duration in a human-readable way.
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 48*time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	default:
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar for multi-file loads.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
