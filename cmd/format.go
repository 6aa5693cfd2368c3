package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sketchplanations/sketchweb/pkg/gallery"
	"github.com/sketchplanations/sketchweb/pkg/search"
	"github.com/sketchplanations/sketchweb/pkg/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Margin(1, 0, 0, 0)

	rowStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(1, 0, 0, 0)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))
)

var titleCaser = cases.Title(language.English)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	// If it's within the last day, show relative time
	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}

	// If it's within the last week, show days ago
	if diff < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatResults renders a search and its gallery for the terminal.
func formatResults(res *search.Results, p search.Params) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Search: %s", titleCaser.String(res.Query))))
	b.WriteString("\n")

	if len(res.Images) == 0 {
		b.WriteString(noDataStyle.Render("No results"))
		b.WriteString("\n")
		return b.String()
	}

	for i, img := range res.Images {
		fmt.Fprintf(&b, "%3d. %s %s\n", i+1, img.Alt, metaStyle.Render(fmt.Sprintf("(%dx%d)", img.Width, img.Height)))
		fmt.Fprintf(&b, "     %s\n", urlStyle.Render(img.Href()))
	}

	b.WriteString(formatRows(res.Rows, p))
	b.WriteString(summaryStyle.Render(fmt.Sprintf("%d sketches in %d rows", len(res.Images), len(res.Rows))))
	b.WriteString("\n")
	return b.String()
}

// formatRows draws one box per gallery row with the placed widths.
func formatRows(rows []gallery.Row, p search.Params) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Gallery at %gpx, target row height %gpx, margin %gpx",
		p.ContainerWidth, p.TargetRowHeight, p.Margin)))
	b.WriteString("\n")

	for i, row := range rows {
		var cells []string
		for _, img := range row.Images {
			label := img.UID
			if label == "" {
				label = "image"
			}
			cells = append(cells, fmt.Sprintf("%s %.0fx%.0f @%.0f", label, img.DisplayWidth, img.DisplayHeight, img.X))
		}
		kind := "row"
		if row.Final {
			kind = "final row"
		}
		heading := metaStyle.Render(fmt.Sprintf("%s %d: height %.1f, width %.1f", kind, i+1, row.Height, row.Width))
		b.WriteString(rowStyle.Render(heading + "\n" + strings.Join(cells, "\n")))
		b.WriteString("\n")
	}
	return b.String()
}

// formatStats formats mirror statistics for display
func formatStats(stats *storage.Stats, path string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Mirror Statistics"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Database: %s\n", urlStyle.Render(path))
	fmt.Fprintf(&b, "Total documents: %s\n", formatNumber(stats.Documents))
	if stats.LastSync.IsZero() {
		b.WriteString("Last sync: never\n")
	} else {
		fmt.Fprintf(&b, "Last sync: %s\n", formatTime(stats.LastSync))
	}

	if stats.Documents == 0 {
		b.WriteString(noDataStyle.Render("The mirror is empty. Run `sketchweb sync` to fill it."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(headerStyle.Render("Documents by type"))
	b.WriteString("\n")
	for _, docType := range sortedKeys(stats.ByType) {
		n := stats.ByType[docType]
		fmt.Fprintf(&b, "  %-20s %8s (%.1f%%)\n", docType, formatNumber(n), float64(n)/float64(stats.Documents)*100)
	}
	return b.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
