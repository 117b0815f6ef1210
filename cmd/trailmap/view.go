package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Hogigo/Bus2Hike/internal/core/domain"
)

var (
	colorBrand  = lipgloss.Color("35")
	colorSubtle = lipgloss.Color("241")

	titleStyle     = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(colorSubtle)
	statusBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 2)
	paneStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	focusedStyle   = paneStyle.BorderForeground(colorBrand)
	cardStyle      = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1)
	cursorStyle    = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

const maxRows = 12

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Bus2Hike trail map"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(m.cameraLine()))
	b.WriteString("\n\n")

	var panes []string
	if m.snap.Visibility.Sidebar {
		panes = append(panes, m.sidebarView())
	}
	panes = append(panes, m.stopsView())
	if m.snap.Visibility.AllTrails {
		panes = append(panes, m.trailsView())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...))
	b.WriteString("\n")

	if m.snap.Visibility.DetailCard && m.snap.Selection.Trail != nil {
		b.WriteString(cardStyle.Render(trailCard(*m.snap.Selection.Trail)))
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Render(m.statusLine()))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m model) cameraLine() string {
	c := m.snap.Camera
	line := fmt.Sprintf("camera %.5f,%.5f  %.0f m  pitch %.0f°", c.Center.Lat, c.Center.Lon, c.DistanceM, c.PitchDeg)
	if t := m.snap.Transition; t != nil {
		line += fmt.Sprintf("  [%s #%d]", t.Mode, t.Seq)
	}
	return line
}

func (m model) sidebarView() string {
	f := m.snap.Filters
	var b strings.Builder
	b.WriteString(titleStyle.Render("Search"))
	b.WriteString("\n")
	if s := m.snap.Selection.Stop; s != nil {
		fmt.Fprintf(&b, "from  %s\n", selectedStyle.Render(s.Name))
	} else {
		b.WriteString(statusStyle.Render("pick a stop") + "\n")
	}
	fmt.Fprintf(&b, "radius      %.0f km\n", f.RadiusKm)
	fmt.Fprintf(&b, "difficulty  %s\n", f.Difficulty)
	fmt.Fprintf(&b, "max time    %s\n", formatMaxDuration(f.MaxDuration))
	fmt.Fprintf(&b, "loops only  %t\n", f.CircularOnly)
	if m.snap.Visibility.SearchArea {
		b.WriteString(statusStyle.Render("search area shown"))
	}
	return paneStyle.Render(b.String())
}

func (m model) stopsView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Stops (%d)", len(m.snap.Stops))))
	b.WriteString("\n")

	selected := int64(-1)
	if s := m.snap.Selection.Stop; s != nil {
		selected = s.ID
	}
	start := window(m.stopCursor, len(m.snap.Stops))
	for i := start; i < len(m.snap.Stops) && i < start+maxRows; i++ {
		s := m.snap.Stops[i]
		line := s.Name
		if s.Distance != nil {
			line += statusStyle.Render(fmt.Sprintf("  %.1f km", *s.Distance/1000))
		}
		b.WriteString(m.row(paneStops, i == m.stopCursor, s.ID == selected, line))
	}
	return m.paneFrame(paneStops).Render(b.String())
}

func (m model) trailsView() string {
	trails := m.snap.MatchingTrails()
	var b strings.Builder
	header := fmt.Sprintf("Trails %d/%d", len(trails), len(m.snap.Trails))
	if m.snap.Loading {
		header += " …"
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n")

	if !m.snap.Visibility.TrailList {
		b.WriteString(statusStyle.Render("list hidden, markers only"))
		return m.paneFrame(paneTrails).Render(b.String())
	}

	selected := int64(-1)
	if t := m.snap.Selection.Trail; t != nil {
		selected = t.ID
	}
	start := window(m.trailCursor, len(trails))
	for i := start; i < len(trails) && i < start+maxRows; i++ {
		t := trails[i]
		line := t.Name
		if t.Difficulty != nil {
			line += statusStyle.Render("  " + *t.Difficulty)
		}
		b.WriteString(m.row(paneTrails, i == m.trailCursor, t.ID == selected, line))
	}
	return m.paneFrame(paneTrails).Render(b.String())
}

func (m model) paneFrame(p pane) lipgloss.Style {
	if m.focus == p {
		return focusedStyle
	}
	return paneStyle
}

func (m model) row(p pane, atCursor, selected bool, line string) string {
	prefix := "  "
	if atCursor && m.focus == p {
		prefix = cursorStyle.Render("> ")
	}
	if selected {
		line = selectedStyle.Render("● ") + line
	}
	return prefix + line + "\n"
}

func (m model) statusLine() string {
	if m.snap.LastError != "" {
		return m.status + "  (" + m.snap.LastError + ")"
	}
	return m.status
}

func trailCard(t domain.Trail) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(t.Name))
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString(t.Description + "\n")
	}
	var facts []string
	if t.Difficulty != nil {
		facts = append(facts, *t.Difficulty)
	}
	if t.LengthKm != nil {
		facts = append(facts, fmt.Sprintf("%.1f km", *t.LengthKm))
	}
	if t.DurationMinutes != nil {
		facts = append(facts, formatMaxDuration(domain.MaxDuration{Minutes: *t.DurationMinutes}))
	}
	if t.ElevationGainM != nil {
		facts = append(facts, fmt.Sprintf("+%d m", *t.ElevationGainM))
	}
	if t.Circular {
		facts = append(facts, "loop")
	}
	b.WriteString(statusStyle.Render(strings.Join(facts, " · ")))
	return b.String()
}

func formatMaxDuration(d domain.MaxDuration) string {
	total := d.Hours*60 + d.Minutes
	if total == 0 {
		return "any"
	}
	return fmt.Sprintf("%dh%02d", total/60, total%60)
}

// window returns the first visible row keeping cursor on screen.
func window(cursor, n int) int {
	if n <= maxRows || cursor < maxRows/2 {
		return 0
	}
	return min(cursor-maxRows/2, n-maxRows)
}
