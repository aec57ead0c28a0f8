package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// Define the Layout Ratios
const (
	ListWidthRatio = 0.6 // List takes 60% width
)

const logoText = `
████████ ██ ██       █████  ██     ██  █████
   ██    ██ ██      ██   ██ ██     ██ ██   ██
   ██    ██ ██      ███████ ██  █  ██ ███████
   ██    ██ ██      ██   ██ ██ ███ ██ ██   ██
   ██    ██ ███████ ██   ██  ███ ███  ██   ██`

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case InputState:
		content := lipgloss.JoinVertical(lipgloss.Left,
			"",
			lipgloss.JoinHorizontal(lipgloss.Left,
				lipgloss.NewStyle().Width(12).Foreground(ColorLightGray).Render("Reference:"),
				m.input.View()),
			"",
			lipgloss.NewStyle().Foreground(ColorGray).Render("A surah number downloads every verse."),
			"",
			lipgloss.NewStyle().Foreground(ColorLightGray).Render("[Enter] Download  [Esc] Cancel"),
		)
		box := renderBtopBox("Add Download", lipgloss.NewStyle().Padding(0, 2).Render(content), PopupWidth, PopupHeight, ColorNeonPink, false)
		return m.withFooter(lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, box))

	case DetailState:
		if d := m.GetSelectedDownload(); d != nil {
			w := min(m.width-4, 80)
			box := renderBtopBox(d.DisplayName, renderFocusedDetails(d, w-4, true), w, min(m.height-2, 26), ColorNeonCyan, false)
			return m.withFooter(lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, box))
		}

	case SettingsState:
		return m.viewSettings()
	}

	return m.withFooter(m.viewDashboard())
}

func (m RootModel) viewDashboard() string {
	availableHeight := m.height - 2
	availableWidth := m.width - 4

	leftWidth := int(float64(availableWidth) * ListWidthRatio)
	rightWidth := availableWidth - leftWidth - 2

	headerHeight := 8
	listHeight := max(availableHeight-headerHeight, 10)
	graphHeight := max(availableHeight/3, 9)
	detailHeight := max(availableHeight-graphHeight, 10)

	active, queued, done := m.CalculateStats()

	headerBox := lipgloss.NewStyle().
		Width(leftWidth).
		Height(headerHeight).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			LogoStyle.Render(logoText),
			"",
			lipgloss.NewStyle().Foreground(ColorGray).Render(m.versionLine()),
		))

	currentSpeed := 0.0
	if len(m.SpeedHistory) > 0 {
		currentSpeed = m.SpeedHistory[len(m.SpeedHistory)-1]
	}
	speedTitle := lipgloss.NewStyle().
		Width(rightWidth - 4).
		Align(lipgloss.Right).
		Foreground(ColorNeonPink).
		Bold(true).
		Render(fmt.Sprintf("Current: %.2f MB/s", currentSpeed))
	graphBox := renderBtopBox("Network Activity", lipgloss.JoinVertical(lipgloss.Left,
		speedTitle,
		"",
		renderSpeedPanel(m.SpeedHistory, rightWidth-5, max(graphHeight-4, 1)),
	), rightWidth, graphHeight, ColorNeonCyan, false)

	listInner := lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left,
		renderTabs(m.activeTab, active, queued, done),
		"",
		m.renderList(leftWidth-8, listHeight-7),
	))
	listBox := renderBtopBox("Downloads", listInner, leftWidth, listHeight, ColorNeonPink, true)

	var detailContent string
	if d := m.GetSelectedDownload(); d != nil {
		detailContent = renderFocusedDetails(d, rightWidth-4, false)
	} else {
		detailContent = lipgloss.Place(rightWidth-4, detailHeight-4, lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("No Download Selected"))
	}
	detailBox := renderBtopBox("Details", detailContent, rightWidth, detailHeight, ColorGray, true)

	leftColumn := lipgloss.JoinVertical(lipgloss.Left, headerBox, listBox)
	rightColumn := lipgloss.JoinVertical(lipgloss.Left, graphBox, detailBox)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftColumn, rightColumn)
}

func (m RootModel) versionLine() string {
	if m.Version == "" {
		return "recitations, offline"
	}
	return "v" + strings.TrimPrefix(m.Version, "v")
}

// withFooter appends the notification or the key help.
func (m RootModel) withFooter(body string) string {
	var footer string
	switch {
	case m.notification != "" && m.notificationErr:
		footer = lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, ErrorNotificationStyle.Render(m.notification))
	case m.notification != "":
		footer = lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, NotificationStyle.Render(m.notification))
	default:
		footer = lipgloss.NewStyle().Foreground(ColorLightGray).Padding(0, 1).
			Render(" [Tab] Tabs  [A] Add  [Enter] Details  [R] Retry  [C] Cancel  [X] Delete  [S] Settings  [Q] Quit")
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m RootModel) renderList(width, height int) string {
	rows := m.visible()
	if len(rows) == 0 {
		return lipgloss.Place(width, max(height, 1), lipgloss.Center, lipgloss.Center,
			lipgloss.NewStyle().Foreground(ColorNeonCyan).Render("No downloads"))
	}

	// Keep the cursor in view.
	start := 0
	if height > 0 && m.cursor >= height {
		start = m.cursor - height + 1
	}

	var lines []string
	for i := start; i < len(rows) && (height <= 0 || i < start+height); i++ {
		d := rows[i]
		pct := fmt.Sprintf("%3d%%", d.Progress)
		name := truncateString(d.DisplayName, max(width-12, 8))
		line := fmt.Sprintf("%s %s", statusIcon(d), name)
		pad := max(width-lipgloss.Width(line)-len(pct), 1)
		line += strings.Repeat(" ", pad) + pct
		if i == m.cursor {
			lines = append(lines, SelectedItemStyle.Render(line))
		} else {
			lines = append(lines, ItemStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func statusIcon(d *DownloadModel) string {
	switch {
	case d.Status == download.StatusFailed:
		return "✖"
	case d.Status == download.StatusCompleted && len(d.FailedFiles) > 0:
		return "◐"
	case d.Status == download.StatusCompleted:
		return "✔"
	case d.Status == download.StatusDownloading:
		return "⬇"
	default:
		return "o"
	}
}

// renderFocusedDetails renders the info pane. full adds the file list used by
// the detail page.
func renderFocusedDetails(d *DownloadModel, w int, full bool) string {
	contentWidth := max(w-6, 10)

	divider := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(strings.Repeat("─", contentWidth))

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, StatsLabelStyle.Render(label), StatsValueStyle.Render(value))
	}

	info := []string{row("Name:", truncateString(d.DisplayName, contentWidth-14))}
	if d.Native != "" {
		info = append(info, row("Native:", d.Native))
	}
	info = append(info, row("Status:", getDownloadStatus(d)))
	if d.FileCount > 0 {
		doneFiles, failedFiles := d.files.Counts()
		info = append(info, row("Files:", fmt.Sprintf("%d/%d done, %d failed", doneFiles, d.FileCount, failedFiles)))
	}
	size := d.SizeBytes
	if size == 0 {
		size = d.Total
	}
	info = append(info, row("Size:", utils.ConvertBytesToHumanReadable(size)))

	d.progress.Width = max(w-ProgressBarWidthOffset, 20)
	progressSection := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true).Render("Progress"),
		"",
		lipgloss.NewStyle().MarginLeft(1).Render(d.progress.ViewAs(float64(d.Progress)/100)),
	)

	stats := []string{
		row("Speed:", fmt.Sprintf("%.2f MB/s", d.Speed/Megabyte)),
		row("Elapsed:", d.Elapsed.Round(time.Second).String()),
	}
	if d.Status == download.StatusDownloading && d.File != "" {
		stats = append(stats, row("File:", fmt.Sprintf("%s (%s / %s)", d.File,
			utils.ConvertBytesToHumanReadable(d.Downloaded), utils.ConvertBytesToHumanReadable(d.Total))))
	}

	sections := []string{
		"",
		lipgloss.JoinVertical(lipgloss.Left, info...),
		divider,
		"",
		progressSection,
		divider,
		"",
		lipgloss.JoinVertical(lipgloss.Left, stats...),
	}

	if len(d.files.States) > 1 {
		grid := d.files
		grid.Width = contentWidth
		grid.Height = 3
		if full {
			grid.Height = 6
		}
		sections = append(sections, divider, "", grid.View())
	}

	if d.LocalPath != "" {
		sections = append(sections, divider, row("Path:",
			lipgloss.NewStyle().Foreground(ColorLightGray).Render(truncateString(d.LocalPath, contentWidth-14))))
	}
	if d.err != "" {
		sections = append(sections, row("Error:",
			lipgloss.NewStyle().Foreground(ColorStateError).Render(truncateString(d.err, contentWidth-14))))
	}
	if full && len(d.FailedFiles) > 0 {
		sections = append(sections, row("Missing:", truncateString(strings.Join(d.FailedFiles, ", "), contentWidth-14)))
	}

	return lipgloss.NewStyle().
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func getDownloadStatus(d *DownloadModel) string {
	style := lipgloss.NewStyle()

	switch {
	case d.Status == download.StatusFailed:
		return style.Foreground(ColorStateError).Render("✖ Failed")
	case d.Status == download.StatusCompleted && len(d.FailedFiles) > 0:
		return style.Foreground(ColorStatePartial).Render("◐ Completed with gaps")
	case d.Status == download.StatusCompleted:
		return style.Foreground(ColorStateDone).Render("✔ Completed")
	case d.Status == download.StatusDownloading:
		return style.Foreground(ColorStateDownloading).Render("⬇ Downloading")
	default:
		return style.Foreground(ColorStateQueued).Render("o Queued")
	}
}

func truncateString(s string, i int) string {
	runes := []rune(s)
	if i > 0 && len(runes) > i {
		return string(runes[:i]) + "..."
	}
	return s
}

func renderTabs(activeTab, activeCount, queuedCount, doneCount int) string {
	tabs := []struct {
		Label string
		Count int
	}{
		{"Queued", queuedCount},
		{"Active", activeCount},
		{"Done", doneCount},
	}
	var rendered []string
	for i, t := range tabs {
		style := TabStyle
		if i == activeTab {
			style = ActiveTabStyle
		}
		rendered = append(rendered, style.Render(fmt.Sprintf("%s (%d)", t.Label, t.Count)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// renderBtopBox creates a btop-style box with title embedded in the top border
// titleRight: if true, title appears on the right side; if false, title appears on the left
// Example (left):  ╭─ TITLE ─────────────────────────────────╮
// Example (right): ╭─────────────────────────────────── TITLE ─╮
func renderBtopBox(title string, content string, width, height int, borderColor lipgloss.Color, titleRight bool) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)

	innerWidth := max(width-2, 1)
	border := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Foreground(ColorNeonCyan).Bold(true)

	titleText := fmt.Sprintf(" %s ", truncateString(title, max(innerWidth-8, 1)))
	remaining := max(innerWidth-lipgloss.Width(titleText)-1, 0)

	var topBorder string
	if titleRight {
		topBorder = border.Render(topLeft+strings.Repeat(horizontal, remaining)) +
			titleStyle.Render(titleText) +
			border.Render(horizontal+topRight)
	} else {
		topBorder = border.Render(topLeft+horizontal) +
			titleStyle.Render(titleText) +
			border.Render(strings.Repeat(horizontal, remaining)+topRight)
	}
	bottomBorder := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)

	contentLines := strings.Split(content, "\n")
	innerHeight := height - 2

	wrapped := make([]string, 0, max(innerHeight, 0))
	for i := 0; i < innerHeight; i++ {
		line := ""
		if i < len(contentLines) {
			line = contentLines[i]
		}
		if lw := lipgloss.Width(line); lw < innerWidth {
			line += strings.Repeat(" ", innerWidth-lw)
		} else if lw > innerWidth {
			line = truncateVisible(line, innerWidth)
		}
		wrapped = append(wrapped, border.Render(vertical)+line+border.Render(vertical))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		topBorder,
		strings.Join(wrapped, "\n"),
		bottomBorder,
	)
}

// truncateVisible cuts a styled line to width cells, then pads it back out.
func truncateVisible(line string, width int) string {
	out := lipgloss.NewStyle().MaxWidth(width).Render(line)
	if lw := lipgloss.Width(out); lw < width {
		out += strings.Repeat(" ", width-lw)
	}
	return out
}
