package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tilawa-app/tilawa/internal/config"
)

// viewSettings renders the Btop-style settings page
func (m RootModel) viewSettings() string {
	width := 74
	height := 18
	if m.width < width+4 {
		width = m.width - 4
	}
	if m.height < height+4 {
		height = m.height - 4
	}

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	var tabItems []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabItems = append(tabItems, ActiveTabStyle.Render(label))
		} else {
			tabItems = append(tabItems, TabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, tabItems...)

	rows := metadata[categories[m.SettingsActiveTab]]
	values := m.Settings.Values()

	leftWidth := 24
	rightWidth := width - leftWidth - 5

	var listLines []string
	for i, meta := range rows {
		if i == m.SettingsSelectedRow {
			listLines = append(listLines, SelectedItemStyle.Render("> "+meta.Label))
		} else {
			listLines = append(listLines, ItemStyle.Render("  "+meta.Label))
		}
	}
	listBox := lipgloss.NewStyle().Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left, listLines...))

	separator := lipgloss.NewStyle().
		Foreground(ColorGray).
		Render(strings.TrimSuffix(strings.Repeat("│\n", len(rows)), "\n"))

	var rightContent string
	if m.SettingsSelectedRow < len(rows) {
		meta := rows[m.SettingsSelectedRow]
		valueStr := formatSettingValue(values[meta.Key], meta.Type)
		if m.SettingsIsEditing {
			valueStr = m.SettingsInput.View()
		}

		valueDisplay := lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Bold(true).
			Render("Value: " + valueStr)

		descDisplay := lipgloss.NewStyle().
			Foreground(ColorGray).
			Width(rightWidth - 2).
			Render(meta.Description)

		rightContent = valueDisplay + "\n\n" + descDisplay
	}
	rightBox := lipgloss.NewStyle().Width(rightWidth).PaddingLeft(1).Render(rightContent)

	content := lipgloss.JoinHorizontal(lipgloss.Top, listBox, separator, rightBox)

	help := "[Enter] Edit  [R] Reset  [←/→] Tab  [Esc] Save & Close"
	if m.SettingsIsEditing {
		help = "[Enter] Apply  [Esc] Discard"
	}

	fullContent := lipgloss.JoinVertical(lipgloss.Left,
		tabBar,
		"",
		content,
		"",
		lipgloss.NewStyle().Foreground(ColorGray).Render(help),
	)

	box := renderBtopBox("Settings", fullContent, width, height, ColorNeonPink, false)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// formatSettingValue renders a raw setting for display.
func formatSettingValue(raw, typ string) string {
	switch typ {
	case "bool":
		if b, err := strconv.ParseBool(raw); err == nil {
			if b {
				return "On"
			}
			return "Off"
		}
	case "int64":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return humanize.IBytes(uint64(n))
		}
	case "string":
		if raw == "" {
			return "(default)"
		}
	}
	return raw
}
