package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var graphBlocks = []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// graphScale rounds the peak of data up to a readable axis maximum in MB/s.
func graphScale(data []float64) float64 {
	peak := 1.0
	for _, v := range data {
		if v > peak {
			peak = v
		}
	}
	peak *= 1.1
	if peak >= 5 {
		return float64(int((peak+4.99)/5) * 5)
	}
	return float64(int(peak + 0.99))
}

// renderBarGraph draws data right-aligned as block columns over a dashed grid.
// Values are scaled against maxVal; anything above it is clipped.
func renderBarGraph(data []float64, width, height int, maxVal float64, color lipgloss.Color) string {
	if width < 1 || height < 1 {
		return ""
	}
	if maxVal <= 0 {
		maxVal = 1
	}

	grid := lipgloss.NewStyle().Foreground(ColorDarkGray)
	bar := lipgloss.NewStyle().Foreground(color)

	canvas := make([][]string, height)
	for y := range canvas {
		canvas[y] = make([]string, width)
		for x := range canvas[y] {
			if y%2 == 0 {
				canvas[y][x] = grid.Render("╌")
			} else {
				canvas[y][x] = " "
			}
		}
	}

	if len(data) > width {
		data = data[len(data)-width:]
	}
	offset := width - len(data)

	for i, v := range data {
		frac := v / maxVal
		if frac <= 0 {
			continue
		}
		if frac > 1 {
			frac = 1
		}
		eighths := frac * float64(height) * 8
		for level := 0; level < height; level++ {
			fill := eighths - float64(level*8)
			if fill <= 0 {
				break
			}
			ch := "█"
			if fill < 8 {
				ch = graphBlocks[int(fill)]
			}
			canvas[height-1-level][offset+i] = bar.Render(ch)
		}
	}

	rows := make([]string, height)
	for y := range canvas {
		rows[y] = strings.Join(canvas[y], "")
	}
	return strings.Join(rows, "\n")
}

// renderSpeedPanel combines the graph with a y axis labelled in MB/s.
func renderSpeedPanel(history []float64, width, height int) string {
	const axisWidth = 6
	graphWidth := width - axisWidth - 1
	if graphWidth < 10 {
		graphWidth = 10
	}
	if height < 1 {
		height = 1
	}
	maxVal := graphScale(history)

	axis := lipgloss.NewStyle().Width(axisWidth).Foreground(ColorGray).Align(lipgloss.Right)
	labels := make([]string, height)
	for i := range labels {
		labels[i] = axis.Render("")
	}
	labels[0] = axis.Render(fmt.Sprintf("%.0f", maxVal))
	labels[height-1] = axis.Render("0")
	if height >= 5 {
		labels[height/2] = axis.Render(fmt.Sprintf("%.1f", maxVal/2))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		strings.Join(labels, "\n"),
		lipgloss.NewStyle().MarginLeft(1).Render(renderBarGraph(history, graphWidth, height, maxVal, ColorNeonPink)),
	)
}
