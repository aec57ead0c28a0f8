package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// FileState is the per-file status of a multi-file download.
type FileState int

const (
	FilePending FileState = iota
	FileDownloading
	FileDone
	FileFailed
)

var (
	pendingColor     = lipgloss.Color("#44475a")
	downloadingColor = lipgloss.Color("#ff79c6")
	doneColor        = lipgloss.Color("#50fa7b")
	failedColor      = lipgloss.Color("#ff5555")
)

const block = "■"

// VerseMapModel draws one block per file of a job, in source order.
type VerseMapModel struct {
	States []FileState
	Width  int // render width in cells; each block takes two
	Height int // maximum rows, 0 for unbounded
}

// NewVerseMap returns a map of count pending files.
func NewVerseMap(count int) VerseMapModel {
	return VerseMapModel{States: make([]FileState, count)}
}

// Set updates the state of file i, growing the map when needed.
func (m *VerseMapModel) Set(i int, s FileState) {
	if i < 0 {
		return
	}
	for len(m.States) <= i {
		m.States = append(m.States, FilePending)
	}
	m.States[i] = s
}

// Advance marks every file before i as done and file i as downloading.
// Failed files keep their state.
func (m *VerseMapModel) Advance(i int) {
	for j := 0; j < i && j < len(m.States); j++ {
		if m.States[j] != FileFailed {
			m.States[j] = FileDone
		}
	}
	if i >= 0 && i < len(m.States) && m.States[i] == FileFailed {
		return
	}
	m.Set(i, FileDownloading)
}

// Finish marks every file that has not failed as done.
func (m *VerseMapModel) Finish() {
	for i, s := range m.States {
		if s != FileFailed {
			m.States[i] = FileDone
		}
	}
}

// Counts returns how many files are done and how many failed.
func (m VerseMapModel) Counts() (done, failed int) {
	for _, s := range m.States {
		switch s {
		case FileDone:
			done++
		case FileFailed:
			failed++
		}
	}
	return done, failed
}

// Rows returns the number of lines View will produce.
func (m VerseMapModel) Rows() int {
	if len(m.States) == 0 {
		return 0
	}
	cols := m.cols()
	rows := (len(m.States) + cols - 1) / cols
	if m.Height > 0 && rows > m.Height {
		rows = m.Height
	}
	return rows
}

func (m VerseMapModel) cols() int {
	cols := m.Width / 2
	if cols < 1 {
		cols = 1
	}
	return cols
}

// View renders the grid. When the files do not fit in Height rows, each block
// stands for a run of files and shows the worst state in the run.
func (m VerseMapModel) View() string {
	if len(m.States) == 0 {
		return ""
	}
	cols := m.cols()
	cells := len(m.States)
	if m.Height > 0 && cells > cols*m.Height {
		cells = cols * m.Height
	}

	styles := map[FileState]lipgloss.Style{
		FilePending:     lipgloss.NewStyle().Foreground(pendingColor),
		FileDownloading: lipgloss.NewStyle().Foreground(downloadingColor),
		FileDone:        lipgloss.NewStyle().Foreground(doneColor),
		FileFailed:      lipgloss.NewStyle().Foreground(failedColor),
	}

	var s strings.Builder
	for i := 0; i < cells; i++ {
		if i > 0 && i%cols == 0 {
			s.WriteRune('\n')
		} else if i > 0 {
			s.WriteRune(' ')
		}
		s.WriteString(styles[m.cellState(i, cells)].Render(block))
	}
	return s.String()
}

func (m VerseMapModel) cellState(i, cells int) FileState {
	if cells == len(m.States) {
		return m.States[i]
	}
	from := i * len(m.States) / cells
	to := (i + 1) * len(m.States) / cells
	if to <= from {
		to = from + 1
	}
	state := FileDone
	for _, s := range m.States[from:to] {
		switch {
		case s == FileFailed:
			return FileFailed
		case s == FileDownloading:
			state = FileDownloading
		case s == FilePending && state == FileDone:
			state = FilePending
		}
	}
	return state
}
