package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/tui/components"
)

type UIState int

const (
	DashboardState UIState = iota
	InputState
	DetailState
	SettingsState
)

// Tabs filter the download list.
const (
	TabQueued = iota
	TabActive
	TabDone
)

type DownloadModel struct {
	ID          string
	DisplayName string
	Native      string
	Type        download.Type
	Status      download.Status
	Progress    int
	LocalPath   string

	File       string
	FileIndex  int
	FileCount  int
	Downloaded int64 // bytes of the file in flight
	Total      int64 // size of the file in flight, or the job total once done
	SizeBytes  int64
	Speed      float64
	Elapsed    time.Duration

	FailedFiles []string
	err         string

	progress progress.Model
	files    components.VerseMapModel
}

// NewDownloadModel builds the row for a tracked item.
func NewDownloadModel(it download.Item) *DownloadModel {
	d := &DownloadModel{
		ID:       it.ID,
		progress: progress.New(progress.WithDefaultGradient()),
	}
	d.apply(it)
	return d
}

// apply copies the persisted state of it, keeping live transfer figures.
func (d *DownloadModel) apply(it download.Item) {
	d.DisplayName = it.DisplayName
	d.Native = it.DisplayNameNative
	d.Type = it.Type
	d.Status = it.Status
	d.Progress = it.Progress
	d.LocalPath = it.LocalPath
	d.SizeBytes = it.SizeBytes
	d.FailedFiles = it.FailedFiles
	d.err = it.Error
	if it.Status != download.StatusDownloading {
		d.Speed = 0
	}
	if it.Status == download.StatusCompleted {
		d.files.Finish()
	}
}

func (d *DownloadModel) done() bool {
	return d.Status.IsFinished()
}

type RootModel struct {
	Service  core.DownloadService
	Settings *config.Settings
	Version  string

	downloads []*DownloadModel
	stream    <-chan any

	width  int
	height int
	state  UIState

	input     textinput.Model
	cursor    int
	activeTab int

	SpeedHistory []float64

	notification    string
	notificationErr bool
	notifiedAt      time.Time

	SettingsActiveTab   int
	SettingsSelectedRow int
	SettingsIsEditing   bool
	SettingsInput       textinput.Model
	settingsDirty       bool
	saveSettings        func(*config.Settings) error

	now func() time.Time
}

// InitialRootModel wires the dashboard to service. stream is the channel
// returned by service.StreamEvents; settings may be nil when the service is
// remote.
func InitialRootModel(service core.DownloadService, stream <-chan any, settings *config.Settings, version string) RootModel {
	in := textinput.New()
	in.Placeholder = "112 or 2:255"
	in.Width = InputWidth
	in.Prompt = ""
	in.CharLimit = 16

	settingsIn := textinput.New()
	settingsIn.Width = InputWidth
	settingsIn.Prompt = ""

	return RootModel{
		Service:       service,
		Settings:      settings,
		Version:       version,
		stream:        stream,
		input:         in,
		SettingsInput: settingsIn,
		state:         DashboardState,
		saveSettings:  config.SaveSettings,
		now:           time.Now,
	}
}

// Messages produced by commands.
type (
	tickMsg            time.Time
	streamClosedMsg    struct{}
	downloadsLoadedMsg struct {
		items []download.Item
		err   error
	}
	actionResultMsg struct {
		action string
		id     string
		err    error
	}
)

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(listenForActivity(m.stream), loadDownloads(m.Service), tick())
}

// listenForActivity waits for the next service event.
func listenForActivity(sub <-chan any) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-sub
		if !ok {
			return streamClosedMsg{}
		}
		return msg
	}
}

func loadDownloads(svc core.DownloadService) tea.Cmd {
	return func() tea.Msg {
		items, err := svc.List()
		return downloadsLoadedMsg{items: items, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// visible returns the downloads on the active tab.
func (m RootModel) visible() []*DownloadModel {
	var out []*DownloadModel
	for _, d := range m.downloads {
		if tabFor(d) == m.activeTab {
			out = append(out, d)
		}
	}
	return out
}

func tabFor(d *DownloadModel) int {
	switch d.Status {
	case download.StatusDownloading:
		return TabActive
	case download.StatusCompleted, download.StatusFailed:
		return TabDone
	default:
		return TabQueued
	}
}

// GetSelectedDownload returns the download under the cursor, if any.
func (m RootModel) GetSelectedDownload() *DownloadModel {
	v := m.visible()
	if m.cursor < 0 || m.cursor >= len(v) {
		return nil
	}
	return v[m.cursor]
}

func (m RootModel) find(id string) *DownloadModel {
	for _, d := range m.downloads {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// CalculateStats counts downloads per tab.
func (m RootModel) CalculateStats() (active, queued, done int) {
	for _, d := range m.downloads {
		switch tabFor(d) {
		case TabActive:
			active++
		case TabDone:
			done++
		default:
			queued++
		}
	}
	return
}
