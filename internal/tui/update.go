package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/tui/components"
	"github.com/tilawa-app/tilawa/internal/utils"
)

var errBadReference = errors.New(`enter a surah number like "112" or a verse like "2:255"`)

// parseReference turns "112" or "2:255" into a request. Range checks are left
// to the service.
func parseReference(raw string) (core.AddRequest, error) {
	raw = strings.TrimSpace(raw)
	surahPart, versePart, hasVerse := strings.Cut(raw, ":")
	surah, err := strconv.Atoi(strings.TrimSpace(surahPart))
	if err != nil || surah <= 0 {
		return core.AddRequest{}, errBadReference
	}
	req := core.AddRequest{Surah: surah}
	if hasVerse {
		verse, err := strconv.Atoi(strings.TrimSpace(versePart))
		if err != nil || verse <= 0 {
			return core.AddRequest{}, errBadReference
		}
		req.Verse = verse
	}
	return req, nil
}

// runAction calls the service off the update loop.
func runAction(action, id string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ActionTimeout)
		defer cancel()
		return actionResultMsg{action: action, id: id, err: fn(ctx)}
	}
}

func (m *RootModel) notify(format string, args ...any) {
	m.notification = fmt.Sprintf(format, args...)
	m.notificationErr = false
	m.notifiedAt = m.now()
}

func (m *RootModel) notifyErr(format string, args ...any) {
	m.notify(format, args...)
	m.notificationErr = true
}

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		var speed float64
		for _, d := range m.downloads {
			if d.Status == download.StatusDownloading {
				speed += d.Speed
			}
		}
		m.SpeedHistory = append(m.SpeedHistory, speed/Megabyte)
		if len(m.SpeedHistory) > SpeedHistoryLen {
			m.SpeedHistory = m.SpeedHistory[len(m.SpeedHistory)-SpeedHistoryLen:]
		}
		if m.notification != "" && m.now().Sub(m.notifiedAt) > NotifyDuration {
			m.notification = ""
		}
		return m, tick()

	case downloadsLoadedMsg:
		if msg.err != nil {
			m.notifyErr("Could not list downloads: %v", msg.err)
			return m, nil
		}
		m.mergeItems(msg.items)
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			utils.Debug("tui: %s %s: %v", msg.action, msg.id, msg.err)
			m.notifyErr("%s failed: %s", msg.action, errorMessage(msg.err))
		}
		return m, loadDownloads(m.Service)

	case streamClosedMsg:
		m.stream = nil
		m.notifyErr("Event stream closed")
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if cmd, ok := m.handleEvent(msg); ok {
		return m, tea.Batch(cmd, listenForActivity(m.stream))
	}
	return m, nil
}

// errorMessage prefers the user-facing text of API errors.
func errorMessage(err error) string {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	_, body := core.Classify(err)
	return body.Message
}

// handleEvent applies a service event. ok is false for messages that did not
// come from the event stream.
func (m *RootModel) handleEvent(msg tea.Msg) (tea.Cmd, bool) {
	switch msg := msg.(type) {
	case events.DownloadQueuedMsg:
		if d := m.find(msg.DownloadID); d == nil {
			m.downloads = append(m.downloads, NewDownloadModel(download.Item{
				ID:          msg.DownloadID,
				DisplayName: msg.DisplayName,
				Status:      download.StatusPending,
			}))
		} else {
			d.Status = download.StatusPending
			d.err = ""
		}
		m.notify("Queued %s", msg.DisplayName)
		return loadDownloads(m.Service), true

	case events.DownloadRejectedMsg:
		m.notifyErr("%s: %s", msg.DisplayName, msg.Reason)
		return nil, true

	case events.DownloadStartedMsg:
		if d := m.find(msg.DownloadID); d != nil {
			d.Status = download.StatusDownloading
			d.FileCount = msg.FileCount
			d.LocalPath = msg.DestPath
			d.FailedFiles = nil
			d.files = components.NewVerseMap(msg.FileCount)
		}
		return nil, true

	case events.ProgressMsg:
		if d := m.find(msg.DownloadID); d != nil && !d.done() {
			d.Status = download.StatusDownloading
			d.Progress = msg.Progress
			d.File = msg.File
			d.FileIndex = msg.FileIndex
			d.FileCount = msg.FileCount
			d.Downloaded = msg.Downloaded
			d.Total = msg.Total
			d.Speed = msg.Speed
			d.Elapsed = msg.Elapsed
			d.files.Advance(msg.FileIndex)
		}
		return nil, true

	case events.FileSkippedMsg:
		if d := m.find(msg.DownloadID); d != nil {
			d.FailedFiles = append(d.FailedFiles, msg.File)
			if i := fileIndexOf(d, msg.File); i >= 0 {
				d.files.Set(i, components.FileFailed)
			}
		}
		return nil, true

	case events.DownloadCompleteMsg:
		if d := m.find(msg.DownloadID); d != nil {
			d.Status = download.StatusCompleted
			d.Progress = 100
			d.Speed = 0
			d.Elapsed = msg.Elapsed
			d.Total = msg.Total
			d.Downloaded = msg.Total
			d.LocalPath = msg.LocalPath
			d.FailedFiles = msg.FailedFiles
			d.files.Finish()
		}
		if len(msg.FailedFiles) > 0 {
			m.notifyErr("%s finished, %d file(s) missing", msg.DisplayName, len(msg.FailedFiles))
		} else {
			m.notify("Downloaded %s", msg.DisplayName)
		}
		return loadDownloads(m.Service), true

	case events.DownloadErrorMsg:
		if d := m.find(msg.DownloadID); d != nil {
			d.Status = download.StatusFailed
			d.Speed = 0
			if msg.Err != nil {
				d.err = msg.Err.Error()
			}
		}
		m.notifyErr("%s failed", msg.DisplayName)
		return loadDownloads(m.Service), true

	case events.DownloadCanceledMsg:
		m.notify("Canceled %s", msg.DisplayName)
		return loadDownloads(m.Service), true

	case events.DownloadRemovedMsg:
		m.remove(msg.DownloadID)
		m.notify("Removed %s", msg.DisplayName)
		return loadDownloads(m.Service), true

	case events.DownloadsClearedMsg:
		m.downloads = nil
		m.cursor = 0
		m.notify("Cleared %d download(s)", msg.Removed)
		return nil, true
	}
	return nil, false
}

// fileIndexOf locates name in the job's source order. Audio files are named
// {surah}_{verse}.mp3, so the verse number gives the position.
func fileIndexOf(d *DownloadModel, name string) int {
	if name == d.File {
		return d.FileIndex
	}
	if d.Type == download.TypeSingleTrack {
		return 0
	}
	base := strings.TrimSuffix(name, ".mp3")
	_, verse, ok := strings.Cut(base, "_")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(verse)
	if err != nil || n <= 0 {
		return -1
	}
	return n - 1
}

func (m *RootModel) remove(id string) {
	for i, d := range m.downloads {
		if d.ID == id {
			m.downloads = append(m.downloads[:i], m.downloads[i+1:]...)
			break
		}
	}
	m.clampCursor()
}

// mergeItems replaces the list with the service's view, keeping live figures
// for rows that already exist.
func (m *RootModel) mergeItems(items []download.Item) {
	next := make([]*DownloadModel, 0, len(items))
	for _, it := range items {
		if d := m.find(it.ID); d != nil {
			d.apply(it)
			next = append(next, d)
			continue
		}
		next = append(next, NewDownloadModel(it))
	}
	m.downloads = next
	m.clampCursor()
}

func (m *RootModel) clampCursor() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m RootModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.state {
	case InputState:
		switch key {
		case "esc":
			m.state = DashboardState
			m.input.Blur()
			return m, nil
		case "enter":
			req, err := parseReference(m.input.Value())
			if err != nil {
				m.notifyErr("%v", err)
				return m, nil
			}
			m.state = DashboardState
			m.input.Blur()
			svc := m.Service
			return m, runAction("Add", m.input.Value(), func(ctx context.Context) error {
				_, err := svc.Add(ctx, req)
				return err
			})
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case DetailState:
		switch key {
		case "esc", "q", "enter":
			m.state = DashboardState
		}
		return m, nil

	case SettingsState:
		return m.handleSettingsKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "a":
		m.state = InputState
		m.input.SetValue("")
		return m, m.input.Focus()
	case "s":
		if m.Settings == nil {
			m.notifyErr("Settings are managed by the server")
			return m, nil
		}
		m.state = SettingsState
		m.SettingsActiveTab, m.SettingsSelectedRow = 0, 0
		return m, nil
	case "tab":
		m.activeTab = (m.activeTab + 1) % 3
		m.cursor = 0
	case "shift+tab":
		m.activeTab = (m.activeTab + 2) % 3
		m.cursor = 0
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
	case "enter":
		if m.GetSelectedDownload() != nil {
			m.state = DetailState
		}
	case "r":
		if d := m.GetSelectedDownload(); d != nil {
			svc, id := m.Service, d.ID
			return m, runAction("Retry", id, func(ctx context.Context) error {
				_, err := svc.Retry(ctx, id)
				return err
			})
		}
	case "c":
		if d := m.GetSelectedDownload(); d != nil {
			svc, id := m.Service, d.ID
			return m, runAction("Cancel", id, func(ctx context.Context) error {
				return svc.Cancel(ctx, id)
			})
		}
	case "x":
		if d := m.GetSelectedDownload(); d != nil {
			svc, id := m.Service, d.ID
			return m, runAction("Delete", id, func(ctx context.Context) error {
				return svc.Delete(ctx, id)
			})
		}
	}
	return m, nil
}

func (m RootModel) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	categories := config.CategoryOrder()
	rows := config.GetSettingsMetadata()[categories[m.SettingsActiveTab]]
	key := msg.String()

	if m.SettingsIsEditing {
		switch key {
		case "esc":
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		case "enter":
			meta := rows[m.SettingsSelectedRow]
			if err := m.Settings.Apply(meta.Key, strings.TrimSpace(m.SettingsInput.Value())); err != nil {
				m.notifyErr("%v", err)
				return m, nil
			}
			m.settingsDirty = true
			m.SettingsIsEditing = false
			m.SettingsInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.SettingsInput, cmd = m.SettingsInput.Update(msg)
		return m, cmd
	}

	switch key {
	case "esc", "q":
		m.state = DashboardState
		if !m.settingsDirty {
			return m, nil
		}
		m.settingsDirty = false
		if err := m.saveSettings(m.Settings); err != nil {
			m.notifyErr("Could not save settings: %v", err)
		} else {
			m.notify("Settings saved, restart to apply")
		}
	case "left", "h":
		m.SettingsActiveTab = (m.SettingsActiveTab + len(categories) - 1) % len(categories)
		m.SettingsSelectedRow = 0
	case "right", "l", "tab":
		m.SettingsActiveTab = (m.SettingsActiveTab + 1) % len(categories)
		m.SettingsSelectedRow = 0
	case "up", "k":
		if m.SettingsSelectedRow > 0 {
			m.SettingsSelectedRow--
		}
	case "down", "j":
		if m.SettingsSelectedRow < len(rows)-1 {
			m.SettingsSelectedRow++
		}
	case "enter":
		meta := rows[m.SettingsSelectedRow]
		m.SettingsIsEditing = true
		m.SettingsInput.SetValue(m.Settings.Values()[meta.Key])
		m.SettingsInput.CursorEnd()
		return m, m.SettingsInput.Focus()
	case "r":
		meta := rows[m.SettingsSelectedRow]
		def := config.DefaultSettings().Values()[meta.Key]
		if err := m.Settings.Apply(meta.Key, def); err == nil {
			m.settingsDirty = true
		}
	default:
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(categories) {
			m.SettingsActiveTab = n - 1
			m.SettingsSelectedRow = 0
		}
	}
	return m, nil
}
