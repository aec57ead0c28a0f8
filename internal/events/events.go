package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ProgressMsg reports aggregate progress for a download job. Progress is the
// job-level percentage; Downloaded/Total describe the file in flight.
type ProgressMsg struct {
	DownloadID string
	Progress   int
	File       string
	FileIndex  int // 0-based position in the job's source list
	FileCount  int
	Downloaded int64
	Total      int64
	Speed      float64 // bytes per second for the current file
	Elapsed    time.Duration
}

// DownloadQueuedMsg is sent when a job is accepted and persisted as pending.
type DownloadQueuedMsg struct {
	DownloadID  string
	DisplayName string
}

// DownloadRejectedMsg is sent when an enqueue is refused, usually because the
// same id is already tracked.
type DownloadRejectedMsg struct {
	DownloadID  string
	DisplayName string
	Reason      string
}

// DownloadStartedMsg is sent once sources are resolved and transfers begin.
type DownloadStartedMsg struct {
	DownloadID  string
	DisplayName string
	RunID       string
	FileCount   int
	DestPath    string
}

// FileSkippedMsg reports a per-file failure inside a multi-file job. The job
// continues with the next file.
type FileSkippedMsg struct {
	DownloadID string
	File       string
	Reason     string
}

// DownloadCompleteMsg signals that a job ran to completion. FailedFiles lists
// files that were skipped.
type DownloadCompleteMsg struct {
	DownloadID  string
	DisplayName string
	LocalPath   string
	Elapsed     time.Duration
	Total       int64
	FailedFiles []string `json:",omitempty"`
}

// DownloadErrorMsg signals that a whole job failed.
type DownloadErrorMsg struct {
	DownloadID  string
	DisplayName string
	Err         error
}

func (m DownloadErrorMsg) MarshalJSON() ([]byte, error) {
	type encoded struct {
		DownloadID  string `json:"DownloadID"`
		DisplayName string `json:"DisplayName,omitempty"`
		Err         string `json:"Err,omitempty"`
	}

	out := encoded{
		DownloadID:  m.DownloadID,
		DisplayName: m.DisplayName,
	}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}

	return json.Marshal(out)
}

func (m *DownloadErrorMsg) UnmarshalJSON(data []byte) error {
	var aux struct {
		DownloadID  string          `json:"DownloadID"`
		DisplayName string          `json:"DisplayName"`
		Err         json.RawMessage `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.DownloadID = aux.DownloadID
	m.DisplayName = aux.DisplayName
	m.Err = nil

	if len(aux.Err) == 0 {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Err, &errStr); err == nil {
		if errStr != "" {
			m.Err = errors.New(errStr)
		}
		return nil
	}

	// Accept non-string payloads (e.g. {}) from older writers.
	raw := string(aux.Err)
	if raw != "" && raw != "null" {
		m.Err = errors.New(raw)
	}
	return nil
}

// DownloadCanceledMsg is sent when a user stops a job. The item is left
// failed so it can be retried.
type DownloadCanceledMsg struct {
	DownloadID  string
	DisplayName string
}

// DownloadRemovedMsg is sent when a job and its files are deleted.
type DownloadRemovedMsg struct {
	DownloadID  string
	DisplayName string
}

// DownloadsClearedMsg is sent after every tracked job is removed.
type DownloadsClearedMsg struct {
	Removed int
}

// Type returns the wire name of a message, or "" for unknown values.
func Type(msg any) string {
	switch msg.(type) {
	case ProgressMsg:
		return "progress"
	case DownloadQueuedMsg:
		return "queued"
	case DownloadRejectedMsg:
		return "rejected"
	case DownloadStartedMsg:
		return "started"
	case FileSkippedMsg:
		return "file_skipped"
	case DownloadCompleteMsg:
		return "complete"
	case DownloadErrorMsg:
		return "error"
	case DownloadCanceledMsg:
		return "canceled"
	case DownloadRemovedMsg:
		return "removed"
	case DownloadsClearedMsg:
		return "cleared"
	}
	return ""
}

// Envelope is the JSON frame used on the event stream.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode wraps msg in an Envelope and marshals it.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(Envelope{Type: Type(msg), Data: msg})
}

// Decode parses a frame produced by Encode back into its typed message.
// Unknown types return an error.
func Decode(data []byte) (any, error) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	var msg any
	var err error
	switch env.Type {
	case "progress":
		msg, err = decodeAs[ProgressMsg](env.Data)
	case "queued":
		msg, err = decodeAs[DownloadQueuedMsg](env.Data)
	case "rejected":
		msg, err = decodeAs[DownloadRejectedMsg](env.Data)
	case "started":
		msg, err = decodeAs[DownloadStartedMsg](env.Data)
	case "file_skipped":
		msg, err = decodeAs[FileSkippedMsg](env.Data)
	case "complete":
		msg, err = decodeAs[DownloadCompleteMsg](env.Data)
	case "error":
		msg, err = decodeAs[DownloadErrorMsg](env.Data)
	case "canceled":
		msg, err = decodeAs[DownloadCanceledMsg](env.Data)
	case "removed":
		msg, err = decodeAs[DownloadRemovedMsg](env.Data)
	case "cleared":
		msg, err = decodeAs[DownloadsClearedMsg](env.Data)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return msg, nil
}

func decodeAs[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
