package download

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Type is the shape of a download job.
type Type string

const (
	TypeSingleTrack Type = "single-track" // one verse recitation
	TypeFullEntry   Type = "full-entry"   // every verse of a surah
	TypeCollection  Type = "collection"   // an explicit list of sources
)

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	switch t {
	case TypeSingleTrack, TypeFullEntry, TypeCollection:
		return true
	}
	return false
}

// Status is the lifecycle state of a download item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// CanTransition reports whether the state machine allows s -> to.
// Deletion is not a transition and is always allowed.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusDownloading || to == StatusFailed
	case StatusDownloading:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusDownloading
	}
	return false
}

// IsActive reports whether the item is queued or transferring.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading
}

// IsFinished reports whether the item reached a terminal state for its
// current attempt.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrDuplicate         = errors.New("download already tracked")
	ErrNotFound          = errors.New("download not found")
	ErrInvalidTransition = errors.New("invalid download state transition")
	ErrInvalidItem       = errors.New("invalid download item")
)

// Item is one tracked download job.
type Item struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	DisplayName       string    `json:"display_name"`
	DisplayNameNative string    `json:"display_name_native,omitempty"`
	Variant           string    `json:"variant,omitempty"`
	EntryID           int       `json:"entry_id,omitempty"`
	VerseNumber       int       `json:"verse_number,omitempty"`
	Sources           []string  `json:"sources,omitempty"` // explicit sources for collections
	SizeBytes         int64     `json:"size_bytes"`
	Progress          int       `json:"progress"`
	Status            Status    `json:"status"`
	RemoteSource      string    `json:"remote_source,omitempty"`
	LocalPath         string    `json:"local_path,omitempty"`
	FailedFiles       []string  `json:"failed_files,omitempty"`
	Error             string    `json:"error,omitempty"`
	RunID             string    `json:"run_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// PartialFailure reports whether a completed job skipped some files.
func (it Item) PartialFailure() bool {
	return it.Status == StatusCompleted && len(it.FailedFiles) > 0
}

// Clone returns a copy that shares no slices with it.
func (it Item) Clone() Item {
	it.Sources = slices.Clone(it.Sources)
	it.FailedFiles = slices.Clone(it.FailedFiles)
	return it
}

// EntryItemID is the id of a full-entry job.
func EntryItemID(entryID int, variant string) string {
	return fmt.Sprintf("%d_%s", entryID, variant)
}

// TrackItemID is the id of a single-track job.
func TrackItemID(entryID, verse int, variant string) string {
	return fmt.Sprintf("%d:%d_%s", entryID, verse, variant)
}

// NewEntryItem builds a full-entry job for every verse of a surah.
func NewEntryItem(entryID int, variant, displayName, displayNameNative string) Item {
	return Item{
		ID:                EntryItemID(entryID, variant),
		Type:              TypeFullEntry,
		DisplayName:       displayName,
		DisplayNameNative: displayNameNative,
		Variant:           variant,
		EntryID:           entryID,
	}
}

// NewTrackItem builds a single-track job for one verse.
func NewTrackItem(entryID, verse int, variant, displayName string) Item {
	return Item{
		ID:          TrackItemID(entryID, verse, variant),
		Type:        TypeSingleTrack,
		DisplayName: displayName,
		Variant:     variant,
		EntryID:     entryID,
		VerseNumber: verse,
	}
}

// Validate checks that an item can be enqueued.
func (it Item) Validate() error {
	if !it.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidItem, it.Type)
	}
	if it.ID == "" || it.ID == "." || it.ID == ".." || strings.ContainsAny(it.ID, `/\`) {
		return fmt.Errorf("%w: bad id %q", ErrInvalidItem, it.ID)
	}
	switch it.Type {
	case TypeSingleTrack:
		if it.EntryID < 1 || it.VerseNumber < 1 || it.Variant == "" {
			return fmt.Errorf("%w: single-track needs entry, verse and variant", ErrInvalidItem)
		}
	case TypeFullEntry:
		if it.EntryID < 1 || it.Variant == "" {
			return fmt.Errorf("%w: full-entry needs entry and variant", ErrInvalidItem)
		}
	case TypeCollection:
		if len(it.Sources) == 0 {
			return fmt.Errorf("%w: collection needs at least one source", ErrInvalidItem)
		}
	}
	return nil
}
