package core

import (
	"context"

	"github.com/tilawa-app/tilawa/internal/cache"
	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/storage"
)

// AddRequest asks for a recitation download. A zero Verse downloads every
// verse of the surah.
type AddRequest struct {
	Surah   int    `json:"surah"`
	Verse   int    `json:"verse,omitempty"`
	Reciter string `json:"reciter,omitempty"`
}

// DownloadService defines the interface for interacting with the download engine.
// This abstraction allows the CLI and TUI to switch between a local embedded
// backend and a running `tilawa serve` instance.
type DownloadService interface {
	// List returns every tracked download, oldest first.
	List() ([]download.Item, error)

	// GetStatus returns a single download by id.
	GetStatus(id string) (*download.Item, error)

	// Add queues a new download.
	Add(ctx context.Context, req AddRequest) (download.Item, error)

	// Retry restarts a failed download.
	Retry(ctx context.Context, id string) (download.Item, error)

	// Cancel stops a pending or running download, leaving it failed.
	Cancel(ctx context.Context, id string) error

	// Delete cancels and removes a download and its files.
	Delete(ctx context.Context, id string) error

	// ClearAll removes every download and all offline data.
	ClearAll(ctx context.Context) error

	// StreamEvents returns a channel that receives real-time download events.
	// For local mode, this is a bus subscription.
	// For remote mode, this is sourced from the websocket stream.
	StreamEvents(ctx context.Context) (<-chan any, func(), error)

	// Publish emits an event into the service's event stream.
	Publish(msg any) error

	// Shutdown handles graceful shutdown of the service
	Shutdown() error
}

// ContentService reads scripture and manages offline text. Like
// DownloadService it has a local and a remote implementation.
type ContentService interface {
	SurahList(ctx context.Context) (content.Result[[]content.Surah], error)
	Surah(ctx context.Context, id int) (content.Result[content.Surah], error)

	// Verses prefers text saved for offline reading.
	Verses(ctx context.Context, id int, edition string) (content.Result[content.SurahText], error)
	Verse(ctx context.Context, key, edition string) (content.Result[content.Verse], error)
	Tafsir(ctx context.Context, key, edition string) (content.Result[content.Tafsir], error)
	AudioURL(ctx context.Context, key, reciter string) (content.Result[string], error)

	// RandomVerse never fails; it falls back to a bundled verse.
	RandomVerse(ctx context.Context) content.Result[content.Verse]

	SaveSurahOffline(ctx context.Context, id int, edition string) (content.SurahText, error)
	RemoveOffline(ctx context.Context, id int) error
	OfflineStatus(ctx context.Context) (offline.Manifest, error)
	StorageUsage(ctx context.Context) (storage.Usage, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
}
