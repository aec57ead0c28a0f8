// Package core wires the content, offline, storage and download packages into
// one Service built from Settings.
package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/tilawa-app/tilawa/internal/cache"
	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/netx"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/quran"
	"github.com/tilawa-app/tilawa/internal/storage"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// Deps overrides the resources New would otherwise open itself.
type Deps struct {
	KV         kvstore.Store // default: sqlite at config.GetDatabasePath()
	Fs         afero.Fs      // default: the offline dir on disk
	LockPath   string        // default: manifest lock inside the offline dir
	HTTPClient *http.Client  // default: tuned client with the configured timeout
}

// Service is the local backend. It implements DownloadService.
type Service struct {
	Settings  *config.Settings
	Runtime   *config.RuntimeConfig
	KV        kvstore.Store
	Cache     *cache.Cache
	Content   *content.Service
	Offline   *offline.Store
	Storage   *storage.Accountant
	Events    *events.Bus
	Downloads *download.Manager

	ownsKV       bool
	shutdownOnce sync.Once
}

var _ DownloadService = (*Service)(nil)

// New opens the key-value store and offline directory from settings and builds
// every component.
func New(ctx context.Context, settings *config.Settings) (*Service, error) {
	return NewWithDeps(ctx, settings, Deps{})
}

// NewWithDeps is New with injectable resources.
func NewWithDeps(ctx context.Context, settings *config.Settings, deps Deps) (*Service, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	rc := settings.ToRuntimeConfig()
	s := &Service{Settings: settings, Runtime: rc}

	s.KV = deps.KV
	if s.KV == nil {
		db, err := kvstore.OpenSQLite(config.GetDatabasePath())
		if err != nil {
			return nil, fmt.Errorf("open key-value store: %w", err)
		}
		s.KV = db
		s.ownsKV = true
	}

	fs := deps.Fs
	lockPath := deps.LockPath
	if fs == nil {
		root := rc.OfflineDir
		if root == "" {
			root = config.GetDefaultOfflineDir()
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			s.closeKV()
			return nil, fmt.Errorf("create offline dir: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), root)
		if lockPath == "" {
			lockPath = filepath.Join(root, offline.LockFileName)
		}
	}

	exec := netx.NewExecutor(retryOptions(rc))
	var api *netx.Client
	if deps.HTTPClient != nil {
		api = netx.NewClientWithHTTPClient(deps.HTTPClient, exec, rc.GetUserAgent())
	} else {
		api = netx.NewClient(rc.RequestTimeout, exec, rc.GetUserAgent())
	}

	s.Cache = cache.New(s.KV, cache.WithTTL(rc.CacheTTL), cache.WithHotEntries(rc.CacheHotEntries))

	var err error
	s.Offline, err = offline.New(fs, s.KV, lockPath)
	if err != nil {
		s.closeKV()
		return nil, err
	}

	s.Content, err = content.NewService(quran.NewClient(rc.APIBaseURL, api), s.Cache, content.Options{
		TranslationEdition: rc.TranslationEdition,
		TafsirEdition:      rc.TafsirEdition,
		Reciter:            rc.DefaultReciter,
		Offline:            s.Offline,
	})
	if err != nil {
		s.closeKV()
		return nil, err
	}

	s.Storage = storage.New(fs, s.Offline, rc.QuotaBytes)
	s.Events = events.NewBus()

	// Transfers share the API transport but have no overall deadline.
	transferClient := &http.Client{Transport: api.HTTPClient().Transport}
	s.Downloads, err = download.NewManager(ctx, download.Options{
		Fs:            fs,
		KV:            s.KV,
		Manifest:      s.Offline,
		Storage:       s.Storage,
		Resolver:      audioResolver{content: s.Content},
		Transfer:      download.NewHTTPTransfer(fs, transferClient, exec, rc.GetUserAgent()),
		Events:        s.Events,
		MaxConcurrent: rc.GetMaxConcurrentJobs(),
	})
	if err != nil {
		s.Events.Close()
		s.closeKV()
		return nil, err
	}
	return s, nil
}

func retryOptions(rc *config.RuntimeConfig) netx.RetryOptions {
	opts := netx.RetryOptions{
		MaxRetries:  rc.MaxRetries,
		RetryDelay:  rc.RetryDelay,
		MaxDelay:    rc.MaxDelay,
		Exponential: rc.Exponential,
		Policy:      netx.RetryAll,
	}
	if rc.TransientOnly {
		opts.Policy = netx.RetryTransient
	}
	return opts
}

func (s *Service) closeKV() {
	if s.ownsKV && s.KV != nil {
		if err := s.KV.Close(); err != nil {
			utils.Debug("core: closing kv store: %v", err)
		}
	}
}

// List returns every tracked download.
func (s *Service) List() ([]download.Item, error) {
	return s.Downloads.List(), nil
}

// GetStatus returns one tracked download.
func (s *Service) GetStatus(id string) (*download.Item, error) {
	it, err := s.Downloads.Get(id)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Add validates req against the catalog and enqueues the matching job.
func (s *Service) Add(ctx context.Context, req AddRequest) (download.Item, error) {
	it, err := s.itemFor(req)
	if err != nil {
		return download.Item{}, err
	}
	return s.Downloads.Enqueue(ctx, it)
}

func (s *Service) itemFor(req AddRequest) (download.Item, error) {
	surah, ok := s.Content.Catalog().Surah(req.Surah)
	if !ok {
		return download.Item{}, fmt.Errorf("%w: surah %d does not exist", ErrInvalidRequest, req.Surah)
	}
	reciter := req.Reciter
	if reciter == "" {
		reciter = s.Content.DefaultReciter()
	}
	if req.Verse == 0 {
		return download.NewEntryItem(surah.Number, reciter, surah.EnglishName, surah.Name), nil
	}
	if _, _, err := s.Content.ParseVerseKey(fmt.Sprintf("%d:%d", req.Surah, req.Verse)); err != nil {
		return download.Item{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	it := download.NewTrackItem(surah.Number, req.Verse, reciter, fmt.Sprintf("%s %d:%d", surah.EnglishName, req.Surah, req.Verse))
	it.DisplayNameNative = surah.Name
	return it, nil
}

// Retry restarts a failed download.
func (s *Service) Retry(ctx context.Context, id string) (download.Item, error) {
	return s.Downloads.Retry(ctx, id)
}

// Cancel stops a download.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.Downloads.Cancel(ctx, id)
}

// Delete removes a download and its files.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.Downloads.Delete(ctx, id)
}

// ClearAll removes every download and all offline data.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.Downloads.ClearAll(ctx)
}

// StreamEvents subscribes to the event bus. The subscription ends when ctx is
// done or the returned cleanup is called.
func (s *Service) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	ch, unsubscribe := s.Events.Subscribe(100)
	var once sync.Once
	cleanup := func() { once.Do(unsubscribe) }
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cleanup()
		}()
	}
	return ch, cleanup, nil
}

// Publish emits msg to every subscriber.
func (s *Service) Publish(msg any) error {
	s.Events.Publish(msg)
	return nil
}

// SaveSurahOffline fetches a surah with its translation and stores it for
// offline reading.
func (s *Service) SaveSurahOffline(ctx context.Context, id int, edition string) (content.SurahText, error) {
	res, err := s.Content.Verses(ctx, id, edition)
	if err != nil {
		return content.SurahText{}, err
	}
	if err := s.Offline.SaveEntryText(ctx, id, res.Data); err != nil {
		return content.SurahText{}, err
	}
	if err := s.Offline.MarkTranslationAvailable(ctx, res.Data.Edition); err != nil {
		return content.SurahText{}, err
	}
	if err := s.Storage.Recompute(ctx); err != nil {
		utils.Debug("core: recompute after saving surah %d: %v", id, err)
	}
	return res.Data, nil
}

// RemoveOffline deletes a surah's saved text and audio. Download jobs for the
// surah are deleted with it so the audio can be downloaded again.
func (s *Service) RemoveOffline(ctx context.Context, id int) error {
	n, dlErr := s.Downloads.DeleteEntry(ctx, id)
	if n > 0 {
		utils.Debug("core: removed %d download(s) of surah %d", n, id)
	}
	if err := s.Offline.RemoveEntry(ctx, id); err != nil {
		return errors.Join(dlErr, err)
	}
	return errors.Join(dlErr, s.Storage.Recompute(ctx))
}

// Shutdown stops the download pool, closes the event bus and releases the
// key-value store if New opened it.
func (s *Service) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.Downloads.Shutdown()
		s.Events.Close()
		if s.ownsKV {
			err = s.KV.Close()
		}
	})
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
