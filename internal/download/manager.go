package download

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// ListKey is the key-value key the tracked list is persisted under.
const ListKey = "downloads"

const listSchemaVersion = 1

// DefaultMaxConcurrent is the number of jobs transferring at once.
const DefaultMaxConcurrent = 2

var (
	errNoSource   = errors.New("no audio source")
	errSuperseded = errors.New("run is no longer current")
)

const (
	reasonCanceled    = "canceled"
	reasonInterrupted = "interrupted"
)

type persistedList struct {
	SchemaVersion int    `json:"schema_version"`
	Items         []Item `json:"items"`
}

// Resolver turns a job into the remote audio URLs it needs.
type Resolver interface {
	VerseAudio(ctx context.Context, entryID, verse int, variant string) (string, error)
	EntryAudio(ctx context.Context, entryID int, variant string) ([]string, error)
}

// ManifestWriter records downloaded media in the offline manifest.
type ManifestWriter interface {
	MarkMediaAvailable(ctx context.Context, entryID int, variantID, filePath string, sizeBytes int64) error
	RemoveMedia(ctx context.Context, entryID int, variantID, filePath string) error
	ClearAll(ctx context.Context) error
}

// Recomputer refreshes storage totals after files change.
type Recomputer interface {
	Recompute(ctx context.Context) error
}

// Publisher receives lifecycle messages from package events.
type Publisher interface {
	Publish(msg any)
}

// Options wires a Manager. Fs, KV, Resolver and Transfer are required.
type Options struct {
	Fs            afero.Fs
	KV            kvstore.Store
	Manifest      ManifestWriter
	Storage       Recomputer
	Resolver      Resolver
	Transfer      Transferer
	Events        Publisher
	MaxConcurrent int
	Now           func() time.Time
}

type activeRun struct {
	runID  string
	cancel context.CancelFunc
}

// Manager owns the tracked download list and runs jobs on a worker pool.
type Manager struct {
	fs       afero.Fs
	kv       kvstore.Store
	manifest ManifestWriter
	storage  Recomputer
	resolver Resolver
	transfer Transferer
	events   Publisher
	now      func() time.Time

	pool *WorkerPool

	mu      sync.Mutex
	items   map[string]*Item
	active  map[string]*activeRun
	changed chan struct{} // closed and replaced whenever an item finishes
}

// NewManager loads the persisted list and starts the worker pool. Items left
// downloading by a previous process are marked failed so they can be retried.
// Pending items are not started until ResumePending.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Fs == nil || opts.KV == nil || opts.Resolver == nil || opts.Transfer == nil {
		return nil, errors.New("download: Fs, KV, Resolver and Transfer are required")
	}
	m := &Manager{
		fs:       opts.Fs,
		kv:       opts.KV,
		manifest: opts.Manifest,
		storage:  opts.Storage,
		resolver: opts.Resolver,
		transfer: opts.Transfer,
		events:   opts.Events,
		now:      opts.Now,
		items:    make(map[string]*Item),
		active:   make(map[string]*activeRun),
		changed:  make(chan struct{}),
	}
	if m.manifest == nil {
		m.manifest = nopManifest{}
	}
	if m.storage == nil {
		m.storage = nopRecomputer{}
	}
	if m.events == nil {
		m.events = nopPublisher{}
	}
	if m.now == nil {
		m.now = time.Now
	}

	if err := m.load(ctx); err != nil {
		return nil, err
	}

	workers := opts.MaxConcurrent
	if workers <= 0 {
		workers = DefaultMaxConcurrent
	}
	m.pool = NewWorkerPool(workers, func(ctx context.Context, id string) {
		if _, err := m.Start(ctx, id); err != nil {
			utils.Debug("download %s: %v", id, err)
		}
	})
	return m, nil
}

func (m *Manager) load(ctx context.Context) error {
	data, err := m.kv.Get(ctx, ListKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load download list: %w", err)
	}

	var list persistedList
	if err := json.Unmarshal(data, &list); err != nil {
		utils.Debug("download list is corrupt, starting empty: %v", err)
		return nil
	}
	if list.SchemaVersion != listSchemaVersion {
		utils.Debug("download list schema %d != %d, starting empty", list.SchemaVersion, listSchemaVersion)
		return nil
	}

	interrupted := 0
	for _, it := range list.Items {
		it := it.Clone()
		if it.Status == StatusDownloading {
			it.Status = StatusFailed
			it.Error = reasonInterrupted
			interrupted++
		}
		m.items[it.ID] = &it
	}
	if interrupted > 0 {
		utils.Debug("marked %d interrupted downloads as failed", interrupted)
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.persistLocked(ctx)
	}
	return nil
}

// persistLocked writes the tracked list. Callers hold m.mu.
func (m *Manager) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(persistedList{SchemaVersion: listSchemaVersion, Items: m.sortedLocked()})
	if err != nil {
		return err
	}
	if err := m.kv.Set(context.WithoutCancel(ctx), ListKey, data); err != nil {
		return fmt.Errorf("save download list: %w", err)
	}
	return nil
}

func (m *Manager) sortedLocked() []Item {
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.Clone())
	}
	slices.SortFunc(out, func(a, b Item) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Manager) broadcastLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// List returns every tracked item, oldest first.
func (m *Manager) List() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked()
}

// Get returns one tracked item.
func (m *Manager) Get(id string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it.Clone(), nil
}

// Enqueue tracks a new job as pending and hands it to the worker pool. An id
// that is already tracked is rejected with ErrDuplicate, unless it completed
// and its files have since been removed from disk.
func (m *Manager) Enqueue(ctx context.Context, it Item) (Item, error) {
	if err := it.Validate(); err != nil {
		return Item{}, err
	}

	m.mu.Lock()
	if existing, ok := m.items[it.ID]; ok && !m.filesGoneLocked(existing) {
		status := existing.Status
		m.mu.Unlock()
		reason := fmt.Sprintf("already %s", status)
		if status == StatusFailed {
			reason += ", use retry"
		}
		m.events.Publish(events.DownloadRejectedMsg{
			DownloadID:  it.ID,
			DisplayName: it.DisplayName,
			Reason:      reason,
		})
		return Item{}, fmt.Errorf("%w: %s is %s", ErrDuplicate, it.ID, status)
	}

	now := m.now()
	it = it.Clone()
	it.Status = StatusPending
	it.Progress = 0
	it.SizeBytes = 0
	it.LocalPath = ""
	it.FailedFiles = nil
	it.Error = ""
	it.RunID = ""
	it.CreatedAt = now
	it.UpdatedAt = now
	m.items[it.ID] = &it
	if err := m.persistLocked(ctx); err != nil {
		delete(m.items, it.ID)
		m.mu.Unlock()
		return Item{}, err
	}
	out := it.Clone()
	m.mu.Unlock()

	m.events.Publish(events.DownloadQueuedMsg{DownloadID: out.ID, DisplayName: out.DisplayName})
	if err := m.pool.Add(out.ID); err != nil {
		return out, fmt.Errorf("queue %s: %w", out.ID, err)
	}
	return out, nil
}

// filesGoneLocked reports whether a completed item's local data no longer
// exists. Callers hold m.mu.
func (m *Manager) filesGoneLocked(it *Item) bool {
	if it.Status != StatusCompleted || it.LocalPath == "" {
		return false
	}
	exists, err := afero.Exists(m.fs, it.LocalPath)
	if err != nil || exists {
		return false
	}
	utils.Debug("download %s: %s is gone, downloading again", it.ID, it.LocalPath)
	return true
}

// ResumePending queues every pending item. It returns the number queued.
func (m *Manager) ResumePending() int {
	m.mu.Lock()
	var ids []string
	for _, it := range m.sortedLocked() {
		if it.Status == StatusPending {
			ids = append(ids, it.ID)
		}
	}
	m.mu.Unlock()

	queued := 0
	for _, id := range ids {
		if err := m.pool.Add(id); err != nil {
			break
		}
		queued++
	}
	return queued
}

// Start runs a pending job, or one Retry already moved to downloading, to the
// end and returns its final state. The pool calls it; it blocks.
func (m *Manager) Start(ctx context.Context, id string) (Item, error) {
	m.mu.Lock()
	cur, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return Item{}, ErrNotFound
	}
	if run, busy := m.active[id]; busy && run.runID == cur.RunID {
		m.mu.Unlock()
		return cur.Clone(), fmt.Errorf("%w: %s is already running", ErrInvalidTransition, id)
	}
	switch cur.Status {
	case StatusPending:
		cur.Status = StatusDownloading
		cur.RunID = uuid.NewString()
	case StatusDownloading:
		if cur.RunID == "" {
			cur.RunID = uuid.NewString()
		}
	default:
		m.mu.Unlock()
		return cur.Clone(), fmt.Errorf("%w: cannot start a %s item", ErrInvalidTransition, cur.Status)
	}
	cur.Progress = 0
	cur.Error = ""
	cur.FailedFiles = nil
	cur.UpdatedAt = m.now()

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{runID: cur.RunID, cancel: cancel}
	m.active[id] = run
	snap := cur.Clone()
	if err := m.persistLocked(ctx); err != nil {
		utils.Debug("download %s: %v", id, err)
	}
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		if m.active[id] == run {
			delete(m.active, id)
		}
		m.mu.Unlock()
	}()

	start := m.now()
	res := m.execute(runCtx, snap, start)
	return m.finish(ctx, snap, res, m.now().Sub(start))
}

type outcome struct {
	localPath string
	remote    string
	size      int64
	failed    []string
	err       error
}

func (m *Manager) execute(ctx context.Context, it Item, start time.Time) outcome {
	sources, err := m.sources(ctx, it)
	if err != nil {
		return outcome{err: fmt.Errorf("resolve sources: %w", err)}
	}
	if len(sources) == 0 {
		return outcome{err: errors.New("resolve sources: no audio available")}
	}

	dir := jobDir(it)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return outcome{err: fmt.Errorf("create %s: %w", dir, err)}
	}
	dests := destinations(it, dir, sources)

	res := outcome{localPath: dir}
	if it.Type == TypeSingleTrack {
		res.localPath = dests[0]
		res.remote = sources[0]
	}

	m.events.Publish(events.DownloadStartedMsg{
		DownloadID:  it.ID,
		DisplayName: it.DisplayName,
		RunID:       it.RunID,
		FileCount:   len(sources),
		DestPath:    res.localPath,
	})

	var (
		fileIndex         int
		fileName          string
		fileStart         time.Time
		written, expected int64
	)
	agg := NewAggregator(len(sources), func(percent int) {
		p, ok := m.setProgress(it.ID, it.RunID, percent)
		if !ok {
			return
		}
		var speed float64
		if secs := m.now().Sub(fileStart).Seconds(); secs > 0 {
			speed = float64(written) / secs
		}
		m.events.Publish(events.ProgressMsg{
			DownloadID: it.ID,
			Progress:   p,
			File:       fileName,
			FileIndex:  fileIndex,
			FileCount:  len(sources),
			Downloaded: written,
			Total:      expected,
			Speed:      speed,
			Elapsed:    m.now().Sub(start),
		})
	})

	var lastErr error
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		dest := dests[i]
		fileIndex, fileName, fileStart = i, path.Base(dest), m.now()
		written, expected = 0, 0

		if info, err := m.fs.Stat(dest); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			// Kept from an earlier run.
			if err := m.recordMedia(ctx, it, dest, info.Size()); err != nil {
				res.err = err
				return res
			}
			res.size += info.Size()
			agg.FileDone()
			continue
		}

		var (
			n   int64
			err error
		)
		if src == "" {
			err = errNoSource
		} else {
			n, err = m.transfer.Transfer(ctx, src, dest, func(w, e int64) {
				written, expected = w, e
				agg.FileProgress(w, e)
			})
		}
		if err != nil {
			if ctx.Err() != nil {
				res.err = ctx.Err()
				return res
			}
			utils.Debug("download %s: file %s failed: %v", it.ID, fileName, err)
			lastErr = err
			res.failed = append(res.failed, fileName)
			m.events.Publish(events.FileSkippedMsg{DownloadID: it.ID, File: fileName, Reason: err.Error()})
			agg.FileDone()
			continue
		}

		if err := m.recordMedia(ctx, it, dest, n); err != nil {
			res.err = err
			return res
		}
		res.size += n
		agg.FileDone()
	}

	switch {
	case len(res.failed) == 0:
	case it.Type == TypeSingleTrack:
		res.err = lastErr
	case len(res.failed) == len(sources):
		res.err = fmt.Errorf("all %d files failed: %w", len(sources), lastErr)
	}
	return res
}

func (m *Manager) sources(ctx context.Context, it Item) ([]string, error) {
	if len(it.Sources) > 0 {
		return slices.Clone(it.Sources), nil
	}
	switch it.Type {
	case TypeSingleTrack:
		u, err := m.resolver.VerseAudio(ctx, it.EntryID, it.VerseNumber, it.Variant)
		if err != nil {
			return nil, err
		}
		return []string{u}, nil
	case TypeFullEntry:
		return m.resolver.EntryAudio(ctx, it.EntryID, it.Variant)
	}
	return nil, fmt.Errorf("%w: no sources for %s", ErrInvalidItem, it.Type)
}

// recordMedia adds a finished file to the manifest. The write happens under
// m.mu so a concurrent Delete either sees the record and removes it or stops
// this run from writing it.
func (m *Manager) recordMedia(ctx context.Context, it Item, dest string, size int64) error {
	if it.EntryID <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[it.ID]
	if !ok || cur.RunID != it.RunID || cur.Status != StatusDownloading {
		return fmt.Errorf("record %s: %w", dest, errSuperseded)
	}
	if err := m.manifest.MarkMediaAvailable(context.WithoutCancel(ctx), it.EntryID, it.Variant, dest, size); err != nil {
		return fmt.Errorf("record %s: %w", dest, err)
	}
	return nil
}

// setProgress stores percent, capped below 100 until the job finishes, and
// reports whether the stored value increased.
func (m *Manager) setProgress(id, runID string, percent int) (int, bool) {
	percent = min(percent, 99)
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[id]
	if !ok || cur.RunID != runID || cur.Status != StatusDownloading || percent <= cur.Progress {
		return 0, false
	}
	cur.Progress = percent
	cur.UpdatedAt = m.now()
	return percent, true
}

// finish applies a run's outcome unless the item was canceled, retried or
// deleted while it ran.
func (m *Manager) finish(ctx context.Context, snap Item, res outcome, elapsed time.Duration) (Item, error) {
	m.mu.Lock()
	cur, ok := m.items[snap.ID]
	if !ok {
		m.mu.Unlock()
		return Item{}, ErrNotFound
	}
	if cur.RunID != snap.RunID || cur.Status != StatusDownloading {
		out := cur.Clone()
		m.mu.Unlock()
		return out, res.err
	}

	cur.UpdatedAt = m.now()
	cur.FailedFiles = slices.Clone(res.failed)
	if res.remote != "" {
		cur.RemoteSource = res.remote
	}
	if res.err != nil {
		cur.Status = StatusFailed
		cur.Error = res.err.Error()
		if errors.Is(res.err, context.Canceled) {
			cur.Error = reasonInterrupted
		}
	} else {
		cur.Status = StatusCompleted
		cur.Progress = 100
		cur.Error = ""
		cur.LocalPath = res.localPath
		cur.SizeBytes = res.size
	}
	out := cur.Clone()
	persistErr := m.persistLocked(ctx)
	m.broadcastLocked()
	m.mu.Unlock()

	if out.Status == StatusFailed {
		utils.Debug("download %s failed: %s", out.ID, out.Error)
		m.events.Publish(events.DownloadErrorMsg{DownloadID: out.ID, DisplayName: out.DisplayName, Err: res.err})
		return out, errors.Join(res.err, persistErr)
	}

	utils.Debug("download %s completed in %s (%s, %d failed files)",
		out.ID, elapsed.Round(time.Millisecond), utils.ConvertBytesToHumanReadable(out.SizeBytes), len(out.FailedFiles))
	m.events.Publish(events.DownloadCompleteMsg{
		DownloadID:  out.ID,
		DisplayName: out.DisplayName,
		LocalPath:   out.LocalPath,
		Elapsed:     elapsed,
		Total:       out.SizeBytes,
		FailedFiles: out.FailedFiles,
	})
	m.recompute(ctx)
	return out, persistErr
}

func (m *Manager) recompute(ctx context.Context) {
	if err := m.storage.Recompute(context.WithoutCancel(ctx)); err != nil {
		utils.Debug("storage recompute failed: %v", err)
	}
}

// Retry moves a failed item back to downloading and queues it.
func (m *Manager) Retry(ctx context.Context, id string) (Item, error) {
	m.mu.Lock()
	cur, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return Item{}, ErrNotFound
	}
	if cur.Status != StatusFailed || !cur.Status.CanTransition(StatusDownloading) {
		status := cur.Status
		m.mu.Unlock()
		return Item{}, fmt.Errorf("%w: cannot retry a %s item", ErrInvalidTransition, status)
	}
	cur.Status = StatusDownloading
	cur.Progress = 0
	cur.Error = ""
	cur.FailedFiles = nil
	cur.RunID = uuid.NewString()
	cur.UpdatedAt = m.now()
	if err := m.persistLocked(ctx); err != nil {
		m.mu.Unlock()
		return Item{}, err
	}
	out := cur.Clone()
	m.mu.Unlock()

	m.events.Publish(events.DownloadQueuedMsg{DownloadID: out.ID, DisplayName: out.DisplayName})
	if err := m.pool.Add(out.ID); err != nil {
		return out, fmt.Errorf("queue %s: %w", out.ID, err)
	}
	return out, nil
}

// Cancel stops a pending or running job and leaves it failed. Bytes already
// written stay on disk for the next attempt.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cur, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !cur.Status.IsActive() {
		status := cur.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel a %s item", ErrInvalidTransition, status)
	}
	cur.Status = StatusFailed
	cur.Error = reasonCanceled
	cur.UpdatedAt = m.now()
	if run, ok := m.active[id]; ok {
		run.cancel()
		delete(m.active, id)
	}
	err := m.persistLocked(ctx)
	m.broadcastLocked()
	name := cur.DisplayName
	m.mu.Unlock()

	m.events.Publish(events.DownloadCanceledMsg{DownloadID: id, DisplayName: name})
	return err
}

// Delete stops the job if needed, removes its local files and untracks it.
// Files that are already gone are not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	cur, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	it := cur.Clone()
	if run, ok := m.active[id]; ok {
		run.cancel()
		delete(m.active, id)
	}
	delete(m.items, id)
	persistErr := m.persistLocked(ctx)
	m.broadcastLocked()
	m.mu.Unlock()

	fileErr := m.removeFiles(it)
	var manifestErr error
	if it.EntryID > 0 {
		manifestErr = m.manifest.RemoveMedia(ctx, it.EntryID, it.Variant, mediaPath(it))
	}
	m.recompute(ctx)
	m.events.Publish(events.DownloadRemovedMsg{DownloadID: id, DisplayName: it.DisplayName})
	return errors.Join(persistErr, fileErr, manifestErr)
}

// DeleteEntry deletes every tracked job for an entry the way Delete does and
// returns how many were removed.
func (m *Manager) DeleteEntry(ctx context.Context, entryID int) (int, error) {
	m.mu.Lock()
	var ids []string
	for id, it := range m.items {
		if it.EntryID == entryID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	slices.Sort(ids)

	removed := 0
	var errs []error
	for _, id := range ids {
		err := m.Delete(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		removed++
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// ClearAll stops every job, deletes all downloaded data and resets both the
// tracked list and the offline manifest.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	for id, run := range m.active {
		run.cancel()
		delete(m.active, id)
	}
	items := m.sortedLocked()
	clear(m.items)
	persistErr := m.persistLocked(ctx)
	m.broadcastLocked()
	m.mu.Unlock()

	var errs []error
	for _, it := range items {
		if err := m.removeFiles(it); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.manifest.ClearAll(ctx); err != nil {
		errs = append(errs, err)
	}
	m.recompute(ctx)
	m.events.Publish(events.DownloadsClearedMsg{Removed: len(items)})
	return errors.Join(append([]error{persistErr}, errs...)...)
}

// Wait blocks until the item reaches completed or failed.
func (m *Manager) Wait(ctx context.Context, id string) (Item, error) {
	for {
		m.mu.Lock()
		cur, ok := m.items[id]
		if !ok {
			m.mu.Unlock()
			return Item{}, ErrNotFound
		}
		if cur.Status.IsFinished() {
			out := cur.Clone()
			m.mu.Unlock()
			return out, nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-ch:
		}
	}
}

// Shutdown stops the worker pool and waits for running jobs to return.
func (m *Manager) Shutdown() {
	m.pool.GracefulShutdown()
}

func (m *Manager) removeFiles(it Item) error {
	var err error
	switch it.Type {
	case TypeSingleTrack:
		dest := mediaPath(it)
		err = errors.Join(removeIfExists(m.fs, dest), removeIfExists(m.fs, dest+PartSuffix))
	case TypeFullEntry:
		err = removeDirFiles(m.fs, jobDir(it))
	default:
		err = m.fs.RemoveAll(jobDir(it))
	}
	if err != nil {
		return fmt.Errorf("remove files of %s: %w", it.ID, err)
	}
	return nil
}

func removeIfExists(fs afero.Fs, name string) error {
	if err := fs.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// removeDirFiles deletes the files directly inside dir and then dir itself
// once nothing else is left in it. Subdirectories are other jobs' data.
func removeDirFiles(fs afero.Fs, dir string) error {
	entries, err := afero.ReadDir(fs, dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		errs = append(errs, removeIfExists(fs, path.Join(dir, e.Name())))
	}
	if rest, err := afero.ReadDir(fs, dir); err == nil && len(rest) == 0 {
		errs = append(errs, removeIfExists(fs, dir))
	}
	return errors.Join(errs...)
}

// jobDir is the directory a job writes into. Jobs with different ids never
// share a file: single tracks live under their own subdirectory, apart from
// the entry's full download.
func jobDir(it Item) string {
	switch it.Type {
	case TypeCollection:
		return path.Join(offline.AudioDir, "collections", it.ID)
	case TypeSingleTrack:
		return offline.TrackDir(it.EntryID, it.Variant)
	}
	return offline.MediaDir(it.EntryID, it.Variant)
}

// mediaPath is what a job records in the manifest: the track file for a
// single-track job, the directory otherwise.
func mediaPath(it Item) string {
	if it.Type == TypeSingleTrack {
		return path.Join(jobDir(it), trackFileName(it.EntryID, it.VerseNumber))
	}
	return jobDir(it)
}

func trackFileName(entryID, verse int) string {
	return fmt.Sprintf("%d_%d.mp3", entryID, verse)
}

// destinations names each source's file inside dir.
func destinations(it Item, dir string, sources []string) []string {
	out := make([]string, len(sources))
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		var name string
		switch {
		case it.Type == TypeSingleTrack:
			name = trackFileName(it.EntryID, it.VerseNumber)
		case it.Type == TypeFullEntry && len(it.Sources) == 0:
			name = trackFileName(it.EntryID, i+1)
		default:
			name = utils.FileNameFromURL(src, fmt.Sprintf("%03d%s", i+1, utils.FileExt(src, ".mp3")))
			if seen[name] {
				name = fmt.Sprintf("%03d_%s", i+1, name)
			}
		}
		seen[name] = true
		out[i] = path.Join(dir, name)
	}
	return out
}

type nopManifest struct{}

func (nopManifest) MarkMediaAvailable(context.Context, int, string, string, int64) error { return nil }
func (nopManifest) RemoveMedia(context.Context, int, string, string) error             { return nil }
func (nopManifest) ClearAll(context.Context) error                                     { return nil }

type nopRecomputer struct{}

func (nopRecomputer) Recompute(context.Context) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(any) {}
