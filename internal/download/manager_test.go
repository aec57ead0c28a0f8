package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/storage"
)

const reciter = "ar.alafasy"

type fakeResolver struct {
	verses map[int]int // entry -> verse count
	fail   map[int]error
}

func (r *fakeResolver) url(entry, verse int, variant string) string {
	return fmt.Sprintf("https://cdn.test/%s/%d_%d.mp3", variant, entry, verse)
}

func (r *fakeResolver) VerseAudio(_ context.Context, entry, verse int, variant string) (string, error) {
	if err := r.fail[entry]; err != nil {
		return "", err
	}
	return r.url(entry, verse, variant), nil
}

func (r *fakeResolver) EntryAudio(_ context.Context, entry int, variant string) ([]string, error) {
	if err := r.fail[entry]; err != nil {
		return nil, err
	}
	out := make([]string, 0, r.verses[entry])
	for v := 1; v <= r.verses[entry]; v++ {
		out = append(out, r.url(entry, v, variant))
	}
	return out, nil
}

type fakeTransfer struct {
	fs   afero.Fs
	size int64

	mu    sync.Mutex
	fail  map[string]error
	calls []string
	gate  chan struct{} // when set, transfers wait for it to close
	// finishes the transfer even if the job is canceled while it waits on gate
	ignoreCancel bool
}

func (f *fakeTransfer) failURL(suffix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[suffix] = err
}

func (f *fakeTransfer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransfer) Transfer(ctx context.Context, url, dest string, progress ProgressFunc) (int64, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gate
	var failErr error
	for suffix, err := range f.fail {
		if err != nil && strings.HasSuffix(url, suffix) {
			failErr = err
		}
	}
	f.mu.Unlock()

	if gate != nil {
		progress(f.size/4, f.size)
		if f.ignoreCancel {
			<-gate
		} else {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-gate:
			}
		}
	}
	if failErr != nil {
		return 0, failErr
	}
	for i := int64(1); i <= 4; i++ {
		progress(f.size*i/4, f.size)
	}
	if err := afero.WriteFile(f.fs, dest, make([]byte, f.size), 0o644); err != nil {
		return 0, err
	}
	return f.size, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) Publish(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.msgs...)
}

func (r *recorder) progress(id string) []int {
	var out []int
	for _, m := range r.all() {
		if p, ok := m.(events.ProgressMsg); ok && p.DownloadID == id {
			out = append(out, p.Progress)
		}
	}
	return out
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, m := range r.all() {
		if events.Type(m) == kind {
			n++
		}
	}
	return n
}

type harness struct {
	fs       afero.Fs
	kv       *kvstore.Memory
	manifest *offline.Store
	acct     *storage.Accountant
	resolver *fakeResolver
	transfer *fakeTransfer
	events   *recorder
	mgr      *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fs:       afero.NewMemMapFs(),
		kv:       kvstore.NewMemory(),
		resolver: &fakeResolver{verses: map[int]int{1: 7, 112: 4, 114: 6}, fail: map[int]error{}},
		events:   &recorder{},
	}
	h.transfer = &fakeTransfer{fs: h.fs, size: 1024, fail: map[string]error{}}

	var err error
	h.manifest, err = offline.New(h.fs, h.kv, filepath.Join(t.TempDir(), offline.LockFileName))
	require.NoError(t, err)
	h.acct = storage.New(h.fs, h.manifest, 0)
	h.mgr = h.open(t)
	return h
}

func (h *harness) open(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(context.Background(), Options{
		Fs:            h.fs,
		KV:            h.kv,
		Manifest:      h.manifest,
		Storage:       h.acct,
		Resolver:      h.resolver,
		Transfer:      h.transfer,
		Events:        h.events,
		MaxConcurrent: 2,
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	return mgr
}

func (h *harness) run(t *testing.T, it Item) Item {
	t.Helper()
	_, err := h.mgr.Enqueue(context.Background(), it)
	require.NoError(t, err)
	return h.wait(t, it.ID)
}

func (h *harness) wait(t *testing.T, id string) Item {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := h.mgr.Wait(ctx, id)
	require.NoError(t, err)
	return got
}

func TestEnqueue_SingleTrackCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got := h.run(t, NewTrackItem(2, 255, reciter, "Al-Baqara 255"))

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/audio/2/ar.alafasy/tracks/2_255.mp3", got.LocalPath)
	assert.Equal(t, "https://cdn.test/ar.alafasy/2_255.mp3", got.RemoteSource)
	assert.Equal(t, int64(1024), got.SizeBytes)
	assert.NotEmpty(t, got.RunID)
	assert.False(t, got.PartialFailure())

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), m.Media[2].Files["tracks/2_255.mp3"])

	used, err := h.acct.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), used)
	assert.Equal(t, 1, h.events.count("complete"))
}

func TestEnqueue_RejectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	it := NewEntryItem(112, reciter, "Al-Ikhlas", "")

	h.run(t, it)

	_, err := h.mgr.Enqueue(ctx, it)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, h.mgr.List(), 1)
	assert.Equal(t, 1, h.events.count("rejected"))

	// A failed id is not re-enqueued either; Retry is the way back.
	h.resolver.fail[1] = errors.New("offline")
	failed := NewEntryItem(1, reciter, "Al-Faatiha", "")
	assert.Equal(t, StatusFailed, h.run(t, failed).Status)
	_, err = h.mgr.Enqueue(ctx, failed)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, h.mgr.List(), 2)
}

func TestEnqueue_ConcurrentSameIDTracksOnce(t *testing.T) {
	h := newHarness(t)
	it := NewEntryItem(114, reciter, "An-Naas", "")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.mgr.Enqueue(context.Background(), it); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Len(t, h.mgr.List(), 1)
	h.wait(t, it.ID)
}

func TestFullEntry_ProgressIsMonotonicAndEndsAt100(t *testing.T) {
	h := newHarness(t)

	got := h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", "الفاتحة"))
	require.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)

	seen := h.events.progress(got.ID)
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.LessOrEqual(t, seen[len(seen)-1], 99, "100 is only reported on completion")
	assert.Len(t, h.transfer.Calls(), 7)
}

func TestFullEntry_PartialFailureKeepsCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.resolver.verses[3] = 3
	h.transfer.failURL("/3_2.mp3", errors.New("connection reset"))

	got := h.run(t, NewEntryItem(3, reciter, "Aal-i-Imraan", ""))

	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.True(t, got.PartialFailure())
	assert.Equal(t, []string{"3_2.mp3"}, got.FailedFiles)
	assert.Equal(t, "/audio/3/ar.alafasy", got.LocalPath)
	assert.Equal(t, int64(2048), got.SizeBytes)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	rec := m.Media[3]
	assert.True(t, rec.Downloaded)
	assert.Len(t, rec.Files, 2)
	assert.Contains(t, rec.Files, "3_1.mp3")
	assert.Contains(t, rec.Files, "3_3.mp3")
	assert.Equal(t, 1, h.events.count("file_skipped"))
}

func TestFullEntry_AllFilesFailedIsFailed(t *testing.T) {
	h := newHarness(t)
	h.transfer.failURL(".mp3", errors.New("unreachable"))

	got := h.run(t, NewEntryItem(112, reciter, "Al-Ikhlas", ""))

	assert.Equal(t, StatusFailed, got.Status)
	assert.Len(t, got.FailedFiles, 4)
	assert.Contains(t, got.Error, "all 4 files failed")
	assert.Equal(t, 1, h.events.count("error"))
}

func TestFullEntry_UnresolvableSourcesFailsJob(t *testing.T) {
	h := newHarness(t)
	h.resolver.fail[114] = errors.New("api down")

	got := h.run(t, NewEntryItem(114, reciter, "An-Naas", ""))

	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "resolve sources")
	assert.Empty(t, h.transfer.Calls())
}

func TestRetry_OnlyFromFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	done := h.run(t, NewEntryItem(112, reciter, "Al-Ikhlas", ""))
	_, err := h.mgr.Retry(ctx, done.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = h.mgr.Retry(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	h.transfer.failURL("/114_1.mp3", errors.New("timeout"))
	failed := h.run(t, NewTrackItem(114, 1, reciter, "An-Naas 1"))
	require.Equal(t, StatusFailed, failed.Status)

	h.transfer.failURL("/114_1.mp3", nil)
	retried, err := h.mgr.Retry(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, retried.Status)
	assert.Zero(t, retried.Progress)
	assert.NotEqual(t, failed.RunID, retried.RunID)

	got := h.wait(t, failed.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, retried.RunID, got.RunID)
}

func TestFullEntry_KeepsFilesAlreadyOnDisk(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.transfer.failURL("/112_4.mp3", errors.New("reset"))
	h.transfer.failURL("/112_3.mp3", errors.New("reset"))
	h.transfer.failURL("/112_2.mp3", errors.New("reset"))
	h.transfer.failURL("/112_1.mp3", errors.New("reset"))

	// Leave one file from an "earlier" run in place.
	require.NoError(t, h.fs.MkdirAll(offline.MediaDir(112, reciter), 0o755))
	require.NoError(t, afero.WriteFile(h.fs, offline.MediaDir(112, reciter)+"/112_1.mp3", make([]byte, 10), 0o644))

	got := h.run(t, NewEntryItem(112, reciter, "Al-Ikhlas", ""))
	require.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, []string{"112_2.mp3", "112_3.mp3", "112_4.mp3"}, got.FailedFiles)
	assert.Len(t, h.transfer.Calls(), 3, "the file already on disk is not fetched again")

	for _, v := range []string{"/112_2.mp3", "/112_3.mp3", "/112_4.mp3"} {
		h.transfer.failURL(v, nil)
	}
	require.NoError(t, h.mgr.Delete(ctx, got.ID))
	got = h.run(t, NewEntryItem(112, reciter, "Al-Ikhlas", ""))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Empty(t, got.FailedFiles)
}

func TestCancel_LeavesFailedAndRetryable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.transfer.gate = make(chan struct{})

	it, err := h.mgr.Enqueue(ctx, NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur, _ := h.mgr.Get(it.ID)
		return cur.Status == StatusDownloading && cur.Progress > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.mgr.Cancel(ctx, it.ID))
	got := h.wait(t, it.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, reasonCanceled, got.Error)
	assert.Equal(t, 1, h.events.count("canceled"))

	require.ErrorIs(t, h.mgr.Cancel(ctx, it.ID), ErrInvalidTransition)

	close(h.transfer.gate)
	_, err = h.mgr.Retry(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, h.wait(t, it.ID).Status)
}

func TestDelete_IdempotentWhenFilesMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got := h.run(t, NewTrackItem(1, 2, reciter, "Al-Faatiha 2"))
	require.NoError(t, h.fs.Remove(got.LocalPath))

	require.NoError(t, h.mgr.Delete(ctx, got.ID))
	_, err := h.mgr.Get(got.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.mgr.List())

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.NotContains(t, m.Media, 1)

	assert.ErrorIs(t, h.mgr.Delete(ctx, got.ID), ErrNotFound)
	assert.Equal(t, 1, h.events.count("removed"))
}

func TestDelete_FullEntryRemovesDirectory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got := h.run(t, NewEntryItem(114, reciter, "An-Naas", ""))
	require.NoError(t, h.mgr.Delete(ctx, got.ID))

	exists, err := afero.DirExists(h.fs, got.LocalPath)
	require.NoError(t, err)
	assert.False(t, exists)

	used, err := h.acct.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, used)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.TotalBytes)
}

func TestClearAll_RemovesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	h.run(t, NewTrackItem(2, 255, reciter, "Al-Baqara 255"))
	require.NoError(t, h.manifest.SaveEntryText(ctx, 1, map[string]string{"text": "..."}))
	require.NoError(t, h.manifest.MarkEntryAvailable(ctx, 1))

	require.NoError(t, h.mgr.ClearAll(ctx))

	assert.Empty(t, h.mgr.List())
	used, err := h.acct.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, used)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
	assert.Empty(t, m.Media)
	assert.Zero(t, m.TotalBytes)

	// Layout is recreated so later downloads still work.
	assert.Equal(t, StatusCompleted, h.run(t, NewTrackItem(1, 1, reciter, "Al-Faatiha 1")).Status)
}

func TestCollection_UsesExplicitSources(t *testing.T) {
	h := newHarness(t)
	it := Item{
		ID:          "morning",
		Type:        TypeCollection,
		DisplayName: "Morning",
		Sources: []string{
			"https://cdn.test/a/36_1.mp3",
			"https://cdn.test/b/36_1.mp3",
			"https://cdn.test/c/67_1.mp3",
		},
	}

	got := h.run(t, it)
	require.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/audio/collections/morning", got.LocalPath)

	names, err := afero.ReadDir(h.fs, got.LocalPath)
	require.NoError(t, err)
	assert.Len(t, names, 3, "duplicate file names get an index prefix")
}

func TestNewManager_StartupRecovery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now()

	list := persistedList{SchemaVersion: listSchemaVersion, Items: []Item{
		{ID: "1_ar.alafasy", Type: TypeFullEntry, EntryID: 1, Variant: reciter, Status: StatusDownloading, Progress: 40, CreatedAt: now},
		{ID: "112_ar.alafasy", Type: TypeFullEntry, EntryID: 112, Variant: reciter, Status: StatusPending, CreatedAt: now.Add(time.Second)},
	}}
	data, err := json.Marshal(list)
	require.NoError(t, err)
	require.NoError(t, h.kv.Set(ctx, ListKey, data))

	mgr := h.open(t)
	interrupted, err := mgr.Get("1_ar.alafasy")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, interrupted.Status)
	assert.Equal(t, reasonInterrupted, interrupted.Error)

	pending, err := mgr.Get("112_ar.alafasy")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pending.Status)

	assert.Equal(t, 1, mgr.ResumePending())
	ctxWait, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	got, err := mgr.Wait(ctxWait, "112_ar.alafasy")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestNewManager_IgnoresCorruptOrForeignList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.kv.Set(ctx, ListKey, []byte("{broken")))
	assert.Empty(t, h.open(t).List())

	require.NoError(t, h.kv.Set(ctx, ListKey, []byte(`{"schema_version":99,"items":[{"id":"x"}]}`)))
	assert.Empty(t, h.open(t).List())
}

func TestEnqueue_PersistFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.kv.FailWrites(true)

	_, err := h.mgr.Enqueue(context.Background(), NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	require.ErrorIs(t, err, kvstore.ErrWriteFailed)
	assert.Empty(t, h.mgr.List())
}

func TestList_SurvivesRestart(t *testing.T) {
	h := newHarness(t)
	h.run(t, NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	h.run(t, NewEntryItem(112, reciter, "Al-Ikhlas", ""))

	reopened := h.open(t)
	items := reopened.List()
	require.Len(t, items, 2)
	assert.Equal(t, "1:1_ar.alafasy", items[0].ID)
	for _, it := range items {
		assert.Equal(t, StatusCompleted, it.Status)
	}
}

func TestDelete_TrackKeepsEntryDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entry := h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	track := h.run(t, NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	require.Equal(t, StatusCompleted, entry.Status)
	require.Equal(t, StatusCompleted, track.Status)
	assert.NotEqual(t, path.Dir(track.LocalPath), entry.LocalPath)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, m.Media[1].Files, 8)

	require.NoError(t, h.mgr.Delete(ctx, track.ID))

	got, err := h.mgr.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	exists, err := afero.Exists(h.fs, entry.LocalPath+"/1_1.mp3")
	require.NoError(t, err)
	assert.True(t, exists, "the entry's own copy of verse 1 must survive")

	m, err = h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, m.Media[1].Files, 7)
	assert.Contains(t, m.Media[1].Files, "1_1.mp3")
	assert.NotContains(t, m.Media[1].Files, "tracks/1_1.mp3")
}

func TestDelete_EntryKeepsTrackDownload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	track := h.run(t, NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	entry := h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", ""))

	require.NoError(t, h.mgr.Delete(ctx, entry.ID))

	exists, err := afero.Exists(h.fs, track.LocalPath)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = afero.Exists(h.fs, entry.LocalPath+"/1_2.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := h.mgr.Get(track.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"tracks/1_1.mp3": 1024}, m.Media[1].Files)
}

func TestEnqueue_RedownloadsWhenFilesRemoved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	require.Equal(t, StatusCompleted, first.Status)
	require.NoError(t, h.manifest.RemoveEntry(ctx, 1))

	again, err := h.mgr.Enqueue(ctx, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)

	got := h.wait(t, first.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Len(t, h.mgr.List(), 1)
	exists, err := afero.Exists(h.fs, got.LocalPath+"/1_7.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	// Still present on disk, so still a duplicate.
	_, err = h.mgr.Enqueue(ctx, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDeleteEntry_RemovesEveryJobOfTheEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.run(t, NewEntryItem(1, reciter, "Al-Faatiha", ""))
	h.run(t, NewTrackItem(1, 3, reciter, "Al-Faatiha 3"))
	other := h.run(t, NewTrackItem(112, 1, reciter, "Al-Ikhlaas 1"))

	n, err := h.mgr.DeleteEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := h.mgr.List()
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.NotContains(t, m.Media, 1)
	assert.Contains(t, m.Media, 112)

	n, err = h.mgr.DeleteEntry(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete_WhileTransferFinishesLeavesNoManifestRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.transfer.gate = make(chan struct{})
	h.transfer.ignoreCancel = true

	it, err := h.mgr.Enqueue(ctx, NewTrackItem(1, 1, reciter, "Al-Faatiha 1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		cur, _ := h.mgr.Get(it.ID)
		return cur.Status == StatusDownloading && cur.Progress > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.mgr.Delete(ctx, it.ID))
	close(h.transfer.gate)
	h.mgr.Shutdown() // waits for the run to return

	m, err := h.manifest.Status(ctx)
	require.NoError(t, err)
	assert.NotContains(t, m.Media, 1)
	assert.Empty(t, h.mgr.List())
}
