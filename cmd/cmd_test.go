package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/config"
	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/core"
	"github.com/tilawa-app/tilawa/internal/download"
	"github.com/tilawa-app/tilawa/internal/events"
	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/server"
	"github.com/tilawa-app/tilawa/internal/testutil"
)

// setupHome points the app directory at a fresh temp dir and serves content
// from a fake API.
func setupHome(t *testing.T) *testutil.FakeQuranAPI {
	t.Helper()
	t.Setenv(config.HomeEnv, t.TempDir())
	t.Setenv(ServerEnv, "")

	audio := testutil.NewAudioServerT(t, testutil.WithFileSize(1024))
	t.Cleanup(audio.Close)
	api := testutil.NewFakeQuranAPIT(t, testutil.WithAudioEdition("ar.alafasy", audio.URL()))
	t.Cleanup(api.Close)

	s := config.DefaultSettings()
	s.Network.APIBaseURL = api.URL()
	s.Retry.MaxRetries = 0
	s.Retry.RetryDelay = time.Millisecond
	require.NoError(t, config.SaveSettings(s))
	return api
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestSurahCommand(t *testing.T) {
	setupHome(t)

	out, err := run(t, "surah", "112")
	require.NoError(t, err)
	assert.Contains(t, out, "112. Al-Ikhlaas")
	assert.Contains(t, out, "4 verses")

	_, err = run(t, "surah", "115")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a surah number")
}

func TestSurahCommand_ListAll(t *testing.T) {
	setupHome(t)

	out, err := run(t, "surah")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Al-Faatiha")
	assert.Contains(t, out, "114. An-Naas")
}

func TestVerseCommand(t *testing.T) {
	setupHome(t)

	out, err := run(t, "verse", "112:1")
	require.NoError(t, err)
	assert.Contains(t, out, "[112:1]")
	assert.Contains(t, out, "en.asad 112:1")

	out, err = run(t, "--json", "verse", "112:1")
	require.NoError(t, err)
	var res content.Result[content.Verse]
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "112:1", res.Data.Key)
	assert.Equal(t, content.SourceCache, res.Source, "second read is served from the cache")
}

func TestVerseCommand_InvalidKey(t *testing.T) {
	setupHome(t)

	_, err := run(t, "verse", "112:40")
	require.Error(t, err)
	assert.True(t, errors.Is(err, content.ErrInvalidKey))
	assert.Contains(t, userError(err), "not a valid verse reference")
}

func TestAudioCommand(t *testing.T) {
	setupHome(t)

	out, err := run(t, "audio", "112:2")
	require.NoError(t, err)
	assert.Contains(t, out, "/ar.alafasy/112_2.mp3")
}

func TestRandomCommand_NeverFails(t *testing.T) {
	api := setupHome(t)
	api.SetFailure(500)

	out, err := run(t, "random")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestDownloadSurah_WaitsForCompletion(t *testing.T) {
	setupHome(t)

	out, err := run(t, "download", "surah", "112")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Queued: Al-Ikhlaas")
	assert.Contains(t, out, "Completed: Al-Ikhlaas")

	out, err = run(t, "downloads", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "112_ar.alafasy")
	assert.Contains(t, out, "completed")

	// The state survives into the next process and rejects a second add.
	_, err = run(t, "download", "surah", "112")
	require.Error(t, err)
	assert.True(t, errors.Is(err, download.ErrDuplicate))
}

func TestDownloadVerse_JSON(t *testing.T) {
	setupHome(t)

	out, err := run(t, "--json", "download", "verse", "112:3")
	require.NoError(t, err, out)
	var it download.Item
	require.NoError(t, json.Unmarshal([]byte(out), &it))
	assert.Equal(t, "112:3_ar.alafasy", it.ID)
	assert.Equal(t, download.StatusCompleted, it.Status)
	assert.Equal(t, 100, it.Progress)
}

func TestDownloadsDeleteAndClear(t *testing.T) {
	setupHome(t)

	_, err := run(t, "download", "verse", "112:1")
	require.NoError(t, err)
	_, err = run(t, "download", "verse", "112:2")
	require.NoError(t, err)

	out, err := run(t, "downloads", "delete", "112:1_ar.alafasy")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 112:1_ar.alafasy")

	_, err = run(t, "downloads", "delete", "112:1_ar.alafasy")
	assert.True(t, errors.Is(err, download.ErrNotFound))

	_, err = run(t, "downloads", "clear")
	require.Error(t, err, "clear needs --yes")

	_, err = run(t, "downloads", "clear", "--yes")
	require.NoError(t, err)
	out, err = run(t, "downloads")
	require.NoError(t, err)
	assert.Contains(t, out, "No downloads.")
}

func TestOfflineText(t *testing.T) {
	setupHome(t)

	out, err := run(t, "download", "text", "112")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved Al-Ikhlaas (4 verses")

	out, err = run(t, "offline", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Text: 1 surah(s): 112")
	assert.Contains(t, out, "en.asad")

	out, err = run(t, "verses", "112")
	require.NoError(t, err)
	assert.Contains(t, out, "(saved offline)")

	out, err = run(t, "storage")
	require.NoError(t, err)
	assert.Contains(t, out, "Used:")

	_, err = run(t, "offline", "remove", "112")
	require.NoError(t, err)
	out, err = run(t, "offline", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing saved offline.")
}

func TestCacheStats(t *testing.T) {
	setupHome(t)

	_, err := run(t, "tafsir", "112:1")
	require.NoError(t, err)

	out, err := run(t, "--json", "cache", "stats")
	require.NoError(t, err)
	var st struct {
		Entries int `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Positive(t, st.Entries)
}

func TestConfigSetGetReset(t *testing.T) {
	setupHome(t)

	out, err := run(t, "config", "set", "max_concurrent_jobs", "4")
	require.NoError(t, err)
	assert.Equal(t, "max_concurrent_jobs = 4\n", out)

	s, err := config.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 4, s.Downloads.MaxConcurrentJobs)

	_, err = run(t, "config", "set", "max_concurrent_jobs", "40")
	require.Error(t, err)

	_, err = run(t, "config", "set", "no_such_key", "1")
	require.Error(t, err)

	out, err = run(t, "config", "reset", "max_concurrent_jobs")
	require.NoError(t, err)
	assert.Equal(t, "max_concurrent_jobs = 2\n", out)

	out, err = run(t, "config", "get", "default_reciter")
	require.NoError(t, err)
	assert.Equal(t, "ar.alafasy\n", out)

	out, err = run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[Downloads]")
	assert.Contains(t, out, "api_base_url")
}

func TestResolveConnectBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{in: "localhost:9000/", want: "http://localhost:9000"},
		{in: "https://quran.example.com/", want: "https://quran.example.com"},
		{in: "", wantErr: true},
		{in: "no-port", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := resolveConnectBaseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActivePortFile(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())

	assert.Equal(t, 0, readActivePort())
	require.NoError(t, saveActivePort(9123))
	assert.Equal(t, 9123, readActivePort())

	removeActivePort()
	assert.Equal(t, 0, readActivePort())

	require.NoError(t, os.WriteFile(portFilePath(), []byte("garbage"), 0o644))
	assert.Equal(t, 0, readActivePort())
	assert.Empty(t, discoverServer())
}

func TestOpenBackend_RefusesSecondLocalInstance(t *testing.T) {
	setupHome(t)

	lock := flock.New(config.GetLockPath())
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = lock.Unlock() }()

	_, err = run(t, "downloads", "list")
	assert.ErrorIs(t, err, errAlreadyRunning)
}

// startServer runs a server backed by an in-memory service and publishes its
// port the way `tilawa serve` does.
func startServer(t *testing.T, api *testutil.FakeQuranAPI) *core.Service {
	t.Helper()
	settings := config.DefaultSettings()
	settings.Network.APIBaseURL = api.URL()
	settings.Retry.MaxRetries = 0

	svc, err := core.NewWithDeps(context.Background(), settings, core.Deps{
		KV:       kvstore.NewMemory(),
		Fs:       afero.NewMemMapFs(),
		LockPath: filepath.Join(t.TempDir(), offline.LockFileName),
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.New(svc).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = svc.Shutdown()
	})

	require.NoError(t, saveActivePort(ln.Addr().(*net.TCPAddr).Port))
	return svc
}

func TestOpenBackend_ForwardsToRunningServer(t *testing.T) {
	api := setupHome(t)
	svc := startServer(t, api)

	// The server owns the queue, so the local lock being taken is not an error.
	lock := flock.New(config.GetLockPath())
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = lock.Unlock() }()

	out, err := run(t, "serve", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "is running at http://127.0.0.1:")

	out, err = run(t, "download", "verse", "114:1")
	require.NoError(t, err, out)

	it, err := svc.GetStatus("114:1_ar.alafasy")
	require.NoError(t, err)
	assert.Equal(t, download.StatusCompleted, it.Status)

	out, err = run(t, "surah", "114")
	require.NoError(t, err)
	assert.Contains(t, out, "An-Naas")
}

func TestExplicitServerFlag_BadAddress(t *testing.T) {
	setupHome(t)

	_, err := run(t, "--server", "nonsense", "downloads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server address")
}

func TestParseAddArg(t *testing.T) {
	req, err := parseAddArg("36")
	require.NoError(t, err)
	assert.Equal(t, core.AddRequest{Surah: 36}, req)

	req, err = parseAddArg("2:255")
	require.NoError(t, err)
	assert.Equal(t, core.AddRequest{Surah: 2, Verse: 255}, req)

	for _, bad := range []string{"0", "115", "x", "2:", "2:0", ":3"} {
		_, err := parseAddArg(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	printEvent(&buf, events.DownloadCompleteMsg{
		DownloadID:  "1_ar.alafasy",
		DisplayName: "Al-Faatiha",
		Total:       2048,
		Elapsed:     1500 * time.Millisecond,
		FailedFiles: []string{"1_3.mp3"},
	}, false)
	assert.Equal(t, "Completed: Al-Faatiha [1_ar.alafasy] 2.0 KiB in 1.5s, missing 1_3.mp3\n", buf.String())

	buf.Reset()
	printEvent(&buf, events.ProgressMsg{DownloadID: "1_ar.alafasy", Progress: 40}, false)
	assert.Empty(t, buf.String())

	printEvent(&buf, events.DownloadErrorMsg{DownloadID: "1_ar.alafasy", DisplayName: "Al-Faatiha", Err: fmt.Errorf("boom")}, true)
	assert.Equal(t, "Error: Al-Faatiha [1_ar.alafasy]: boom\n", buf.String())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "completed (2 missing)", statusLabel(download.Item{
		Status: download.StatusCompleted, FailedFiles: []string{"a", "b"},
	}))
	assert.Equal(t, "failed: interrupted", statusLabel(download.Item{
		Status: download.StatusFailed, Error: "interrupted",
	}))
	assert.Equal(t, "pending", statusLabel(download.Item{Status: download.StatusPending}))
}
