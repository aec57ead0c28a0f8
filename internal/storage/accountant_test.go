package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/offline"
)

func setup(t *testing.T, quota int64) (afero.Fs, *offline.Store, *Accountant) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := offline.New(fs, kvstore.NewMemory(), "")
	require.NoError(t, err)
	return fs, store, New(fs, store, quota)
}

func write(t *testing.T, fs afero.Fs, p string, size int) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, afero.WriteFile(fs, p, make([]byte, size), 0644))
}

func TestUsedBytes(t *testing.T) {
	fs, _, acct := setup(t, 0)
	ctx := context.Background()

	used, err := acct.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Zero(t, used)

	write(t, fs, "/audio/1/v/1_1.mp3", 1000)
	write(t, fs, "/audio/1/v/1_2.mp3.part", 250)
	write(t, fs, "/surahs/1.json", 50)

	used, err = acct.UsedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), used)
}

func TestReconcile(t *testing.T) {
	fs, store, acct := setup(t, 0)
	ctx := context.Background()

	write(t, fs, "/audio/1/v/1_1.mp3", 1000)
	write(t, fs, "/audio/1/v/1_2.mp3.part", 300)
	require.NoError(t, store.MarkMediaAvailable(ctx, 1, "v", "/audio/1/v/1_1.mp3", 1000))

	recorded, err := acct.ManifestBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), recorded)

	drift, err := acct.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), drift)

	recorded, err = acct.ManifestBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), recorded)

	drift, err = acct.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, drift)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		used, quota int64
		want        float64
	}{
		{0, 100, 0},
		{25, 100, 25},
		{100, 100, 100},
		{500, 100, 100},
		{-5, 100, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Percent(tt.used, tt.quota), 0.0001, "Percent(%d, %d)", tt.used, tt.quota)
	}
}

func TestUsage(t *testing.T) {
	fs, _, acct := setup(t, 4000)
	write(t, fs, "/audio/2/v/2_1.mp3", 1000)

	u, err := acct.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), u.UsedBytes)
	assert.Equal(t, int64(4000), u.QuotaBytes)
	assert.InDelta(t, 25.0, u.PercentUsed, 0.0001)

	p, err := acct.PercentUsed(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0, p, 0.0001)
}

func TestDefaultQuota(t *testing.T) {
	_, _, acct := setup(t, 0)
	assert.Equal(t, DefaultQuotaBytes, acct.QuotaBytes())
}
