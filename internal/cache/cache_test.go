package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilawa-app/tilawa/internal/kvstore"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

type surah struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
}

func TestCache_FreshnessWindow(t *testing.T) {
	offsets := []struct {
		after time.Duration
		hit   bool
	}{
		{0, true},
		{time.Minute, true},
		{59*time.Minute + 59*time.Second, true},
		{time.Hour - time.Nanosecond, true},
		{time.Hour, false},
		{time.Hour + time.Second, false},
		{48 * time.Hour, false},
	}

	for _, tt := range offsets {
		t.Run(tt.after.String(), func(t *testing.T) {
			clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
			store := kvstore.NewMemory()
			c := New(store, WithClock(clock.Now))
			ctx := context.Background()

			c.Set(ctx, "surah_1", surah{Number: 1, Name: "Al-Fatiha"})
			clock.Advance(tt.after)

			// Both the hot layer and a cold instance must agree
			var got surah
			assert.Equal(t, tt.hit, c.Get(ctx, "surah_1", &got), "hot read")
			cold := New(store, WithClock(clock.Now))
			assert.Equal(t, tt.hit, cold.Get(ctx, "surah_1", &got), "cold read")
			if tt.hit {
				assert.Equal(t, "Al-Fatiha", got.Name)
			}
		})
	}
}

func TestCache_Miss(t *testing.T) {
	c := New(kvstore.NewMemory())
	var got surah
	assert.False(t, c.Get(context.Background(), "absent", &got))
}

func TestCache_OverwriteRefreshesTimestamp(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := New(kvstore.NewMemory(), WithClock(clock.Now))
	ctx := context.Background()

	c.Set(ctx, "k", surah{Number: 1})
	clock.Advance(50 * time.Minute)
	c.Set(ctx, "k", surah{Number: 2})
	clock.Advance(50 * time.Minute)

	var got surah
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, 2, got.Number)
}

func TestCache_PerKeyTTL(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := New(kvstore.NewMemory(), WithClock(clock.Now))
	ctx := context.Background()

	c.SetWithTTL(ctx, "short", surah{Number: 1}, 5*time.Minute)
	c.SetWithTTL(ctx, "long", surah{Number: 2}, 3*time.Hour)
	clock.Advance(2 * time.Hour)

	var got surah
	assert.False(t, c.Get(ctx, "short", &got))
	assert.True(t, c.Get(ctx, "long", &got))
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, StorageKey("surah_1"), []byte("{not json")))

	c := New(store)
	var got surah
	assert.False(t, c.Get(ctx, "surah_1", &got))
}

func TestCache_UndecodableValueIsMiss(t *testing.T) {
	c := New(kvstore.NewMemory())
	ctx := context.Background()
	c.Set(ctx, "k", "a string, not a surah")

	var got surah
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestCache_SchemaMismatchIsMiss(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()
	blob := `{"schema_version":0,"key":"k","stored_at":"` + time.Now().Format(time.RFC3339Nano) + `","value":{"number":1}}`
	require.NoError(t, store.Set(ctx, StorageKey("k"), []byte(blob)))

	var got surah
	assert.False(t, New(store).Get(ctx, "k", &got))
}

func TestCache_WriteFailureIsSwallowed(t *testing.T) {
	store := kvstore.NewMemory()
	store.FailWrites(true)
	c := New(store)
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Set(ctx, "k", surah{Number: 1}) })
	assert.Error(t, c.SetE(ctx, "k", surah{Number: 1}, 0))

	var got surah
	assert.False(t, c.Get(ctx, "k", &got), "failed write must not be served from memory")
}

func TestCache_Stats(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "downloads", []byte("[]")))

	c := New(store)
	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Greater(t, stats.SizeBytes, int64(0))
	assert.Equal(t, 2, stats.HotLen)
}
