package download

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusDownloading, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusFailed, true},
		{StatusDownloading, StatusPending, false},
		{StatusFailed, StatusDownloading, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusDownloading, false},
		{StatusCompleted, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestItemIDs(t *testing.T) {
	assert.Equal(t, "1_ar.alafasy", EntryItemID(1, "ar.alafasy"))
	assert.Equal(t, "2:255_ar.alafasy", TrackItemID(2, 255, "ar.alafasy"))

	entry := NewEntryItem(112, "ar.husary", "Al-Ikhlas", "الإخلاص")
	assert.Equal(t, TypeFullEntry, entry.Type)
	assert.Equal(t, "112_ar.husary", entry.ID)
	assert.NoError(t, entry.Validate())

	track := NewTrackItem(1, 1, "ar.alafasy", "Al-Faatiha 1")
	assert.Equal(t, TypeSingleTrack, track.Type)
	assert.NoError(t, track.Validate())
}

func TestItem_Validate(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"unknown type", Item{ID: "x", Type: "playlist"}},
		{"empty id", Item{Type: TypeCollection, Sources: []string{"http://a/1.mp3"}}},
		{"path in id", Item{ID: "../etc", Type: TypeCollection, Sources: []string{"http://a/1.mp3"}}},
		{"track without verse", Item{ID: "t", Type: TypeSingleTrack, EntryID: 1, Variant: "v"}},
		{"entry without variant", Item{ID: "e", Type: TypeFullEntry, EntryID: 1}},
		{"empty collection", Item{ID: "c", Type: TypeCollection}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.item.Validate(), ErrInvalidItem)
		})
	}
}

func TestItem_PartialFailure(t *testing.T) {
	it := Item{Status: StatusCompleted}
	assert.False(t, it.PartialFailure())

	it.FailedFiles = []string{"1_2.mp3"}
	assert.True(t, it.PartialFailure())

	it.Status = StatusFailed
	assert.False(t, it.PartialFailure(), "a failed job is not a partial failure")
}

func TestItem_CloneDoesNotShareSlices(t *testing.T) {
	it := Item{Sources: []string{"a"}, FailedFiles: []string{"b"}}
	c := it.Clone()
	c.Sources[0] = "changed"
	c.FailedFiles[0] = "changed"
	assert.Equal(t, "a", it.Sources[0])
	assert.Equal(t, "b", it.FailedFiles[0])
}
