package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerseMap_AdvanceAndFinish(t *testing.T) {
	m := NewVerseMap(4)
	m.Advance(0)
	assert.Equal(t, []FileState{FileDownloading, FilePending, FilePending, FilePending}, m.States)

	m.Set(1, FileFailed)
	m.Advance(2)
	assert.Equal(t, []FileState{FileDone, FileFailed, FileDownloading, FilePending}, m.States)

	m.Advance(1)
	assert.Equal(t, FileFailed, m.States[1])

	m.Finish()
	done, failed := m.Counts()
	assert.Equal(t, 3, done)
	assert.Equal(t, 1, failed)
}

func TestVerseMap_SetGrows(t *testing.T) {
	var m VerseMapModel
	m.Set(2, FileDone)
	assert.Len(t, m.States, 3)
	m.Set(-1, FileDone)
	assert.Len(t, m.States, 3)
}

func TestVerseMap_ViewLayout(t *testing.T) {
	m := NewVerseMap(7)
	m.Width = 6 // three blocks per row

	assert.Equal(t, 3, m.Rows())
	view := m.View()
	assert.Len(t, strings.Split(view, "\n"), 3)
	assert.Equal(t, 7, strings.Count(view, block))
}

func TestVerseMap_DownsamplesToHeight(t *testing.T) {
	m := NewVerseMap(286)
	m.Width = 20
	m.Height = 2
	m.Set(100, FileFailed)

	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 20, strings.Count(m.View(), block))

	failedSeen := false
	for i := 0; i < 20; i++ {
		if m.cellState(i, 20) == FileFailed {
			failedSeen = true
		}
	}
	assert.True(t, failedSeen)
}

func TestVerseMap_Empty(t *testing.T) {
	var m VerseMapModel
	assert.Empty(t, m.View())
	assert.Zero(t, m.Rows())
}
