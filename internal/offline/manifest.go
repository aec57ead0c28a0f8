package offline

import (
	"maps"
	"slices"
	"time"
)

// SchemaVersion tags the persisted manifest and text files. A mismatch is
// read as an empty manifest.
const SchemaVersion = 1

// MediaRecord describes downloaded audio for one entry under one variant.
// FilePath is the directory holding the tracks; Files maps each track's path
// relative to FilePath to its size in bytes.
type MediaRecord struct {
	VariantID  string           `json:"variant_id"`
	Downloaded bool             `json:"downloaded"`
	FilePath   string           `json:"file_path"`
	SizeBytes  int64            `json:"size_bytes"`
	Files      map[string]int64 `json:"files,omitempty"`
}

// Manifest is the persisted record of what is available offline.
type Manifest struct {
	SchemaVersion         int                 `json:"schema_version"`
	Entries               []int               `json:"entries"`
	Media                 map[int]MediaRecord `json:"media"`
	TranslationsAvailable map[string]bool     `json:"translations_available"`
	TextBytes             map[int]int64       `json:"text_bytes,omitempty"`
	LastUpdated           time.Time           `json:"last_updated"`
	TotalBytes            int64               `json:"total_bytes"`
}

func emptyManifest() *Manifest {
	return &Manifest{
		SchemaVersion:         SchemaVersion,
		Entries:               []int{},
		Media:                 map[int]MediaRecord{},
		TranslationsAvailable: map[string]bool{},
		TextBytes:             map[int]int64{},
	}
}

// HasEntry reports whether id is recorded as available.
func (m *Manifest) HasEntry(id int) bool {
	_, found := slices.BinarySearch(m.Entries, id)
	return found
}

// MediaFileCount is the number of tracks recorded across all entries.
func (m *Manifest) MediaFileCount() int {
	n := 0
	for _, rec := range m.Media {
		n += len(rec.Files)
	}
	return n
}

func (m *Manifest) addEntry(id int) {
	i, found := slices.BinarySearch(m.Entries, id)
	if !found {
		m.Entries = slices.Insert(m.Entries, i, id)
	}
}

func (m *Manifest) removeEntry(id int) {
	if i, found := slices.BinarySearch(m.Entries, id); found {
		m.Entries = slices.Delete(m.Entries, i, i+1)
	}
}

// recordedBytes sums the sizes of every media track and text file recorded.
func (m *Manifest) recordedBytes() int64 {
	var total int64
	for _, rec := range m.Media {
		total += rec.SizeBytes
	}
	for _, n := range m.TextBytes {
		total += n
	}
	return total
}

// normalize fills nil collections after decoding.
func (m *Manifest) normalize() {
	if m.Entries == nil {
		m.Entries = []int{}
	}
	slices.Sort(m.Entries)
	m.Entries = slices.Compact(m.Entries)
	if m.Media == nil {
		m.Media = map[int]MediaRecord{}
	}
	if m.TranslationsAvailable == nil {
		m.TranslationsAvailable = map[string]bool{}
	}
	if m.TextBytes == nil {
		m.TextBytes = map[int]int64{}
	}
}

// Clone returns a deep copy.
func (m *Manifest) Clone() Manifest {
	out := *m
	out.Entries = slices.Clone(m.Entries)
	out.Media = make(map[int]MediaRecord, len(m.Media))
	for id, rec := range m.Media {
		rec.Files = maps.Clone(rec.Files)
		out.Media[id] = rec
	}
	out.TranslationsAvailable = maps.Clone(m.TranslationsAvailable)
	out.TextBytes = maps.Clone(m.TextBytes)
	return out
}
