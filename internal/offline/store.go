package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/tilawa-app/tilawa/internal/kvstore"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// ManifestKey is the key-value key the manifest is persisted under.
const ManifestKey = "offline_content"

// LockFileName is created in the offline root to serialize writers across
// processes.
const LockFileName = ".manifest.lock"

// Directory layout inside the offline root.
const (
	TextDir  = "/surahs"
	AudioDir = "/audio"
)

// ErrNotAvailable is returned when an entry is not stored offline.
var ErrNotAvailable = errors.New("offline: entry not available")

// textFile wraps saved entry text with a schema version.
type textFile struct {
	SchemaVersion int             `json:"schema_version"`
	EntryID       int             `json:"entry_id"`
	SavedAt       time.Time       `json:"saved_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Store is the offline manifest store. Paths are rooted at "/" on fs.
type Store struct {
	fs   afero.Fs
	kv   kvstore.Store
	lock *flock.Flock // nil disables cross-process locking
	now  func() time.Time

	mu sync.Mutex
}

// New returns a Store. lockPath may be empty, in which case writers are only
// serialized within this process.
func New(fs afero.Fs, kv kvstore.Store, lockPath string) (*Store, error) {
	s := &Store{fs: fs, kv: kv, now: time.Now}
	if lockPath != "" {
		if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		s.lock = flock.New(lockPath)
	}
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}
	return s, nil
}

// Fs returns the filesystem the store writes to.
func (s *Store) Fs() afero.Fs { return s.fs }

// TextPath returns the file a downloaded entry's text lives in.
func TextPath(id int) string {
	return path.Join(TextDir, strconv.Itoa(id)+".json")
}

// MediaDir returns the directory for an entry's audio under a variant.
func MediaDir(entryID int, variantID string) string {
	return path.Join(AudioDir, strconv.Itoa(entryID), variantID)
}

// TrackDir holds single verses downloaded on their own, apart from the
// files a whole-entry download writes into MediaDir.
func TrackDir(entryID int, variantID string) string {
	return path.Join(MediaDir(entryID, variantID), "tracks")
}

// mediaKey splits a track path into the record directory and the key the
// track is recorded under. Tracks below the variant's MediaDir are keyed by
// their path relative to it.
func mediaKey(entryID int, variantID, filePath string) (dir, key string) {
	filePath = path.Clean(filePath)
	base := MediaDir(entryID, variantID)
	if rel, ok := strings.CutPrefix(filePath, base+"/"); ok {
		return base, rel
	}
	dir, key = path.Split(filePath)
	return path.Clean(dir), key
}

func (s *Store) ensureLayout() error {
	for _, dir := range []string{TextDir, AudioDir} {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// load reads the manifest. Absent, undecodable or wrong-version blobs read
// as empty; other storage errors are returned.
func (s *Store) load(ctx context.Context) (*Manifest, error) {
	raw, err := s.kv.Get(ctx, ManifestKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return emptyManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		utils.Debug("offline: manifest unreadable, starting empty: %v", err)
		return emptyManifest(), nil
	}
	if m.SchemaVersion != SchemaVersion {
		utils.Debug("offline: manifest schema %d != %d, starting empty", m.SchemaVersion, SchemaVersion)
		return emptyManifest(), nil
	}
	m.normalize()
	return &m, nil
}

func (s *Store) save(ctx context.Context, m *Manifest) error {
	m.SchemaVersion = SchemaVersion
	m.LastUpdated = s.now().UTC()
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := s.kv.Set(ctx, ManifestKey, raw); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// mutate runs a read-current, modify, write-whole-object cycle under the
// process mutex and the file lock.
func (s *Store) mutate(ctx context.Context, fn func(*Manifest) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("lock manifest: %w", err)
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				utils.Debug("offline: unlock manifest: %v", err)
			}
		}()
	}

	m, err := s.load(ctx)
	if err != nil {
		return err
	}
	before := m.recordedBytes()
	if err := fn(m); err != nil {
		return err
	}
	// The running total moves by what the records moved; drift from the
	// disk is only corrected by SetTotalBytes.
	m.TotalBytes = max(0, m.TotalBytes+m.recordedBytes()-before)
	return s.save(ctx, m)
}

// Status returns a copy of the current manifest.
func (s *Store) Status(ctx context.Context) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.load(ctx)
	if err != nil {
		return Manifest{}, err
	}
	return m.Clone(), nil
}

// MarkEntryAvailable records an entry's text as available.
func (s *Store) MarkEntryAvailable(ctx context.Context, id int) error {
	return s.mutate(ctx, func(m *Manifest) error {
		m.addEntry(id)
		return nil
	})
}

// MarkMediaAvailable records one downloaded track. Tracks under the same
// directory and variant accumulate; a different variant replaces the record.
func (s *Store) MarkMediaAvailable(ctx context.Context, entryID int, variantID, filePath string, sizeBytes int64) error {
	dir, name := mediaKey(entryID, variantID, filePath)
	return s.mutate(ctx, func(m *Manifest) error {
		rec, ok := m.Media[entryID]
		if !ok || rec.VariantID != variantID || rec.FilePath != dir {
			rec = MediaRecord{VariantID: variantID, FilePath: dir}
		}
		if rec.Files == nil {
			rec.Files = map[string]int64{}
		}
		rec.Files[name] = sizeBytes
		rec.Downloaded = true
		rec.SizeBytes = 0
		for _, n := range rec.Files {
			rec.SizeBytes += n
		}
		m.Media[entryID] = rec
		return nil
	})
}

// RemoveMedia drops the manifest record of one track. When filePath is the
// record's directory, every track recorded directly inside it is dropped;
// tracks in subdirectories belong to other downloads and stay. Files on disk
// are left alone.
func (s *Store) RemoveMedia(ctx context.Context, entryID int, variantID, filePath string) error {
	filePath = path.Clean(filePath)
	return s.mutate(ctx, func(m *Manifest) error {
		rec, ok := m.Media[entryID]
		if !ok || rec.VariantID != variantID {
			return nil
		}
		if filePath == rec.FilePath {
			for name := range rec.Files {
				if !strings.Contains(name, "/") {
					delete(rec.Files, name)
				}
			}
		} else {
			dir, name := mediaKey(entryID, variantID, filePath)
			if dir != rec.FilePath {
				return nil
			}
			delete(rec.Files, name)
		}
		if len(rec.Files) == 0 {
			delete(m.Media, entryID)
			return nil
		}
		rec.SizeBytes = 0
		for _, n := range rec.Files {
			rec.SizeBytes += n
		}
		m.Media[entryID] = rec
		return nil
	})
}

// MarkTranslationAvailable records that a translation edition is stored offline.
func (s *Store) MarkTranslationAvailable(ctx context.Context, lang string) error {
	return s.mutate(ctx, func(m *Manifest) error {
		m.TranslationsAvailable[lang] = true
		return nil
	})
}

// SaveEntryText writes an entry's text to local storage and marks it available.
func (s *Store) SaveEntryText(ctx context.Context, id int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", id, err)
	}
	raw, err := json.Marshal(textFile{SchemaVersion: SchemaVersion, EntryID: id, SavedAt: s.now().UTC(), Payload: body})
	if err != nil {
		return fmt.Errorf("encode entry %d: %w", id, err)
	}

	dest := TextPath(id)
	tmp := dest + ".tmp"
	if err := s.fs.MkdirAll(TextDir, 0755); err != nil {
		return fmt.Errorf("create text dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, tmp, raw, 0644); err != nil {
		return fmt.Errorf("write entry %d: %w", id, err)
	}
	if err := s.fs.Rename(tmp, dest); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit entry %d: %w", id, err)
	}

	return s.mutate(ctx, func(m *Manifest) error {
		m.addEntry(id)
		m.TextBytes[id] = int64(len(raw))
		return nil
	})
}

// IsEntryAvailable reports whether an entry is recorded and its text file is
// present. A recorded entry whose file is gone reads as unavailable; the
// record is left for RemoveEntry or a re-download to settle.
func (s *Store) IsEntryAvailable(ctx context.Context, id int) bool {
	m, err := s.Status(ctx)
	if err != nil || !m.HasEntry(id) {
		return false
	}
	ok, err := afero.Exists(s.fs, TextPath(id))
	if err != nil {
		utils.Debug("offline: stat %s: %v", TextPath(id), err)
		return false
	}
	return ok
}

// LoadEntryText decodes a saved entry into dest.
func (s *Store) LoadEntryText(ctx context.Context, id int, dest any) error {
	if !s.IsEntryAvailable(ctx, id) {
		return ErrNotAvailable
	}
	raw, err := afero.ReadFile(s.fs, TextPath(id))
	if err != nil {
		return fmt.Errorf("read entry %d: %w", id, err)
	}
	var tf textFile
	if err := json.Unmarshal(raw, &tf); err != nil || tf.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: entry %d has unreadable text", ErrNotAvailable, id)
	}
	if err := json.Unmarshal(tf.Payload, dest); err != nil {
		return fmt.Errorf("decode entry %d: %w", id, err)
	}
	return nil
}

// RemoveEntry deletes an entry's text and media from disk, best effort, then
// drops its records.
func (s *Store) RemoveEntry(ctx context.Context, id int) error {
	return s.mutate(ctx, func(m *Manifest) error {
		if err := s.fs.Remove(TextPath(id)); err != nil && !os.IsNotExist(err) {
			utils.Debug("offline: remove %s: %v", TextPath(id), err)
		}
		if rec, ok := m.Media[id]; ok {
			if err := s.fs.RemoveAll(rec.FilePath); err != nil {
				utils.Debug("offline: remove %s: %v", rec.FilePath, err)
			}
		}
		if err := s.fs.RemoveAll(path.Join(AudioDir, strconv.Itoa(id))); err != nil {
			utils.Debug("offline: remove audio for %d: %v", id, err)
		}

		m.removeEntry(id)
		delete(m.Media, id)
		delete(m.TextBytes, id)
		return nil
	})
}

// ClearAll deletes everything under the offline root, recreates the layout and
// resets the manifest.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.mutate(ctx, func(m *Manifest) error {
		entries, err := afero.ReadDir(s.fs, "/")
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("list offline root: %w", err)
		}
		for _, e := range entries {
			if e.Name() == LockFileName {
				continue
			}
			if err := s.fs.RemoveAll(path.Join("/", e.Name())); err != nil {
				return fmt.Errorf("remove %s: %w", e.Name(), err)
			}
		}
		if err := s.ensureLayout(); err != nil {
			return err
		}
		*m = *emptyManifest()
		return nil
	})
}

// SetTotalBytes overwrites the running total, used when reconciling against
// bytes on disk.
func (s *Store) SetTotalBytes(ctx context.Context, total int64) error {
	return s.mutate(ctx, func(m *Manifest) error {
		m.TotalBytes = total
		return nil
	})
}
