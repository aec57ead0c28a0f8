package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tilawa-app/tilawa/internal/cache"
	"github.com/tilawa-app/tilawa/internal/quran"
	"github.com/tilawa-app/tilawa/internal/utils"
)

// Default editions used when callers pass an empty edition.
const (
	DefaultTranslation = "en.asad"
	DefaultTafsir      = "ar.muyassar"
	DefaultReciter     = "ar.alafasy"
)

// OfflineReader is the read side of the offline manifest store.
type OfflineReader interface {
	IsEntryAvailable(ctx context.Context, id int) bool
	LoadEntryText(ctx context.Context, id int, dest any) error
}

// Options configures a Service.
type Options struct {
	TranslationEdition string
	TafsirEdition      string
	Reciter            string
	Offline            OfflineReader
	Catalog            *Catalog
	// Intn picks a random index in [0,n); defaults to math/rand/v2.
	Intn func(n int) int
}

// Service fetches Quran content through the cache and retrying API client.
type Service struct {
	api     quran.API
	cache   *cache.Cache
	offline OfflineReader
	catalog *Catalog

	translation string
	tafsir      string
	reciter     string
	intn        func(n int) int

	group singleflight.Group
}

// NewService builds a Service. A nil Catalog loads the bundled one.
func NewService(api quran.API, c *cache.Cache, opts Options) (*Service, error) {
	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = BundledCatalog(); err != nil {
			return nil, err
		}
	}

	s := &Service{
		api:         api,
		cache:       c,
		offline:     opts.Offline,
		catalog:     catalog,
		translation: opts.TranslationEdition,
		tafsir:      opts.TafsirEdition,
		reciter:     opts.Reciter,
		intn:        opts.Intn,
	}
	if s.translation == "" {
		s.translation = DefaultTranslation
	}
	if s.tafsir == "" {
		s.tafsir = DefaultTafsir
	}
	if s.reciter == "" {
		s.reciter = DefaultReciter
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	return s, nil
}

// Catalog returns the bundled catalog the service falls back to.
func (s *Service) Catalog() *Catalog { return s.catalog }

// DefaultReciter returns the configured audio edition.
func (s *Service) DefaultReciter() string { return s.reciter }

// fetch runs the cache -> network -> cache set -> fallback template.
// Concurrent callers for the same key share one network load. The shared load
// is detached from the caller that started it; each caller stops waiting on
// its own context.
func fetch[T any](ctx context.Context, s *Service, op, key string, load func(context.Context) (T, error), fallback func() (T, bool)) (Result[T], error) {
	var cached T
	if s.cache.Get(ctx, key, &cached) {
		return Result[T]{Data: cached, Source: SourceCache}, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.cache.Set(loadCtx, key, v)
		return v, nil
	})
	var (
		v   any
		err error
	)
	select {
	case r := <-ch:
		v, err = r.Val, r.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err == nil {
		return Result[T]{Data: v.(T), Source: SourceNetwork}, nil
	}

	if fallback != nil {
		if fb, ok := fallback(); ok {
			utils.Debug("content: %s failed (%v), serving bundled fallback", op, err)
			return Result[T]{Data: fb, Source: SourceFallback}, nil
		}
	}
	utils.Debug("content: %s failed: %v", op, err)
	return Result[T]{}, newError(op, err)
}

func newError(op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Op: op, Message: userMessage(op), Err: err}
}

func userMessage(op string) string {
	switch op {
	case "surah", "surahs":
		return "Could not load surah information. Please check your connection."
	case "verses", "verse", "random":
		return "Could not load verses. Please check your connection and try again."
	case "audio":
		return "Could not load recitation audio. Please try again."
	case "tafsir":
		return "Could not load tafsir. Please try again."
	}
	return "Something went wrong while loading content."
}

// Surah returns chapter metadata, falling back to the bundled catalog.
func (s *Service) Surah(ctx context.Context, id int) (Result[Surah], error) {
	if id < 1 || id > SurahCount {
		return Result[Surah]{}, &Error{Op: "surah", Message: fmt.Sprintf("Surah %d does not exist.", id), Err: ErrInvalidKey}
	}
	return fetch(ctx, s, "surah", fmt.Sprintf("surah_%d", id),
		func(ctx context.Context) (Surah, error) {
			raw, err := s.api.Surah(ctx, id)
			if err != nil {
				return Surah{}, err
			}
			return toSurah(*raw), nil
		},
		func() (Surah, bool) { return s.catalog.Surah(id) },
	)
}

// SurahList returns every chapter, falling back to the bundled catalog.
func (s *Service) SurahList(ctx context.Context) (Result[[]Surah], error) {
	return fetch(ctx, s, "surahs", "surahs",
		func(ctx context.Context) ([]Surah, error) {
			raw, err := s.api.Surahs(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]Surah, len(raw))
			for i, r := range raw {
				out[i] = toSurah(r)
			}
			return out, nil
		},
		func() ([]Surah, bool) {
			return append([]Surah(nil), s.catalog.Surahs...), len(s.catalog.Surahs) > 0
		},
	)
}

// Verses returns a chapter's text zipped with a translation edition. Both
// editions must load; nothing is cached otherwise.
func (s *Service) Verses(ctx context.Context, id int, edition string) (Result[SurahText], error) {
	if id < 1 || id > SurahCount {
		return Result[SurahText]{}, &Error{Op: "verses", Message: fmt.Sprintf("Surah %d does not exist.", id), Err: ErrInvalidKey}
	}
	if edition == "" {
		edition = s.translation
	}

	return fetch(ctx, s, "verses", fmt.Sprintf("verses_%d_%s", id, edition),
		func(ctx context.Context) (SurahText, error) {
			var text, trans *quran.SurahEdition
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				text, err = s.api.SurahEdition(gctx, id, quran.TextEdition)
				return err
			})
			g.Go(func() error {
				var err error
				trans, err = s.api.SurahEdition(gctx, id, edition)
				return err
			})
			if err := g.Wait(); err != nil {
				return SurahText{}, err
			}
			return zipSurah(text, trans, edition)
		},
		nil,
	)
}

// OfflineSurah reads a downloaded chapter from local storage, falling back to
// Verses when it is not available offline.
func (s *Service) OfflineSurah(ctx context.Context, id int, edition string) (Result[SurahText], error) {
	if s.offline != nil && s.offline.IsEntryAvailable(ctx, id) {
		var st SurahText
		err := s.offline.LoadEntryText(ctx, id, &st)
		if err == nil {
			return Result[SurahText]{Data: st, Source: SourceOffline}, nil
		}
		utils.Debug("content: offline text for surah %d unreadable: %v", id, err)
	}
	return s.Verses(ctx, id, edition)
}

// Verse returns one verse with its translation.
func (s *Service) Verse(ctx context.Context, key, edition string) (Result[Verse], error) {
	surah, ayah, err := s.ParseVerseKey(key)
	if err != nil {
		return Result[Verse]{}, &Error{Op: "verse", Message: fmt.Sprintf("%q is not a valid verse reference.", key), Err: err}
	}
	key = fmt.Sprintf("%d:%d", surah, ayah)
	if edition == "" {
		edition = s.translation
	}

	return fetch(ctx, s, "verse", fmt.Sprintf("verse_%s_%s", key, edition),
		func(ctx context.Context) (Verse, error) {
			var text, trans *quran.Ayah
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				text, err = s.api.Ayah(gctx, key, quran.TextEdition)
				return err
			})
			g.Go(func() error {
				var err error
				trans, err = s.api.Ayah(gctx, key, edition)
				return err
			})
			if err := g.Wait(); err != nil {
				return Verse{}, err
			}
			return Verse{
				Key:         key,
				Surah:       surah,
				Number:      ayah,
				Text:        text.Text,
				Translation: trans.Text,
				Edition:     edition,
				Juz:         text.Juz,
				Page:        text.Page,
			}, nil
		},
		nil,
	)
}

// AudioURL resolves the recitation URL for a verse. It is never cached.
func (s *Service) AudioURL(ctx context.Context, key, reciter string) (Result[string], error) {
	surah, ayah, err := s.ParseVerseKey(key)
	if err != nil {
		return Result[string]{}, &Error{Op: "audio", Message: fmt.Sprintf("%q is not a valid verse reference.", key), Err: err}
	}
	if reciter == "" {
		reciter = s.reciter
	}

	a, err := s.api.Ayah(ctx, fmt.Sprintf("%d:%d", surah, ayah), reciter)
	if err != nil {
		return Result[string]{}, newError("audio", err)
	}
	if a.Audio == "" {
		return Result[string]{}, &Error{Op: "audio", Message: fmt.Sprintf("No recitation audio for %s in %s.", key, reciter)}
	}
	return Result[string]{Data: a.Audio, Source: SourceNetwork}, nil
}

// SurahAudio lists recitation URLs for every verse of a chapter in verse
// order. A verse without audio yields an empty string in its slot. It is never
// cached.
func (s *Service) SurahAudio(ctx context.Context, id int, reciter string) ([]string, error) {
	if id < 1 || id > SurahCount {
		return nil, &Error{Op: "audio", Message: fmt.Sprintf("Surah %d does not exist.", id), Err: ErrInvalidKey}
	}
	if reciter == "" {
		reciter = s.reciter
	}

	se, err := s.api.SurahEdition(ctx, id, reciter)
	if err != nil {
		return nil, newError("audio", err)
	}
	n := len(se.Ayahs)
	if c := s.catalog.AyahCount(id); c > n {
		n = c
	}
	urls := make([]string, n)
	found := 0
	for _, a := range se.Ayahs {
		if a.NumberInSurah < 1 || a.NumberInSurah > n {
			continue
		}
		urls[a.NumberInSurah-1] = a.Audio
		if a.Audio != "" {
			found++
		}
	}
	if found == 0 {
		return nil, &Error{Op: "audio", Message: fmt.Sprintf("No recitation audio for surah %d in %s.", id, reciter)}
	}
	return urls, nil
}

// Tafsir returns commentary for a verse with markup stripped before caching.
func (s *Service) Tafsir(ctx context.Context, key, edition string) (Result[Tafsir], error) {
	surah, ayah, err := s.ParseVerseKey(key)
	if err != nil {
		return Result[Tafsir]{}, &Error{Op: "tafsir", Message: fmt.Sprintf("%q is not a valid verse reference.", key), Err: err}
	}
	key = fmt.Sprintf("%d:%d", surah, ayah)
	if edition == "" {
		edition = s.tafsir
	}

	return fetch(ctx, s, "tafsir", fmt.Sprintf("tafsir_%s_%s", key, edition),
		func(ctx context.Context) (Tafsir, error) {
			a, err := s.api.Ayah(ctx, key, edition)
			if err != nil {
				return Tafsir{}, err
			}
			return Tafsir{Key: key, Edition: edition, Text: StripMarkup(a.Text)}, nil
		},
		nil,
	)
}

// RandomVerse picks a uniformly random surah, then a uniformly random verse in
// it. Any failure yields the bundled default verse.
func (s *Service) RandomVerse(ctx context.Context) Result[Verse] {
	id := s.intn(SurahCount) + 1
	count := s.catalog.AyahCount(id)
	if count > 0 {
		key := fmt.Sprintf("%d:%d", id, s.intn(count)+1)
		res, err := s.Verse(ctx, key, "")
		if err == nil {
			return res
		}
		utils.Debug("content: random verse %s failed, using default: %v", key, err)
	}
	return Result[Verse]{Data: s.catalog.DefaultVerse, Source: SourceFallback}
}

// ParseVerseKey validates a "surah:verse" key against the catalog.
func (s *Service) ParseVerseKey(key string) (int, int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(key), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	surah, err := strconv.Atoi(left)
	if err != nil || surah < 1 || surah > SurahCount {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	ayah, err := strconv.Atoi(right)
	if err != nil || ayah < 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if n := s.catalog.AyahCount(surah); n > 0 && ayah > n {
		return 0, 0, fmt.Errorf("%w: surah %d has %d verses", ErrInvalidKey, surah, n)
	}
	return surah, ayah, nil
}

func toSurah(r quran.Surah) Surah {
	return Surah{
		Number:                 r.Number,
		Name:                   r.Name,
		EnglishName:            r.EnglishName,
		EnglishNameTranslation: r.EnglishNameTranslation,
		NumberOfAyahs:          r.NumberOfAyahs,
		RevelationType:         r.RevelationType,
	}
}

func zipSurah(text, trans *quran.SurahEdition, edition string) (SurahText, error) {
	byNumber := make(map[int]string, len(trans.Ayahs))
	for _, a := range trans.Ayahs {
		byNumber[a.NumberInSurah] = a.Text
	}

	out := SurahText{Surah: toSurah(text.Surah), Edition: edition, Verses: make([]Verse, 0, len(text.Ayahs))}
	for _, a := range text.Ayahs {
		tr, ok := byNumber[a.NumberInSurah]
		if !ok {
			return SurahText{}, fmt.Errorf("translation %s missing verse %d:%d", edition, text.Number, a.NumberInSurah)
		}
		out.Verses = append(out.Verses, Verse{
			Key:         fmt.Sprintf("%d:%d", text.Number, a.NumberInSurah),
			Surah:       text.Number,
			Number:      a.NumberInSurah,
			Text:        a.Text,
			Translation: tr,
			Edition:     edition,
			Juz:         a.Juz,
			Page:        a.Page,
		})
	}
	return out, nil
}
