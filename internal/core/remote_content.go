package core

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tilawa-app/tilawa/internal/cache"
	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/storage"
	"github.com/tilawa-app/tilawa/internal/utils"
)

var _ ContentService = (*RemoteService)(nil)

// withQuery appends the non-empty pairs of kv to p.
func withQuery(p string, kv ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}

func surahPath(id int, suffix string) string {
	return "/surahs/" + strconv.Itoa(id) + suffix
}

func versePath(key, suffix string) string {
	return "/verses/" + url.PathEscape(key) + suffix
}

func getResult[T any](ctx context.Context, s *RemoteService, path string) (content.Result[T], error) {
	var res content.Result[T]
	err := s.doRequest(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

func (s *RemoteService) SurahList(ctx context.Context) (content.Result[[]content.Surah], error) {
	return getResult[[]content.Surah](ctx, s, "/surahs")
}

func (s *RemoteService) Surah(ctx context.Context, id int) (content.Result[content.Surah], error) {
	return getResult[content.Surah](ctx, s, surahPath(id, ""))
}

func (s *RemoteService) Verses(ctx context.Context, id int, edition string) (content.Result[content.SurahText], error) {
	return getResult[content.SurahText](ctx, s, withQuery(surahPath(id, "/verses"), "edition", edition))
}

func (s *RemoteService) Verse(ctx context.Context, key, edition string) (content.Result[content.Verse], error) {
	return getResult[content.Verse](ctx, s, withQuery(versePath(key, ""), "edition", edition))
}

func (s *RemoteService) Tafsir(ctx context.Context, key, edition string) (content.Result[content.Tafsir], error) {
	return getResult[content.Tafsir](ctx, s, withQuery(versePath(key, "/tafsir"), "edition", edition))
}

func (s *RemoteService) AudioURL(ctx context.Context, key, reciter string) (content.Result[string], error) {
	return getResult[string](ctx, s, withQuery(versePath(key, "/audio"), "reciter", reciter))
}

// RandomVerse asks the server for a verse and falls back to the bundled one
// when the server cannot be reached.
func (s *RemoteService) RandomVerse(ctx context.Context) content.Result[content.Verse] {
	res, err := getResult[content.Verse](ctx, s, "/verses/random")
	if err == nil {
		return res
	}
	utils.Debug("remote: random verse: %v", err)
	var fallback content.Verse
	if cat, cerr := content.BundledCatalog(); cerr == nil {
		fallback = cat.DefaultVerse
	}
	return content.Result[content.Verse]{Data: fallback, Source: content.SourceFallback}
}

func (s *RemoteService) SaveSurahOffline(ctx context.Context, id int, edition string) (content.SurahText, error) {
	var text content.SurahText
	err := s.doRequest(ctx, http.MethodPost, withQuery("/offline"+surahPath(id, ""), "edition", edition), nil, &text)
	return text, err
}

func (s *RemoteService) RemoveOffline(ctx context.Context, id int) error {
	return s.doRequest(ctx, http.MethodDelete, "/offline"+surahPath(id, ""), nil, nil)
}

func (s *RemoteService) OfflineStatus(ctx context.Context) (offline.Manifest, error) {
	var m offline.Manifest
	err := s.doRequest(ctx, http.MethodGet, "/offline", nil, &m)
	return m, err
}

func (s *RemoteService) StorageUsage(ctx context.Context) (storage.Usage, error) {
	var u storage.Usage
	err := s.doRequest(ctx, http.MethodGet, "/storage", nil, &u)
	return u, err
}

func (s *RemoteService) CacheStats(ctx context.Context) (cache.Stats, error) {
	var st cache.Stats
	err := s.doRequest(ctx, http.MethodGet, "/cache", nil, &st)
	return st, err
}
