package core

import (
	"context"

	"github.com/tilawa-app/tilawa/internal/cache"
	"github.com/tilawa-app/tilawa/internal/content"
	"github.com/tilawa-app/tilawa/internal/offline"
	"github.com/tilawa-app/tilawa/internal/storage"
)

var _ ContentService = (*Service)(nil)

func (s *Service) SurahList(ctx context.Context) (content.Result[[]content.Surah], error) {
	return s.Content.SurahList(ctx)
}

func (s *Service) Surah(ctx context.Context, id int) (content.Result[content.Surah], error) {
	return s.Content.Surah(ctx, id)
}

// Verses returns saved text when the surah is available offline.
func (s *Service) Verses(ctx context.Context, id int, edition string) (content.Result[content.SurahText], error) {
	return s.Content.OfflineSurah(ctx, id, edition)
}

func (s *Service) Verse(ctx context.Context, key, edition string) (content.Result[content.Verse], error) {
	return s.Content.Verse(ctx, key, edition)
}

func (s *Service) Tafsir(ctx context.Context, key, edition string) (content.Result[content.Tafsir], error) {
	return s.Content.Tafsir(ctx, key, edition)
}

func (s *Service) AudioURL(ctx context.Context, key, reciter string) (content.Result[string], error) {
	return s.Content.AudioURL(ctx, key, reciter)
}

func (s *Service) RandomVerse(ctx context.Context) content.Result[content.Verse] {
	return s.Content.RandomVerse(ctx)
}

func (s *Service) OfflineStatus(ctx context.Context) (offline.Manifest, error) {
	return s.Offline.Status(ctx)
}

func (s *Service) StorageUsage(ctx context.Context) (storage.Usage, error) {
	return s.Storage.Usage(ctx)
}

func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.Cache.Stats(ctx)
}
