package core

import (
	"context"
	"fmt"

	"github.com/tilawa-app/tilawa/internal/content"
)

// audioResolver resolves download sources through the content service.
type audioResolver struct {
	content *content.Service
}

func (r audioResolver) VerseAudio(ctx context.Context, entryID, verse int, variant string) (string, error) {
	res, err := r.content.AudioURL(ctx, fmt.Sprintf("%d:%d", entryID, verse), variant)
	if err != nil {
		return "", err
	}
	return res.Data, nil
}

func (r audioResolver) EntryAudio(ctx context.Context, entryID int, variant string) ([]string, error) {
	return r.content.SurahAudio(ctx, entryID, variant)
}
