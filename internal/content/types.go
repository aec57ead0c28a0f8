package content

import (
	"errors"
	"fmt"
)

// Source records where a result came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback" // bundled catalog, network and cache both failed
	SourceOffline  Source = "offline"  // downloaded text on local storage
)

// Result pairs a value with its provenance.
type Result[T any] struct {
	Data   T      `json:"data"`
	Source Source `json:"source"`
}

// Surah is catalog-entry metadata.
type Surah struct {
	Number                 int    `json:"number" yaml:"number"`
	Name                   string `json:"name" yaml:"name"`
	EnglishName            string `json:"english_name" yaml:"english_name"`
	EnglishNameTranslation string `json:"english_name_translation" yaml:"english_name_translation"`
	NumberOfAyahs          int    `json:"number_of_ayahs" yaml:"number_of_ayahs"`
	RevelationType         string `json:"revelation_type" yaml:"revelation_type"`
}

// Verse is one ayah in the original text with its translation.
type Verse struct {
	Key         string `json:"key" yaml:"key"`
	Surah       int    `json:"surah" yaml:"surah"`
	Number      int    `json:"number" yaml:"number"`
	Text        string `json:"text" yaml:"text"`
	Translation string `json:"translation" yaml:"translation"`
	Edition     string `json:"edition,omitempty" yaml:"edition,omitempty"`
	Juz         int    `json:"juz,omitempty" yaml:"juz,omitempty"`
	Page        int    `json:"page,omitempty" yaml:"page,omitempty"`
}

// SurahText is a chapter with every verse and its translation.
type SurahText struct {
	Surah   Surah   `json:"surah"`
	Edition string  `json:"edition"`
	Verses  []Verse `json:"verses"`
}

// Tafsir is commentary for one verse, with markup removed.
type Tafsir struct {
	Key     string `json:"key"`
	Edition string `json:"edition"`
	Text    string `json:"text"`
}

// Error is a fetch failure with a message suitable for display.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrInvalidKey is wrapped by errors for malformed surah ids and verse keys.
var ErrInvalidKey = errors.New("invalid surah or verse reference")
