package quran

// Surah is the metadata block the API returns for a chapter.
type Surah struct {
	Number                 int    `json:"number"`
	Name                   string `json:"name"`
	EnglishName            string `json:"englishName"`
	EnglishNameTranslation string `json:"englishNameTranslation"`
	NumberOfAyahs          int    `json:"numberOfAyahs"`
	RevelationType         string `json:"revelationType"`
}

// Edition describes a text, translation, tafsir or audio edition.
type Edition struct {
	Identifier  string `json:"identifier"`
	Language    string `json:"language"`
	Name        string `json:"name"`
	EnglishName string `json:"englishName"`
	Format      string `json:"format"`
	Type        string `json:"type"`
}

// Ayah is a single verse in one edition. Audio is only set for audio editions.
type Ayah struct {
	Number         int      `json:"number"`
	Text           string   `json:"text"`
	NumberInSurah  int      `json:"numberInSurah"`
	Juz            int      `json:"juz"`
	Page           int      `json:"page"`
	Audio          string   `json:"audio,omitempty"`
	AudioSecondary []string `json:"audioSecondary,omitempty"`
	Edition        *Edition `json:"edition,omitempty"`
	Surah          *Surah   `json:"surah,omitempty"`
}

// SurahEdition is a chapter with every ayah rendered in one edition.
type SurahEdition struct {
	Surah
	Ayahs   []Ayah   `json:"ayahs"`
	Edition *Edition `json:"edition,omitempty"`
}

type envelope[T any] struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   T      `json:"data"`
}
