package content

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// SurahCount is the number of chapters in the catalog.
const SurahCount = 114

// Catalog is the bundled surah index plus the always-available default verse.
type Catalog struct {
	Version      int     `yaml:"version"`
	DefaultVerse Verse   `yaml:"default_verse"`
	Surahs       []Surah `yaml:"surahs"`

	byNumber map[int]Surah
}

var loadCatalog = sync.OnceValues(func() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
})

// BundledCatalog returns the embedded catalog, parsed once.
func BundledCatalog() (*Catalog, error) {
	return loadCatalog()
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c.byNumber = make(map[int]Surah, len(c.Surahs))
	for _, s := range c.Surahs {
		c.byNumber[s.Number] = s
	}
	return &c, nil
}

// Surah looks up a chapter by number.
func (c *Catalog) Surah(id int) (Surah, bool) {
	s, ok := c.byNumber[id]
	return s, ok
}

// AyahCount returns the verse count of a chapter, or 0 if unknown.
func (c *Catalog) AyahCount(id int) int {
	return c.byNumber[id].NumberOfAyahs
}
