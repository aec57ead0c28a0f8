package utils

import (
	"net/url"
	"path"
	"strings"
)

// FileNameFromURL returns the last path segment of rawURL, or fallback when the
// URL has no usable file name.
// Example: https://cdn.example.com/audio/128/ar.alafasy/262.mp3 -> 262.mp3
func FileNameFromURL(rawURL, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return fallback
	}
	// Reject anything that could escape the target directory
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return fallback
	}
	return name
}

// FileExt returns the extension of the file named in rawURL including the dot,
// or def when there is none.
func FileExt(rawURL, def string) string {
	name := FileNameFromURL(rawURL, "")
	if idx := strings.LastIndex(name, "."); idx > 0 && idx < len(name)-1 {
		return name[idx:]
	}
	return def
}
