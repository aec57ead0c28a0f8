package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General   GeneralSettings  `json:"general"`
	Network   NetworkSettings  `json:"network"`
	Cache     CacheSettings    `json:"cache"`
	Retry     RetrySettings    `json:"retry"`
	Downloads DownloadSettings `json:"downloads"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	OfflineDir        string `json:"offline_dir"`
	LogRetentionCount int    `json:"log_retention_count"`
}

// NetworkSettings contains Quran API connection parameters.
type NetworkSettings struct {
	APIBaseURL         string        `json:"api_base_url"`
	UserAgent          string        `json:"user_agent"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	TranslationEdition string        `json:"translation_edition"`
	TafsirEdition      string        `json:"tafsir_edition"`
	DefaultReciter     string        `json:"default_reciter"`
}

// CacheSettings controls the response cache.
type CacheSettings struct {
	TTL        time.Duration `json:"ttl"`
	HotEntries int           `json:"hot_entries"`
}

// RetrySettings controls the retrying request executor.
type RetrySettings struct {
	MaxRetries    int           `json:"max_retries"`
	RetryDelay    time.Duration `json:"retry_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	Exponential   bool          `json:"exponential"`
	TransientOnly bool          `json:"transient_only"`
}

// DownloadSettings controls the offline download engine.
type DownloadSettings struct {
	MaxConcurrentJobs int   `json:"max_concurrent_jobs"`
	QuotaBytes        int64 `json:"quota_bytes"`
}

// SettingMeta provides metadata for a single setting (for CLI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "offline_dir", Label: "Offline Dir", Description: "Directory offline text and audio are stored in.", Type: "string"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
		},
		"Network": {
			{Key: "api_base_url", Label: "API Base URL", Description: "Base URL of the Quran content API.", Type: "string"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "request_timeout", Label: "Request Timeout", Description: "Timeout for a single API request (e.g., 15s).", Type: "duration"},
			{Key: "translation_edition", Label: "Translation", Description: "Edition fetched alongside the original text (e.g., en.asad).", Type: "string"},
			{Key: "tafsir_edition", Label: "Tafsir", Description: "Edition used for commentary lookups.", Type: "string"},
			{Key: "default_reciter", Label: "Default Reciter", Description: "Audio edition used when none is given (e.g., ar.alafasy).", Type: "string"},
		},
		"Cache": {
			{Key: "ttl", Label: "Cache TTL", Description: "How long fetched content stays fresh (e.g., 1h).", Type: "duration"},
			{Key: "hot_entries", Label: "Hot Entries", Description: "Number of decoded entries kept in memory.", Type: "int"},
		},
		"Retry": {
			{Key: "max_retries", Label: "Max Retries", Description: "Retries after the first failed attempt.", Type: "int"},
			{Key: "retry_delay", Label: "Retry Delay", Description: "Delay between attempts (e.g., 1s).", Type: "duration"},
			{Key: "max_delay", Label: "Max Delay", Description: "Upper bound for a single wait (e.g., 10s).", Type: "duration"},
			{Key: "exponential", Label: "Exponential Backoff", Description: "Double the delay after each failed attempt.", Type: "bool"},
			{Key: "transient_only", Label: "Transient Only", Description: "Do not retry client errors (4xx).", Type: "bool"},
		},
		"Downloads": {
			{Key: "max_concurrent_jobs", Label: "Max Concurrent Jobs", Description: "Download jobs running at once (1-10).", Type: "int"},
			{Key: "quota_bytes", Label: "Storage Quota", Description: "Soft ceiling for offline storage in bytes.", Type: "int64"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Network", "Cache", "Retry", "Downloads"}
}

const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			OfflineDir:        GetDefaultOfflineDir(),
			LogRetentionCount: 5,
		},
		Network: NetworkSettings{
			APIBaseURL:         "https://api.alquran.cloud/v1",
			UserAgent:          "", // Empty means use default UA
			RequestTimeout:     15 * time.Second,
			TranslationEdition: "en.asad",
			TafsirEdition:      "ar.muyassar",
			DefaultReciter:     "ar.alafasy",
		},
		Cache: CacheSettings{
			TTL:        time.Hour,
			HotEntries: 256,
		},
		Retry: RetrySettings{
			MaxRetries: 3,
			RetryDelay: time.Second,
			MaxDelay:   10 * time.Second,
		},
		Downloads: DownloadSettings{
			MaxConcurrentJobs: 2,
			QuotaBytes:        2 * GB,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from an explicit path.
func LoadSettingsFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

// SaveSettingsTo saves settings to an explicit path atomically.
func SaveSettingsTo(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Apply parses raw according to the setting's declared type and stores it.
func (s *Settings) Apply(key, raw string) error {
	meta, ok := lookupMeta(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	var value any
	switch meta.Type {
	case "string":
		value = raw
	case "int":
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		value = n
	case "int64":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		value = n
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		value = b
	case "duration":
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		value = d
	}

	switch key {
	case "offline_dir":
		s.General.OfflineDir = value.(string)
	case "log_retention_count":
		s.General.LogRetentionCount = value.(int)
	case "api_base_url":
		s.Network.APIBaseURL = value.(string)
	case "user_agent":
		s.Network.UserAgent = value.(string)
	case "request_timeout":
		s.Network.RequestTimeout = value.(time.Duration)
	case "translation_edition":
		s.Network.TranslationEdition = value.(string)
	case "tafsir_edition":
		s.Network.TafsirEdition = value.(string)
	case "default_reciter":
		s.Network.DefaultReciter = value.(string)
	case "ttl":
		s.Cache.TTL = value.(time.Duration)
	case "hot_entries":
		s.Cache.HotEntries = value.(int)
	case "max_retries":
		s.Retry.MaxRetries = value.(int)
	case "retry_delay":
		s.Retry.RetryDelay = value.(time.Duration)
	case "max_delay":
		s.Retry.MaxDelay = value.(time.Duration)
	case "exponential":
		s.Retry.Exponential = value.(bool)
	case "transient_only":
		s.Retry.TransientOnly = value.(bool)
	case "max_concurrent_jobs":
		n := value.(int)
		if n < 1 || n > 10 {
			return fmt.Errorf("max_concurrent_jobs must be between 1 and 10, got %d", n)
		}
		s.Downloads.MaxConcurrentJobs = n
	case "quota_bytes":
		s.Downloads.QuotaBytes = value.(int64)
	}
	return nil
}

// Values flattens the settings into key/value strings for display.
func (s *Settings) Values() map[string]string {
	return map[string]string{
		"offline_dir":         s.General.OfflineDir,
		"log_retention_count": strconv.Itoa(s.General.LogRetentionCount),
		"api_base_url":        s.Network.APIBaseURL,
		"user_agent":          s.Network.UserAgent,
		"request_timeout":     s.Network.RequestTimeout.String(),
		"translation_edition": s.Network.TranslationEdition,
		"tafsir_edition":      s.Network.TafsirEdition,
		"default_reciter":     s.Network.DefaultReciter,
		"ttl":                 s.Cache.TTL.String(),
		"hot_entries":         strconv.Itoa(s.Cache.HotEntries),
		"max_retries":         strconv.Itoa(s.Retry.MaxRetries),
		"retry_delay":         s.Retry.RetryDelay.String(),
		"max_delay":           s.Retry.MaxDelay.String(),
		"exponential":         strconv.FormatBool(s.Retry.Exponential),
		"transient_only":      strconv.FormatBool(s.Retry.TransientOnly),
		"max_concurrent_jobs": strconv.Itoa(s.Downloads.MaxConcurrentJobs),
		"quota_bytes":         strconv.FormatInt(s.Downloads.QuotaBytes, 10),
	}
}

func lookupMeta(key string) (SettingMeta, bool) {
	meta := GetSettingsMetadata()
	categories := make([]string, 0, len(meta))
	for c := range meta {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		for _, m := range meta[c] {
			if m.Key == key {
				return m, true
			}
		}
	}
	return SettingMeta{}, false
}

// RuntimeConfig is the flattened view of Settings handed to the engine packages.
type RuntimeConfig struct {
	OfflineDir         string
	APIBaseURL         string
	UserAgent          string
	RequestTimeout     time.Duration
	TranslationEdition string
	TafsirEdition      string
	DefaultReciter     string
	CacheTTL           time.Duration
	CacheHotEntries    int
	MaxRetries         int
	RetryDelay         time.Duration
	MaxDelay           time.Duration
	Exponential        bool
	TransientOnly      bool
	MaxConcurrentJobs  int
	QuotaBytes         int64
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		OfflineDir:         s.General.OfflineDir,
		APIBaseURL:         s.Network.APIBaseURL,
		UserAgent:          s.Network.UserAgent,
		RequestTimeout:     s.Network.RequestTimeout,
		TranslationEdition: s.Network.TranslationEdition,
		TafsirEdition:      s.Network.TafsirEdition,
		DefaultReciter:     s.Network.DefaultReciter,
		CacheTTL:           s.Cache.TTL,
		CacheHotEntries:    s.Cache.HotEntries,
		MaxRetries:         s.Retry.MaxRetries,
		RetryDelay:         s.Retry.RetryDelay,
		MaxDelay:           s.Retry.MaxDelay,
		Exponential:        s.Retry.Exponential,
		TransientOnly:      s.Retry.TransientOnly,
		MaxConcurrentJobs:  s.Downloads.MaxConcurrentJobs,
		QuotaBytes:         s.Downloads.QuotaBytes,
	}
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return "tilawa/1.0 (+https://github.com/tilawa-app/tilawa)"
	}
	return r.UserAgent
}

// GetMaxConcurrentJobs returns configured value or default
func (r *RuntimeConfig) GetMaxConcurrentJobs() int {
	if r == nil || r.MaxConcurrentJobs <= 0 {
		return 2
	}
	return r.MaxConcurrentJobs
}
