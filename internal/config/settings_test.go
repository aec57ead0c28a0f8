package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	t.Run("GeneralSettings", func(t *testing.T) {
		if settings.General.OfflineDir == "" {
			t.Error("Offline directory should not be empty")
		}
		if settings.General.LogRetentionCount <= 0 {
			t.Errorf("LogRetentionCount should be positive, got: %d", settings.General.LogRetentionCount)
		}
	})

	t.Run("CacheSettings", func(t *testing.T) {
		if settings.Cache.TTL != time.Hour {
			t.Errorf("Cache TTL should default to one hour, got: %v", settings.Cache.TTL)
		}
	})

	t.Run("RetrySettings", func(t *testing.T) {
		if settings.Retry.MaxRetries < 0 {
			t.Errorf("MaxRetries should be non-negative, got: %d", settings.Retry.MaxRetries)
		}
		if settings.Retry.Exponential {
			t.Error("Exponential backoff should be off by default (fixed delay)")
		}
		if settings.Retry.TransientOnly {
			t.Error("TransientOnly should be off by default (retry everything)")
		}
	})

	t.Run("DownloadSettings", func(t *testing.T) {
		if settings.Downloads.MaxConcurrentJobs <= 0 {
			t.Errorf("MaxConcurrentJobs should be positive, got: %d", settings.Downloads.MaxConcurrentJobs)
		}
		if settings.Downloads.QuotaBytes <= 0 {
			t.Errorf("QuotaBytes should be positive, got: %d", settings.Downloads.QuotaBytes)
		}
	})
}

func TestGetAppDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	if got := GetAppDir(); got != dir {
		t.Errorf("GetAppDir() = %s, want %s", got, dir)
	}
	if !strings.HasPrefix(GetSettingsPath(), dir) {
		t.Errorf("Settings path should be under app dir, got: %s", GetSettingsPath())
	}
	if !strings.HasPrefix(GetDatabasePath(), GetStateDir()) {
		t.Errorf("Database path should be under state dir, got: %s", GetDatabasePath())
	}

	if err := EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}
	for _, d := range []string{GetStateDir(), GetLogsDir(), GetDefaultOfflineDir()} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", d)
		}
	}
}

func TestSaveAndLoadSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	original := DefaultSettings()
	original.Network.TranslationEdition = "en.sahih"
	original.Retry.MaxRetries = 7
	original.Cache.TTL = 30 * time.Minute

	if err := SaveSettingsTo(path, original); err != nil {
		t.Fatalf("SaveSettingsTo failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away after save")
	}

	loaded, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("LoadSettingsFrom failed: %v", err)
	}
	if loaded.Network.TranslationEdition != "en.sahih" {
		t.Errorf("TranslationEdition = %s, want en.sahih", loaded.Network.TranslationEdition)
	}
	if loaded.Retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", loaded.Retry.MaxRetries)
	}
	if loaded.Cache.TTL != 30*time.Minute {
		t.Errorf("TTL = %v, want 30m", loaded.Cache.TTL)
	}
}

func TestLoadSettings_MissingFile(t *testing.T) {
	settings, err := LoadSettingsFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file should return defaults, got error: %v", err)
	}
	if settings.Cache.TTL != time.Hour {
		t.Errorf("expected default TTL, got %v", settings.Cache.TTL)
	}
}

func TestLoadSettings_PartialJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"retry":{"max_retries":9}}`), 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("LoadSettingsFrom failed: %v", err)
	}
	if settings.Retry.MaxRetries != 9 {
		t.Errorf("MaxRetries = %d, want 9", settings.Retry.MaxRetries)
	}
	// Missing fields keep defaults
	if settings.Network.DefaultReciter != "ar.alafasy" {
		t.Errorf("DefaultReciter = %s, want default", settings.Network.DefaultReciter)
	}
}

func TestLoadSettings_CorruptedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettingsFrom(path); err == nil {
		t.Error("expected error for corrupted settings")
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		raw     string
		wantErr bool
		check   func(*Settings) bool
	}{
		{"string", "default_reciter", "ar.husary", false, func(s *Settings) bool { return s.Network.DefaultReciter == "ar.husary" }},
		{"int", "max_retries", "5", false, func(s *Settings) bool { return s.Retry.MaxRetries == 5 }},
		{"int64", "quota_bytes", "1024", false, func(s *Settings) bool { return s.Downloads.QuotaBytes == 1024 }},
		{"bool", "exponential", "true", false, func(s *Settings) bool { return s.Retry.Exponential }},
		{"duration", "ttl", "90m", false, func(s *Settings) bool { return s.Cache.TTL == 90*time.Minute }},
		{"bad int", "max_retries", "many", true, nil},
		{"bad duration", "retry_delay", "soon", true, nil},
		{"unknown key", "color", "blue", true, nil},
		{"jobs out of range", "max_concurrent_jobs", "50", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			err := s.Apply(tt.key, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply(%s, %s) error = %v, wantErr %v", tt.key, tt.raw, err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(s) {
				t.Errorf("Apply(%s, %s) did not update settings", tt.key, tt.raw)
			}
		})
	}
}

func TestValuesCoverMetadata(t *testing.T) {
	values := DefaultSettings().Values()
	for _, category := range CategoryOrder() {
		for _, meta := range GetSettingsMetadata()[category] {
			if _, ok := values[meta.Key]; !ok {
				t.Errorf("Values() missing key %s", meta.Key)
			}
		}
	}
}

func TestToRuntimeConfig(t *testing.T) {
	s := DefaultSettings()
	s.Retry.MaxRetries = 4
	s.Downloads.MaxConcurrentJobs = 3

	rc := s.ToRuntimeConfig()
	if rc.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", rc.MaxRetries)
	}
	if rc.GetMaxConcurrentJobs() != 3 {
		t.Errorf("GetMaxConcurrentJobs() = %d, want 3", rc.GetMaxConcurrentJobs())
	}

	var nilCfg *RuntimeConfig
	if nilCfg.GetUserAgent() == "" {
		t.Error("nil RuntimeConfig should fall back to default user agent")
	}
	if nilCfg.GetMaxConcurrentJobs() != 2 {
		t.Errorf("nil RuntimeConfig jobs = %d, want 2", nilCfg.GetMaxConcurrentJobs())
	}
}
