package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("HISTORY_LIMIT", "")
	t.Setenv("MAX_MESSAGE_LENGTH", "")

	cfg := Load()

	if cfg.Port != "4000" {
		t.Errorf("Port = %q, want 4000", cfg.Port)
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.HistoryLimit)
	}
	if cfg.MaxMessageLength != 1000 {
		t.Errorf("MaxMessageLength = %d, want 1000", cfg.MaxMessageLength)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two defaults", cfg.AllowedOrigins)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com , http://localhost:5173")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("MAX_MESSAGE_LENGTH", "not-a-number")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d, want 10", cfg.HistoryLimit)
	}
	// Unparseable integers fall back to the default.
	if cfg.MaxMessageLength != 1000 {
		t.Errorf("MaxMessageLength = %d, want default 1000", cfg.MaxMessageLength)
	}
	want := []string{"https://chat.example.com", "http://localhost:5173"}
	for i, origin := range cfg.AllowedOrigins {
		if origin != want[i] {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, origin, want[i])
		}
	}
}
