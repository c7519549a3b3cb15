package config

import (
	"os"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BUCKET_NAME", "recordings")
	t.Setenv("ROOM", "42")
	t.Setenv("USER_IDS", "1000005685,1000005686")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("DeepgramModel = %q, want nova-2", cfg.DeepgramModel)
	}
	if cfg.Language != "en-US" {
		t.Errorf("Language = %q, want en-US", cfg.Language)
	}
	if cfg.AudioDir != "./audio" {
		t.Errorf("AudioDir = %q, want ./audio", cfg.AudioDir)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.PresignTTL != time.Hour {
		t.Errorf("PresignTTL = %v, want 1h", cfg.PresignTTL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if len(cfg.UserIDs) != 2 || cfg.UserIDs[0] != "1000005685" {
		t.Errorf("UserIDs = %v", cfg.UserIDs)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("BUCKET_NAME", "recordings")
	t.Setenv("ROOM", "42")
	t.Setenv("USER_IDS", "1")
	// t.Setenv registers the restore; Unsetenv makes the key truly absent.
	t.Setenv("DEEPGRAM_API_KEY", "")
	os.Unsetenv("DEEPGRAM_API_KEY")

	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
		t.Fatal("Load should fail without DEEPGRAM_API_KEY")
	}
}

func TestLoadCLIOverrides(t *testing.T) {
	setRequired(t)

	cfg, err := Load(Overrides{
		EnvFile:  "nonexistent.env",
		Room:     "99",
		HTTPAddr: ":9090",
		LogLevel: "debug",
		AudioDir: "/tmp/audio",
		Workers:  2,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Room != "99" {
		t.Errorf("Room = %q, want 99", cfg.Room)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.AudioDir != "/tmp/audio" {
		t.Errorf("AudioDir = %q, want /tmp/audio", cfg.AudioDir)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
}

func TestLoadTrimsUserIDs(t *testing.T) {
	setRequired(t)
	t.Setenv("USER_IDS", " 1 , 2 ")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UserIDs[0] != "1" || cfg.UserIDs[1] != "2" {
		t.Errorf("UserIDs = %v, want [1 2]", cfg.UserIDs)
	}
}
