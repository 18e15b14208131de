package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultProfile: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLoadProfileMissingUsesDefaults(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "profile.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Realtime.Driver != RealtimeLocal || p.Storage.Driver != StorageFS {
		t.Errorf("drivers = %q/%q", p.Realtime.Driver, p.Storage.Driver)
	}
	if p.Notifications.MaxPerUser != 200 || p.Typing.Window.Duration != 3*time.Second {
		t.Errorf("defaults = %+v", p)
	}
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	content := `
[user]
token = "abc"

[realtime]
driver = "redis"
redis_addr = "cache:6379"

[typing]
window = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.User.Token != "abc" || p.Realtime.Driver != RealtimeRedis || p.Realtime.RedisAddr != "cache:6379" {
		t.Errorf("profile = %+v", p)
	}
	if p.Realtime.RedisPrefix != "layover" {
		t.Errorf("redis prefix default lost: %q", p.Realtime.RedisPrefix)
	}
	if p.Typing.Window.Duration != 5*time.Second || p.Typing.AnnounceEvery.Duration != time.Second {
		t.Errorf("typing = %+v", p.Typing)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.toml")
	p := DefaultProfile()
	p.Storage.Driver = StorageS3
	p.Storage.Bucket = "chat"
	if err := SaveProfile(path, p); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Storage != p.Storage || loaded.Typing != p.Typing {
		t.Errorf("loaded = %+v, want %+v", loaded, p)
	}
}

func TestLoadProfileRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte("[realtime]\ndriver = \"carrier-pigeon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Error("expected error for unknown driver")
	}
}
