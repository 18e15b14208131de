package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.layover/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// Realtime drivers.
const (
	RealtimeLocal = "local"
	RealtimeRedis = "redis"
)

// Storage drivers.
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// DevSecret signs tokens of profiles that do not set their own secret.
const DevSecret = "layover-dev-secret"

// Profile represents ~/.layover/profiles/<name>/profile.toml.
type Profile struct {
	User          User          `toml:"user"`
	Auth          Auth          `toml:"auth"`
	Store         Store         `toml:"store"`
	Realtime      Realtime      `toml:"realtime"`
	Storage       Storage       `toml:"storage"`
	Notifications Notifications `toml:"notifications"`
	Typing        Typing        `toml:"typing"`
}

// User is who the profile signs in as.
type User struct {
	Token string `toml:"token"`
}

// Auth holds the HS256 secret access tokens are verified with.
type Auth struct {
	Secret string `toml:"secret"`
}

// Store configures the record store. An empty path uses the profile's
// layover.db.
type Store struct {
	Path string `toml:"path"`
}

// Realtime selects the push transport.
type Realtime struct {
	Driver      string `toml:"driver"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

// Storage selects the object store for chat images.
type Storage struct {
	Driver   string `toml:"driver"`
	Dir      string `toml:"dir"`
	Bucket   string `toml:"bucket"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`
}

// Notifications tunes retention and paging.
type Notifications struct {
	MaxPerUser int `toml:"max_per_user"`
	PageSize   int `toml:"page_size"`
}

// Typing tunes the typing indicator.
type Typing struct {
	Window        Duration `toml:"window"`
	AnnounceEvery Duration `toml:"announce_every"`
}

// Duration is a time.Duration written as a string such as "3s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultProfile returns the settings of a fresh profile.
func DefaultProfile() *Profile {
	return &Profile{
		Auth:     Auth{Secret: DevSecret},
		Realtime: Realtime{Driver: RealtimeLocal, RedisAddr: "localhost:6379", RedisPrefix: "layover"},
		Storage:  Storage{Driver: StorageFS, Bucket: "layover", Region: "us-east-1"},
		Notifications: Notifications{
			MaxPerUser: 200,
			PageSize:   50,
		},
		Typing: Typing{
			Window:        Duration{3 * time.Second},
			AnnounceEvery: Duration{time.Second},
		},
	}
}

// LoadProfile reads a profile over the defaults. A missing file yields the
// defaults.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if _, err := toml.DecodeFile(path, p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProfile writes p to path, creating parent dirs as needed.
func SaveProfile(path string, p *Profile) error {
	return write(path, p)
}

// Validate checks the driver names.
func (p *Profile) Validate() error {
	switch p.Realtime.Driver {
	case RealtimeLocal, RealtimeRedis:
	default:
		return fmt.Errorf("unknown realtime driver %q", p.Realtime.Driver)
	}
	switch p.Storage.Driver {
	case StorageFS, StorageS3:
	default:
		return fmt.Errorf("unknown storage driver %q", p.Storage.Driver)
	}
	return nil
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
