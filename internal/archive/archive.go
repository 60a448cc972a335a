// Package archive writes package snapshots to blob storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gps-cli/internal/model"
)

// Drivers accepted by New.
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverGCS   = "gcs"
)

// Store puts and gets blobs by slash-separated key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Config selects and configures a backend.
type Config struct {
	Driver    string
	Path      string
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// New builds the Store named by cfg.Driver. The none driver returns nil.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverLocal:
		if cfg.Path == "" {
			return nil, eris.New("archive: local driver requires a path")
		}
		return NewLocal(cfg.Path), nil
	case DriverS3:
		s, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverGCS:
		s, err := NewGCS(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("archive: unknown driver %q", cfg.Driver)
	}
}

// PackageKey is the blob key of one package version:
// packages/<YYYY-MM>/<level>/<name>/<role>/v<version>.json.
func PackageKey(p model.MonthlyPackage) string {
	return path.Join("packages", p.Month.String(), string(p.Scope.Level),
		segment(p.Scope.Name), segment(string(p.Role)), fmt.Sprintf("v%d.json", p.Version))
}

// segment keeps a name usable as a single path element.
func segment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(s)
}

// PutPackage serializes p and stores it under PackageKey.
func PutPackage(ctx context.Context, s Store, p model.MonthlyPackage) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "archive: encode package %s", p.Key())
	}
	key := PackageKey(p)
	if err := s.Put(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// Local stores blobs under a directory.
type Local struct {
	BaseDir string
}

// NewLocal creates a Local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{BaseDir: dir}
}

func (l *Local) file(key string) string {
	return filepath.Join(l.BaseDir, filepath.FromSlash(key))
}

// Put writes data to key, creating parent directories.
func (l *Local) Put(_ context.Context, key string, data []byte) error {
	p := l.file(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return eris.Wrapf(err, "archive: create directory for %s", key)
	}
	return eris.Wrapf(os.WriteFile(p, data, 0o644), "archive: write %s", key)
}

// Get reads key.
func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(l.file(key))
	if err != nil {
		return nil, eris.Wrapf(err, "archive: read %s", key)
	}
	return b, nil
}

func prefixed(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
