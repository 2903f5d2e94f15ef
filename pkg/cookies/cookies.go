package cookies

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
)

// ErrNoCookies is returned when cookies are enabled but no source yields one
var ErrNoCookies = errors.New("no cookie source available")

// DefaultFileName is the cookie file looked up in the application directory
// when no explicit source is configured.
const DefaultFileName = "cookies.txt"

// Resolver turns the configured cookie sources into a Cookie header value.
// Precedence: literal string, explicit file, default cookies.txt in the
// application directory, stored secret.
type Resolver struct {
	fs     afero.Fs
	appDir string
	store  SecretStore
}

// NewResolver creates a resolver. A nil store disables the stored-secret
// fallback.
func NewResolver(fs afero.Fs, appDir string, store SecretStore) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{fs: fs, appDir: appDir, store: store}
}

// Resolve returns the Cookie header for the given domain, or "" with no
// error when cookies are disabled.
func (r *Resolver) Resolve(cfg config.CookieConfig, domain string) (string, error) {
	if !cfg.Enabled {
		return "", nil
	}

	if cfg.String != "" {
		return cfg.String, nil
	}

	if cfg.File != "" {
		header, err := r.headerFromFile(cfg.File, domain)
		if err != nil {
			return "", fmt.Errorf("cookie file %s: %w", cfg.File, err)
		}
		return header, nil
	}

	defaultPath := filepath.Join(r.appDir, DefaultFileName)
	if exists, _ := afero.Exists(r.fs, defaultPath); exists {
		header, err := r.headerFromFile(defaultPath, domain)
		if err == nil && header != "" {
			return header, nil
		}
	}

	if r.store != nil {
		secret, err := r.store.Get()
		if err == nil && secret != "" {
			return secret, nil
		}
	}

	return "", ErrNoCookies
}

func (r *Resolver) headerFromFile(path, domain string) (string, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	jar, err := ParseNetscape(f)
	if err != nil {
		return "", err
	}
	header := jar.Header(domain)
	if header == "" {
		return "", fmt.Errorf("no cookies for domain %s", domain)
	}
	return header, nil
}

// AppDir returns the application directory used for the default cookie file
// and stored secrets.
func AppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "kemono-dl")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
