package cookies

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
)

const sampleCookieFile = `# Netscape HTTP Cookie File
# This is a comment

.kemono.su	TRUE	/	TRUE	1999999999	session	abc123
#HttpOnly_.kemono.su	TRUE	/	TRUE	1999999999	__ddg1	xyz
.coomer.su	TRUE	/	TRUE	1999999999	session	other
`

func TestParseNetscape(t *testing.T) {
	jar, err := ParseNetscape(strings.NewReader(sampleCookieFile))
	require.NoError(t, err)
	assert.Equal(t, 3, jar.Len())

	header := jar.Header("kemono.su")
	assert.Contains(t, header, "session=abc123")
	assert.Contains(t, header, "__ddg1=xyz")
	assert.NotContains(t, header, "other")

	// Subdomains match
	assert.Contains(t, jar.Header("www.kemono.su"), "session=abc123")

	// Unrelated domains do not
	assert.Empty(t, jar.Header("example.com"))
}

func TestParseNetscapeMalformed(t *testing.T) {
	_, err := ParseNetscape(strings.NewReader("only\tthree\tfields\n"))
	assert.Error(t, err)
}

type fakeStore struct {
	secret string
}

func (f *fakeStore) Set(s string) error { f.secret = s; return nil }
func (f *fakeStore) Get() (string, error) {
	if f.secret == "" {
		return "", ErrSecretNotFound
	}
	return f.secret, nil
}
func (f *fakeStore) Delete() error { f.secret = ""; return nil }

func TestResolveDisabled(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), "/app", nil)

	header, err := r.Resolve(config.CookieConfig{Enabled: false}, "kemono.su")
	require.NoError(t, err)
	assert.Empty(t, header)
}

func TestResolveLiteralWinsOverFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cookies.txt", []byte(sampleCookieFile), 0644))

	r := NewResolver(fs, "/app", nil)
	header, err := r.Resolve(config.CookieConfig{
		Enabled: true,
		String:  "session=literal",
		File:    "/cookies.txt",
	}, "kemono.su")
	require.NoError(t, err)
	assert.Equal(t, "session=literal", header)
}

func TestResolveFromFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cookies.txt", []byte(sampleCookieFile), 0644))

	r := NewResolver(fs, "/app", nil)
	header, err := r.Resolve(config.CookieConfig{Enabled: true, File: "/cookies.txt"}, "kemono.su")
	require.NoError(t, err)
	assert.Contains(t, header, "session=abc123")
}

func TestResolveDefaultFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/cookies.txt", []byte(sampleCookieFile), 0644))

	r := NewResolver(fs, "/app", nil)
	header, err := r.Resolve(config.CookieConfig{Enabled: true}, "kemono.su")
	require.NoError(t, err)
	assert.Contains(t, header, "session=abc123")
}

func TestResolveStoreFallback(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), "/app", &fakeStore{secret: "session=stored"})

	header, err := r.Resolve(config.CookieConfig{Enabled: true}, "kemono.su")
	require.NoError(t, err)
	assert.Equal(t, "session=stored", header)
}

func TestResolveNothingAvailable(t *testing.T) {
	r := NewResolver(afero.NewMemMapFs(), "/app", &fakeStore{})

	_, err := r.Resolve(config.CookieConfig{Enabled: true}, "kemono.su")
	assert.ErrorIs(t, err, ErrNoCookies)
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(dir)
	require.NoError(t, err)

	_, err = store.Get()
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, store.Set("session=secret-value"))

	got, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "session=secret-value", got)

	// A fresh store over the same directory decrypts with the saved passphrase
	store2, err := NewEncryptedFileStore(dir)
	require.NoError(t, err)
	got, err = store2.Get()
	require.NoError(t, err)
	assert.Equal(t, "session=secret-value", got)

	require.NoError(t, store.Delete())
	_, err = store.Get()
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.ErrorIs(t, store.Delete(), ErrSecretNotFound)
}

func TestEncryptedFileStoreRejectsEmpty(t *testing.T) {
	store, err := NewEncryptedFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.Set(""))
}
