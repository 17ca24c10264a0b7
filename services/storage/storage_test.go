package storagesvc

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
)

func TestOSSStore(t *testing.T) {
	store, err := NewOSSStore(&core.Config{Storage: core.StorageConfig{
		Endpoint:        "https://oss-ap-southeast-5.aliyuncs.com",
		AccessKeyID:     "key-id",
		AccessKeySecret: "key-secret",
		Bucket:          "darasa",
		SignedURLExpiry: 15 * time.Minute,
	}})
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	up, err := store.SignUpload(ctx, "assignments/1/brief.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, up.Method)
	assert.Equal(t, now.Add(15*time.Minute), up.ExpiresAt)
	upURL, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "darasa.oss-ap-southeast-5.aliyuncs.com", upURL.Host)
	// the key is sent escaped ("assignments%2F1%2Fbrief.pdf")
	assert.Equal(t, "/assignments/1/brief.pdf", upURL.Path)
	assert.NotEmpty(t, upURL.Query().Get("Signature"))

	down, err := store.SignDownload(ctx, "assignments/1/brief.pdf", "brief.pdf")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, down.Method)
	u, err := url.Parse(down.URL)
	require.NoError(t, err)
	assert.Equal(t, `attachment; filename="brief.pdf"`, u.Query().Get("response-content-disposition"))
}

func newLocalStore(t *testing.T) *LocalStore {
	conf := &core.Config{
		SecretKey: "secret",
		Storage:   core.StorageConfig{LocalDir: t.TempDir(), SignedURLExpiry: time.Minute},
	}
	return NewLocalStore(conf, "http://localhost:8000/")
}

func TestLocalStore_Sign(t *testing.T) {
	store := newLocalStore(t)
	now := time.Now()
	store.NowFunc = func() time.Time { return now }
	ctx := context.Background()

	down, err := store.SignDownload(ctx, "assignments/1/brief.pdf", "brief.pdf")
	require.NoError(t, err)
	u, err := url.Parse(down.URL)
	require.NoError(t, err)
	assert.Equal(t, "/files/assignments/1/brief.pdf", u.Path)
	assert.NoError(t, store.Verify(http.MethodGet, "assignments/1/brief.pdf", u.Query()))

	tests := []struct {
		name    string
		method  string
		key     string
		query   func(url.Values)
		wantErr error
	}{
		{name: "other method", method: http.MethodPut, key: "assignments/1/brief.pdf", wantErr: ErrInvalidSignature},
		{name: "other key", method: http.MethodGet, key: "assignments/2/brief.pdf", wantErr: ErrInvalidSignature},
		{name: "tampered filename", method: http.MethodGet, key: "assignments/1/brief.pdf", query: func(q url.Values) { q.Set("filename", "x.exe") }, wantErr: ErrInvalidSignature},
		{name: "tampered expiry", method: http.MethodGet, key: "assignments/1/brief.pdf", query: func(q url.Values) { q.Set("expires", "9999999999") }, wantErr: ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := u.Query()
			if tt.query != nil {
				tt.query(q)
			}
			assert.Equal(t, tt.wantErr, store.Verify(tt.method, tt.key, q))
		})
	}

	store.NowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, ErrURLExpired, store.Verify(http.MethodGet, "assignments/1/brief.pdf", u.Query()))

	_, err = store.SignUpload(ctx, "../etc/passwd", "")
	assert.Equal(t, ErrInvalidKey, err)
}

func TestLocalStore_SaveAndPath(t *testing.T) {
	store := newLocalStore(t)

	_, err := store.Path("assignments/1/brief.pdf")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, store.Save("assignments/1/brief.pdf", strings.NewReader("%PDF")))
	fp, err := store.Path("assignments/1/brief.pdf")
	require.NoError(t, err)
	content, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(content))
	assert.Equal(t, filepath.Join(store.dir, "assignments", "1", "brief.pdf"), fp)

	assert.Equal(t, ErrInvalidKey, store.Save("/abs", strings.NewReader("")))
}
