package storagesvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	salt = []byte("darasa.services.storage.local")

	// errors
	ErrInvalidSignature = errors.New("invalid signature")
	ErrURLExpired       = errors.New("url expired")
	ErrInvalidKey       = errors.New("invalid file key")
)

// LocalStore keeps files on disk and serves them under baseURL + "/files/<key>".
// URLs are signed with an HMAC of the method, key, expiry and filename.
type LocalStore struct {
	dir     string
	baseURL string
	key     [32]byte
	expiry  time.Duration
	NowFunc func() time.Time // mockable
}

var _ core.FileStore = (*LocalStore)(nil)

func NewLocalStore(conf *core.Config, baseURL string) *LocalStore {
	dir := conf.Storage.LocalDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(conf.WorkDir, dir)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     sha256.Sum256(append(append([]byte{}, salt...), conf.SecretKey...)),
		expiry:  conf.Storage.SignedURLExpiry,
		NowFunc: time.Now,
	}
}

func (s *LocalStore) SignUpload(_ context.Context, key, _ string) (core.SignedURL, error) {
	return s.sign(http.MethodPut, key, "")
}

func (s *LocalStore) SignDownload(_ context.Context, key, filename string) (core.SignedURL, error) {
	return s.sign(http.MethodGet, key, filename)
}

func (s *LocalStore) sign(method, key, filename string) (core.SignedURL, error) {
	if _, err := s.path(key); err != nil {
		return core.SignedURL{}, err
	}
	expiresAt := s.NowFunc().Add(s.expiry).UTC().Truncate(time.Second)
	expires := strconv.FormatInt(expiresAt.Unix(), 10)

	q := make(url.Values)
	q.Set("expires", expires)
	if filename != "" {
		q.Set("filename", filename)
	}
	q.Set("signature", s.signature(method, key, expires, filename))
	return core.SignedURL{
		URL:       s.baseURL + "/files/" + key + "?" + q.Encode(),
		Method:    method,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *LocalStore) signature(method, key, expires, filename string) string {
	h := hmac.New(sha256.New, s.key[:])
	_, _ = io.WriteString(h, method+"\n"+key+"\n"+expires+"\n"+filename)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Verify checks a signed request for key.
func (s *LocalStore) Verify(method, key string, q url.Values) error {
	expires := q.Get("expires")
	want := s.signature(method, key, expires, q.Get("filename"))
	if subtle.ConstantTimeCompare([]byte(want), []byte(q.Get("signature"))) == 0 {
		return ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.NowFunc().Unix() > ts {
		return ErrURLExpired
	}
	return nil
}

// path resolves key inside the storage directory.
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

// Save writes the content of r under key, replacing any previous file.
func (s *LocalStore) Save(key string, r io.Reader) error {
	fp, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating directory")
	}
	f, err := os.Create(fp)
	if err != nil {
		return errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "writing file")
	}
	return errors.Wrap(f.Close(), "closing file")
}

// Path returns the path of an existing file.
func (s *LocalStore) Path(key string) (string, error) {
	fp, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err = os.Stat(fp); err != nil {
		if os.IsNotExist(err) {
			return "", core.NewNotFoundError("file")
		}
		return "", errors.Wrap(err, "reading file")
	}
	return fp, nil
}
