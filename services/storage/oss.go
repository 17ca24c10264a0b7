// Package storagesvc signs direct upload and download URLs for stored files.
package storagesvc

import (
	"context"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

type ossStore struct {
	bucket *oss.Bucket
	expiry time.Duration
	now    func() time.Time
}

var _ core.FileStore = (*ossStore)(nil)

// NewOSSStore signs URLs for an Aliyun OSS bucket. Nothing is sent to OSS until a client uses a URL.
func NewOSSStore(conf *core.Config) (*ossStore, error) {
	client, err := oss.New(conf.Storage.Endpoint, conf.Storage.AccessKeyID, conf.Storage.AccessKeySecret)
	if err != nil {
		return nil, errors.Wrap(err, "oss.New")
	}
	bucket, err := client.Bucket(conf.Storage.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "oss.Bucket")
	}
	return &ossStore{bucket: bucket, expiry: conf.Storage.SignedURLExpiry, now: time.Now}, nil
}

func (s *ossStore) sign(key string, method oss.HTTPMethod, options ...oss.Option) (core.SignedURL, error) {
	expiresAt := s.now().Add(s.expiry).UTC()
	u, err := s.bucket.SignURL(key, method, int64(s.expiry/time.Second), options...)
	if err != nil {
		return core.SignedURL{}, errors.Wrap(err, "oss: signing url")
	}
	return core.SignedURL{URL: u, Method: string(method), ExpiresAt: expiresAt}, nil
}

func (s *ossStore) SignUpload(_ context.Context, key, contentType string) (core.SignedURL, error) {
	var options []oss.Option
	if contentType != "" {
		options = append(options, oss.ContentType(contentType))
	}
	return s.sign(key, oss.HTTPPut, options...)
}

func (s *ossStore) SignDownload(_ context.Context, key, filename string) (core.SignedURL, error) {
	var options []oss.Option
	if filename != "" {
		options = append(options, oss.ResponseContentDisposition(contentDisposition(filename)))
	}
	return s.sign(key, oss.HTTPGet, options...)
}

func contentDisposition(filename string) string {
	return `attachment; filename="` + strings.ReplaceAll(filename, `"`, "") + `"`
}
