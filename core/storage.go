package core

import (
	"context"
	"time"
)

type (
	// SignedURL grants time-limited access to a single object.
	SignedURL struct {
		URL       string    `json:"url"`
		Method    string    `json:"method"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	// FileStore is any object storage able to sign direct upload/download URLs.
	// Objects are never proxied through the API.
	FileStore interface {
		SignUpload(ctx context.Context, key, contentType string) (SignedURL, error)
		SignDownload(ctx context.Context, key, filename string) (SignedURL, error)
	}
)
