package appfs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFS(t *testing.T) {
	files := []string{
		"migrations/00001_users.sql",
		"assets/templates/email/_base.gohtml",
		"assets/templates/email/_base.txt",
		"assets/templates/email/payment_confirmation.gohtml",
		"assets/templates/email/payment_confirmation.txt",
	}
	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Stat(FS, name)
			assert.NoError(t, err)
		})
	}
}
