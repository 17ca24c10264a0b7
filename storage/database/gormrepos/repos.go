// Package gormrepos implements the domain repositories on top of gorm.
package gormrepos

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/darasa/core"
)

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// ordered applies the orderings, then def when there is none.
// Fields must have been whitelisted with core.AllowedOrderings.
func ordered(db *gorm.DB, def string, ordering ...core.DBOrdering) *gorm.DB {
	if len(ordering) == 0 {
		return db.Order(def)
	}
	for _, ord := range ordering {
		db = db.Order(ord.String())
	}
	return db.Order("id ASC")
}
