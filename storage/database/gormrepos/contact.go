package gormrepos

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/darasa/core/contact"
	"github.com/trezcool/darasa/storage/database"
)

type contactRepository struct {
	db *gorm.DB
}

var _ contact.Repository = (*contactRepository)(nil)

func NewContactRepository(db *database.DB) *contactRepository {
	return &contactRepository{db: db.Gorm}
}

func (repo *contactRepository) CreateSubmission(ctx context.Context, s contact.Submission) (contact.Submission, error) {
	err := repo.db.WithContext(ctx).Create(&s).Error
	return s, errors.Wrap(err, "creating contact submission")
}

func (repo *contactRepository) CreateSubscriber(ctx context.Context, s contact.Subscriber) (contact.Subscriber, bool, error) {
	res := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(&s)
	if res.Error != nil {
		return contact.Subscriber{}, false, errors.Wrap(res.Error, "creating subscriber")
	}
	if res.RowsAffected > 0 {
		return s, true, nil
	}

	var existing contact.Subscriber
	if err := repo.db.WithContext(ctx).Where("email = ?", s.Email).Take(&existing).Error; err != nil {
		return contact.Subscriber{}, false, errors.Wrap(err, "getting subscriber")
	}
	return existing, false, nil
}
