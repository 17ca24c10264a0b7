package gormrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

type userRepository struct {
	db *gorm.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *database.DB) *userRepository {
	return &userRepository{db: db.Gorm}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if err := repo.db.WithContext(ctx).Create(&usr).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var usr user.User
	if err := repo.db.WithContext(ctx).Where(query, args...).Take(&usr).Error; err != nil {
		if isNotFound(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !core.IsID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, "id = ?", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email = ?", email)
}

func (repo *userRepository) ExistingUserIDs(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	if len(ids) == 0 {
		return found, nil
	}
	err := repo.db.WithContext(ctx).Model(&user.User{}).Where("id IN ?", ids).Pluck("id", &found).Error
	return found, errors.Wrap(err, "listing user ids")
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	q := repo.db.WithContext(ctx).Model(&user.User{})
	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}
	if len(filter.Roles) > 0 {
		q = q.Where("role IN ?", filter.Roles)
	}
	if filter.Blocked != nil {
		q = q.Where("blocked = ?", *filter.Blocked)
	}
	if !filter.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		q = q.Where("created_at <= ?", filter.CreatedTo.UTC())
	}

	users := make([]user.User, 0)
	err := ordered(q, "created_at DESC, id ASC", ordering...).Find(&users).Error
	return users, errors.Wrap(err, "querying users")
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res := repo.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", usr.ID).Updates(map[string]interface{}{
		"name":       usr.Name,
		"role":       usr.Role,
		"updated_at": usr.UpdatedAt,
	})
	if res.Error != nil {
		return user.User{}, errors.Wrap(res.Error, "updating user")
	}
	if res.RowsAffected == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetUserBlocked(ctx context.Context, id string, blocked bool, updatedAt time.Time) error {
	res := repo.db.WithContext(ctx).Model(&user.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"blocked":    blocked,
		"updated_at": updatedAt,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "updating user")
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}
