package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("user")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrSelfBlock   = core.NewConflictError("you cannot block your own account")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// ExistingUserIDs returns the subset of ids that belong to a user.
		ExistingUserIDs(ctx context.Context, ids []string) ([]string, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SetUserBlocked(ctx context.Context, id string, blocked bool, updatedAt time.Time) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnsureUser mirrors an identity-provider account: it creates the user, or refreshes
// the name and role of the existing one with the same email.
func (svc *Service) EnsureUser(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := core.ValidateStruct(nu); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr, err := svc.repo.GetUserByEmail(ctx, nu.Email)
	switch {
	case err == nil:
		usr.Name = nu.Name
		usr.Role = nu.Role
		usr.UpdatedAt = now
		return svc.repo.UpdateUser(ctx, usr)
	case core.IsNotFound(err):
		usr = User{
			ID:        core.NewID(),
			Name:      nu.Name,
			Email:     nu.Email,
			Role:      nu.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		usr, err = svc.repo.CreateUser(ctx, usr)
		if errors.Cause(err) == ErrEmailExists {
			return User{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return usr, err
	default:
		return User{}, err
	}
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// MissingIDs returns the ids (deduplicated, in input order) that do not belong to any user.
func (svc *Service) MissingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	existing, err := svc.repo.ExistingUserIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		found[id] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
			found[id] = struct{}{}
		}
	}
	return missing, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	filter.Clean()
	ordering = core.AllowedOrderings(ordering, OrderingFields...)
	return svc.repo.QueryUsers(ctx, filter, ordering...)
}

// SetBlocked sets the blocked flag of targetID unconditionally.
// An admin can never block their own account.
func (svc *Service) SetBlocked(ctx context.Context, actingAdminID, targetID string, blocked bool) (Summary, error) {
	if blocked && actingAdminID == targetID {
		return Summary{}, ErrSelfBlock
	}

	usr, err := svc.repo.GetUserByID(ctx, targetID)
	if err != nil {
		return Summary{}, err
	}
	usr.Blocked = blocked
	usr.UpdatedAt = time.Now().UTC()
	if err = svc.repo.SetUserBlocked(ctx, usr.ID, blocked, usr.UpdatedAt); err != nil {
		return Summary{}, errors.Wrap(err, "setting blocked flag")
	}
	return usr.Summary(), nil
}
