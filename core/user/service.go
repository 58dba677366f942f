package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrUsernameExists = core.NewValidationError(nil, core.FieldError{Field: "username", Error: "a user with this username already exists"})
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User, tx ...core.DBTransactor) (User, error)
		GetUser(ctx context.Context, id string, tx ...core.DBTransactor) (User, error)
		GetUserByUsername(ctx context.Context, username string, tx ...core.DBTransactor) (User, error)
		QueryUsers(ctx context.Context, tx ...core.DBTransactor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, tx ...core.DBTransactor) (User, error)
	}

	Service interface {
		Create(ctx context.Context, nu NewUser) (User, error)
		// UpdateOrCreate upserts a user by username, used by the admin CLI.
		UpdateOrCreate(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string, tx ...core.DBTransactor) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		QueryAll(ctx context.Context) ([]User, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	if _, err := svc.repo.GetUserByUsername(ctx, nu.Username); err == nil {
		return User{}, ErrUsernameExists
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "checking username uniqueness")
	}

	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) UpdateOrCreate(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, nu.Username)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return User{}, errors.Wrap(err, "finding user by username")
		}
		return svc.Create(ctx, nu)
	}

	usr.Name = nu.Name
	usr.Email = nu.Email
	usr.Roles = nu.Roles
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string, tx ...core.DBTransactor) (User, error) {
	return svc.repo.GetUser(ctx, id, tx...)
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *service) QueryAll(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsers(ctx)
}
