package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

const userColumns = "id, name, username, email, is_active, roles, created_at, updated_at"

type userRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Username  string         `db:"username"`
	Email     string         `db:"email"`
	IsActive  bool           `db:"is_active"`
	Roles     pq.StringArray `db:"roles"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:        r.ID,
		Name:      r.Name,
		Username:  r.Username,
		Email:     r.Email,
		IsActive:  r.IsActive,
		Roles:     []string(r.Roles),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *database.DB) user.Repository {
	return &userRepository{baseRepository{db: db}}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, tx ...core.DBTransactor) (user.User, error) {
	usr.ID = uuid.New().String()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	_, err := repo.getExec(tx).ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles), usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, database.TranslateError(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id string, tx ...core.DBTransactor) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	var row userRow
	if err := repo.getExec(tx).GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE id = $1", id); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string, tx ...core.DBTransactor) (user.User, error) {
	var row userRow
	if err := repo.getExec(tx).GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE username = $1", username); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user by username")
	}
	return row.user(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, tx ...core.DBTransactor) ([]user.User, error) {
	var rows []userRow
	if err := repo.getExec(tx).SelectContext(ctx, &rows, "SELECT "+userColumns+" FROM users ORDER BY username"); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, tx ...core.DBTransactor) (user.User, error) {
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	res, err := repo.getExec(tx).ExecContext(ctx,
		`UPDATE users SET name = $1, username = $2, email = $3, is_active = $4, roles = $5, updated_at = $6 WHERE id = $7`,
		usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles), usr.UpdatedAt.UTC(), usr.ID,
	)
	if err != nil {
		return user.User{}, database.TranslateError(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}
