package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/history"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, tx ...core.DBTransactor) (user.User, error) {
	usr.ID = uuid.New().String()
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		for _, u := range t.users {
			if u.Username == usr.Username {
				return database.ConstraintViolation("users_username_key")
			}
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, id string, tx ...core.DBTransactor) (user.User, error) {
	var usr user.User
	err := repo.db.read(tx, func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return user.ErrNotFound
		}
		usr = u
		return nil
	})
	return usr, err
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string, tx ...core.DBTransactor) (user.User, error) {
	var usr user.User
	err := repo.db.read(tx, func(t *tables) error {
		for _, u := range t.users {
			if u.Username == username {
				usr = u
				return nil
			}
		}
		return user.ErrNotFound
	})
	return usr, err
}

func (repo *userRepository) QueryUsers(ctx context.Context, tx ...core.DBTransactor) ([]user.User, error) {
	var users []user.User
	err := repo.db.read(tx, func(t *tables) error {
		users = make([]user.User, 0, len(t.users))
		for _, u := range t.users {
			users = append(users, u)
		}
		return nil
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, err
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, tx ...core.DBTransactor) (user.User, error) {
	err := repo.db.write(tx, func(t *tables, _ *history.Context) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		for _, u := range t.users {
			if u.Username == usr.Username && u.ID != usr.ID {
				return database.ConstraintViolation("users_username_key")
			}
		}
		t.users[usr.ID] = usr
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}
