package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the public user directory.
type UserRepository interface {
	CreateUser(ctx context.Context, username, avatar string) (models.User, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	BulkUsers(ctx context.Context, ids []int) ([]models.User, error)
	SearchUsers(ctx context.Context, excludeID int, query string, limit int) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db, sb: builder(db)}
}

// CreateUser inserts a user record.
func (r *UserRepo) CreateUser(ctx context.Context, username, avatar string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`INSERT INTO users (username, avatar) VALUES (?, ?) RETURNING id, username, avatar, created_at`), username, avatar).
		StructScan(&user)
	return user, err
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.db.Rebind(`SELECT id, username, avatar, created_at FROM users WHERE id=?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// BulkUsers fetches the users with the given ids; unknown ids are skipped.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	q := r.sb.Select("id", "username", "avatar", "created_at").From("users").Where(sq.Eq{"id": ids}).OrderBy("id")
	err := selectBuilt(ctx, r.db, &users, q)
	return users, err
}

// SearchUsers lists users other than excludeID whose username contains query, case
// insensitively. An empty query matches everyone.
func (r *UserRepo) SearchUsers(ctx context.Context, excludeID int, query string, limit int) ([]models.User, error) {
	users := []models.User{}
	q := r.sb.Select("id", "username", "avatar", "created_at").From("users").
		Where(sq.NotEq{"id": excludeID}).
		OrderBy("username").
		Limit(uint64(limit))
	if query = strings.TrimSpace(query); query != "" {
		q = q.Where(sq.Like{"LOWER(username)": "%" + strings.ToLower(query) + "%"})
	}
	err := selectBuilt(ctx, r.db, &users, q)
	return users, err
}
