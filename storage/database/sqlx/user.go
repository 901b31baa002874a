package sqlxrepos

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/user"
	"github.com/abiaedu/portal/storage/database"
)

var (
	userColumns = []string{
		"id", "name", "email", "role", "password_hash", "verified", "approved", "blocked",
		"verification_code_hash", "verification_expires_at", "verification_attempts",
		"created_at", "updated_at", "last_login",
	}

	// api ordering field -> column
	userOrderings = map[string]string{
		"name":       "name",
		"email":      "email",
		"role":       "role",
		"created_at": "created_at",
		"last_login": "last_login",
	}
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (`+strings.Join(userColumns, ", ")+`)
		VALUES (:`+strings.Join(userColumns, ", :")+`)`, usr)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	qb := psql.Select(userColumns...).From("users")
	switch {
	case filter.ID != "":
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	q, args, err := qb.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var usr user.User
	if err = repo.db.GetContext(ctx, &usr, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return normalizeUser(usr), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	sets := make([]string, 0, len(userColumns)-1)
	for _, col := range userColumns[1:] {
		if col != "created_at" {
			sets = append(sets, col+" = :"+col)
		}
	}
	res, err := repo.db.NamedExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = :id", usr)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("users")

	// users with Name or Email matching the search keyword
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		qb = qb.Where(sq.Or{sq.ILike{"name": pattern}, sq.ILike{"email": pattern}})
	}
	if filter.Role != "" {
		qb = qb.Where(sq.Eq{"role": filter.Role})
	}
	switch filter.State {
	case user.StateRegistered:
		qb = qb.Where(sq.Eq{"verified": false})
	case user.StateVerified:
		qb = qb.Where(sq.Eq{"verified": true, "approved": false})
	case user.StateApproved:
		qb = qb.Where(sq.Eq{"verified": true, "approved": true})
	}
	if filter.Blocked != nil {
		qb = qb.Where(sq.Eq{"blocked": *filter.Blocked})
	}

	ordering := core.MapOrderings(filter.Ordering, userOrderings)
	if len(ordering) == 0 {
		qb = qb.OrderBy("created_at DESC")
	}
	for _, ord := range ordering {
		qb = qb.OrderBy(ord.String())
	}

	var users []user.User
	if err := selectAll(ctx, repo.db, &users, qb); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	for i := range users {
		users[i] = normalizeUser(users[i])
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}

func normalizeUser(usr user.User) user.User {
	usr.CreatedAt = usr.CreatedAt.UTC()
	usr.UpdatedAt = usr.UpdatedAt.UTC()
	if usr.LastLogin.Valid {
		usr.LastLogin.Time = usr.LastLogin.Time.UTC()
	}
	return usr
}
