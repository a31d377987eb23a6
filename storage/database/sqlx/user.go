package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/user"
)

type userRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	var conds conditions
	conds.add("((username = ? AND username <> '') OR email = ?)", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		conds.add("NOT (id = ANY(?))", pq.Array(ids))
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	q := rebind("SELECT username, email FROM users" + conds.where())
	if err := executor(ctx, repo.db).SelectContext(ctx, &taken, q, conds.args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, t := range taken {
		if username != "" && t.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	q := `INSERT INTO users (id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login,
			phone_number, bio, country, city, date_of_birth)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :created_at, :updated_at, :last_login,
			:phone_number, :bio, :country, :city, :date_of_birth)`
	if _, err := executor(ctx, repo.db).NamedExecContext(ctx, q, usr); err != nil {
		return user.User{}, repo.trapUniqueViolation(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var conds conditions
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		conds.add("id = ?", filter.ID)
	case filter.Email != "":
		conds.add("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		conds.add("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	q := rebind("SELECT * FROM users" + conds.where() + " LIMIT 1")
	if err := executor(ctx, repo.db).GetContext(ctx, &usr, q, conds.args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var conds conditions
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		conds.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
	}
	if len(filter.Roles) > 0 {
		conds.add("roles && ?", pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		conds.add("is_active = ?", *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		conds.add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		conds.add("created_at <= ?", filter.CreatedTo.UTC())
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}

	users := make([]user.User, 0)
	q := rebind("SELECT * FROM users" + conds.where() + orderBy(ordering, ""))
	if err := executor(ctx, repo.db).SelectContext(ctx, &users, q, conds.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = :name, username = :username, email = :email, is_active = :is_active, roles = :roles,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login,
		phone_number = :phone_number, bio = :bio, country = :country, city = :city, date_of_birth = :date_of_birth
		WHERE id = :id`
	n, err := rowsAffected(executor(ctx, repo.db).NamedExecContext(ctx, q, usr))
	if err != nil {
		return user.User{}, repo.trapUniqueViolation(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) trapUniqueViolation(err error, msg string) error {
	if isViolation(err, uniqueViolation) {
		switch violatedConstraint(err) {
		case "users_username_key":
			return user.ErrUsernameExists
		case "users_email_key":
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}
