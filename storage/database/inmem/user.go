package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

// query must be called with the lock held.
func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.query() {
		if isExcluded(usr, excludedUsers) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.users {
		if usr.Username != "" && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		switch {
		case filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if search != "" &&
			!strings.Contains(strings.ToLower(usr.Name), search) &&
			!strings.Contains(usr.Username, search) &&
			!strings.Contains(usr.Email, search) {
			continue
		}
		if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, usr)
	}

	for i := len(ordering) - 1; i >= 0; i-- {
		ord := ordering[i]
		sort.SliceStable(users, func(a, b int) bool {
			less, greater := compareUsers(users[a], users[b], ord.Field)
			if ord.Ascending {
				return less
			}
			return greater
		})
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}

func hasAnyRole(usr user.User, roles []string) bool {
	for _, role := range roles {
		if usr.HasRole(role) {
			return true
		}
	}
	return false
}

func compareUsers(a, b user.User, field string) (less, greater bool) {
	switch field {
	case "name":
		return a.Name < b.Name, a.Name > b.Name
	case "username":
		return a.Username < b.Username, a.Username > b.Username
	case "email":
		return a.Email < b.Email, a.Email > b.Email
	case "last_login":
		return a.LastLogin.Time.Before(b.LastLogin.Time), a.LastLogin.Time.After(b.LastLogin.Time)
	default:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
	}
}
