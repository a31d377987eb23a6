package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/eminingcampus/campus/core"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrUsernameExists   = errors.New("a user with this username already exists")
	ErrInvalidBirthDate = errors.New("date of birth must be a past date formatted as YYYY-MM-DD")

	// Orderings allowed on the user listing (json name -> column)
	Orderings = map[string]string{
		"name":       "name",
		"username":   "username",
		"email":      "email",
		"created_at": "created_at",
		"last_login": "last_login",
	}
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists if another user (not in excludedUsers) holds them.
		CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	// Notifier sends the account related emails.
	Notifier interface {
		Welcome(ctx context.Context, usr User)
		PasswordReset(ctx context.Context, usr User, uid, token string)
	}

	Service struct {
		repo     Repository
		notifier Notifier
		tokens   *TokenGenerator
	}
)

func NewService(repo Repository, notifier Notifier, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		tokens:   NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register creates a student account and sends the welcome email.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Roles = []string{RoleStudent}
	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}
	svc.notifier.Welcome(ctx, usr)
	return usr, nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Profile:   Profile{Country: DefaultCountry},
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	return usr, errors.Wrap(err, "creating user")
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	var qf QueryFilter
	if filter != nil {
		qf = *filter
	}
	qf.Clean()
	return svc.repo.QueryUsers(ctx, qf, core.AllowedOrderings(ordering, Orderings)...)
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.UpdatedAt = time.Now().UTC()
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	uu.applyProfile(&usr.Profile)
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}

// RequestPasswordReset emails a reset link to the active user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	token, err := svc.tokens.MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	svc.notifier.PasswordReset(ctx, usr, EncodeUID(usr), token)
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: errInvalidToken.Error()})

	uid, err := DecodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if core.IsNotFound(err) {
			return invalidErr
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.VerifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
