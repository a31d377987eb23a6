package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/eminingcampus/campus/core"
)

// Roles
const (
	RoleAdmin      = "admin"
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

var (
	AllRoles = []string{RoleAdmin, RoleInstructor, RoleStudent}

	rolePriorities = map[string]int{
		RoleAdmin:      30,
		RoleInstructor: 20,
		RoleStudent:    10,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Instructor", Value: RoleInstructor},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DefaultCountry is where new accounts are assumed to live.
const DefaultCountry = "Ghana"

// Profile holds the optional personal details of a User.
type Profile struct {
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	Bio         string    `json:"bio" db:"bio"`
	Country     string    `json:"country" db:"country"`
	City        string    `json:"city" db:"city"`
	DateOfBirth null.Time `json:"date_of_birth" db:"date_of_birth"`
}

type User struct {
	Profile
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Username     string         `json:"username" db:"username"`
	Email        string         `json:"email" db:"email"`
	IsActive     bool           `json:"is_active" db:"is_active"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
	PasswordHash []byte         `json:"-" db:"password_hash"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time      `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool      { return u.HasRole(RoleAdmin) }
func (u *User) IsInstructor() bool { return u.HasRole(RoleInstructor) }
func (u *User) IsStudent() bool    { return u.HasRole(RoleStudent) }

// DisplayName is the full name if set, else the username or the email.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	// profile; nil leaves the stored value as is
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	Bio         *string `json:"bio" validate:"omitempty,max=2000"`
	Country     *string `json:"country" validate:"omitempty,max=100"`
	City        *string `json:"city" validate:"omitempty,max=100"`
	DateOfBirth *string `json:"date_of_birth"` // YYYY-MM-DD, "" clears it
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	for _, fld := range []*string{uu.PhoneNumber, uu.Bio, uu.Country, uu.City} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}

	// only a changed username has to follow the current rules
	checked := *uu
	if checked.Username == origUsr.Username {
		checked.Username = ""
	}
	if err := validate.Struct(&checked); err != nil {
		return err
	}

	if uu.DateOfBirth != nil {
		if _, err := parseBirthDate(*uu.DateOfBirth); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "date_of_birth", Error: err.Error()})
		}
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

// applyProfile copies the provided profile fields onto p.
func (uu *UpdateUser) applyProfile(p *Profile) {
	if uu.PhoneNumber != nil {
		p.PhoneNumber = *uu.PhoneNumber
	}
	if uu.Bio != nil {
		p.Bio = *uu.Bio
	}
	if uu.Country != nil {
		p.Country = *uu.Country
	}
	if uu.City != nil {
		p.City = *uu.City
	}
	if uu.DateOfBirth != nil {
		if dob, err := parseBirthDate(*uu.DateOfBirth); err == nil {
			p.DateOfBirth = dob
		}
	}
}

func parseBirthDate(val string) (null.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return null.Time{}, nil
	}
	dob, err := time.Parse("2006-01-02", val)
	if err != nil || !dob.Before(time.Now().UTC()) {
		return null.Time{}, ErrInvalidBirthDate
	}
	return null.TimeFrom(dob), nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

// GetFilter selects a single User. The first set field wins.
type GetFilter struct {
	ID              string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
