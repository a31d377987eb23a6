package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/eminingcampus/campus/core"
)

func newTestValidator() *validator.Validate {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)
	return validate
}

func failedTags(err error) []string {
	var tags []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			tags = append(tags, fe.Tag())
		}
	}
	return tags
}

func TestPasswordPolicy(t *testing.T) {
	validate := newTestValidator()

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcdefg123", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcdefg1!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Kwame_Mensah1", wantTag: pwdAttrSimTag},
		{name: "valid", pwd: "Gold&Coast-2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := NewUser{
				Name:            "Ama",
				Username:        "kwame_mensah",
				Email:           "ama@campus.test",
				Password:        tt.pwd,
				PasswordConfirm: tt.pwd,
			}
			err := validate.Struct(nu)
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, failedTags(err), tt.wantTag)
		})
	}
}

func TestAllRolesValidation(t *testing.T) {
	validate := newTestValidator()
	nu := NewUser{
		Name:            "Ama",
		Email:           "ama@campus.test",
		Password:        "Gold&Coast-2024",
		PasswordConfirm: "Gold&Coast-2024",
		Roles:           []string{RoleStudent, RoleInstructor},
	}
	assert.NoError(t, validate.Struct(nu))

	nu.Roles = []string{RoleStudent, "superuser"}
	assert.Contains(t, failedTags(validate.Struct(nu)), allRolesTag)
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Equal(t, 20, MaxRolePriority([]string{RoleStudent, RoleInstructor}))
	assert.Equal(t, 30, MaxRolePriority([]string{RoleAdmin}))
}
