package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/eminingcampus/campus/apps/api/echo"
	"github.com/eminingcampus/campus/core/user"
	"github.com/eminingcampus/campus/tests/testutil"
)

const strongPwd = "Gold&Ore2024"

func Test_userApi_register(t *testing.T) {
	app := newTestApp(t)
	body := []byte(`{"name":"Kofi Mensah","username":"kofi","email":"Kofi@Campus.test","password":"` + strongPwd +
		`","password_confirm":"` + strongPwd + `","roles":["admin"]}`)

	rec := app.do(http.MethodPost, "/v1/users/register", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp echoapi.RegisterResponse
	decode(t, rec, &resp)
	assert.Equal(t, "kofi@campus.test", resp.User.Email)
	assert.Equal(t, []string{user.RoleStudent}, []string(resp.User.Roles))
	assert.NotEmpty(t, resp.Token)

	sent := app.email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "kofi@campus.test", sent[0].To[0].Address)

	// the returned token authenticates
	me := app.do(http.MethodGet, "/v1/users/me", resp.Token)
	require.Equal(t, http.StatusOK, me.Code)
	var usr user.User
	decode(t, me, &usr)
	assert.Equal(t, resp.User.ID, usr.ID)

	app.run(t, []httpTest{
		{
			name: "email taken", method: http.MethodPost, path: "/v1/users/register", body: []byte(strings.Replace(string(body), `"kofi"`, `"kofi2"`, 1)),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", body: body,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{name: "weak password", method: http.MethodPost, path: "/v1/users/register", wantCode: http.StatusBadRequest,
			body: []byte(`{"name":"Ama","email":"ama@campus.test","password":"password","password_confirm":"password"}`)},
		{name: "missing fields", method: http.MethodPost, path: "/v1/users/register", body: []byte(`{}`), wantCode: http.StatusBadRequest},
	})
}

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.users, "Ama Owusu", "ama", "ama@campus.test", strongPwd, []string{user.RoleStudent}, true)
	testutil.CreateUser(t, app.users, "Gone", "gone", "gone@campus.test", strongPwd, []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return []byte(`{"username":"` + uname + `","password":"` + pwd + `"}`)
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	app.run(t, []httpTest{
		{name: "unknown user", method: http.MethodPost, path: "/v1/users/login", body: login("nobody", strongPwd), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", method: http.MethodPost, path: "/v1/users/login", body: login("ama", "Wrong&Pwd1"), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/users/login", body: login("gone", strongPwd),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "missing password", method: http.MethodPost, path: "/v1/users/login", body: []byte(`{"username":"ama"}`), wantCode: http.StatusBadRequest},
	})

	for _, uname := range []string{"ama", "AMA@campus.test"} {
		rec := app.do(http.MethodPost, "/v1/users/login", "", login(uname, strongPwd))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.LoginResponse
		decode(t, rec, &resp)
		assert.Len(t, strings.Split(resp.Token, "."), 3)
	}

	usr, err := app.users.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: "ama"})
	require.NoError(t, err)
	assert.True(t, usr.LastLogin.Valid)
}

func Test_userApi_query(t *testing.T) {
	app := newTestApp(t)
	student := testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	tutor := testutil.CreateUser(t, app.users, "Yaw Tutor", "yaw", "yaw@campus.test", "", []string{user.RoleInstructor}, true)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	naughty := testutil.CreateUser(t, app.users, "N Dog", "ndog", "ndog@campus.test", "", []string{user.RoleStudent}, false)

	adminToken := app.getToken(t, admin)

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: app.getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "all by username", path: "/v1/users?ordering=username", token: adminToken,
			wantData: marchallList(t, admin, student, naughty, tutor),
		},
		{
			name: "all by -username", path: "/v1/users?ordering=-username", token: adminToken,
			wantData: marchallList(t, tutor, naughty, student, admin),
		},
		{name: "search", path: "/v1/users?search=TUTOR&ordering=username", token: adminToken, wantData: marchallList(t, tutor)},
		{name: "search (unknown)", path: "/v1/users?search=lol", token: adminToken, wantData: marchallList(t)},
		{name: "role", path: "/v1/users?role=student&ordering=username", token: adminToken, wantData: marchallList(t, student, naughty)},
		{
			name: "roles", path: "/v1/users?role=student&role=instructor&ordering=username", token: adminToken,
			wantData: marchallList(t, student, naughty, tutor),
		},
		{name: "is_active=false", path: "/v1/users?is_active=false", token: adminToken, wantData: marchallList(t, naughty)},
		{name: "invalid is_active", path: "/v1/users?is_active=lol", token: adminToken, wantData: marchallList(t)},
		{name: "created_from (future)", path: "/v1/users?created_from=2999-01-01", token: adminToken, wantData: marchallList(t)},
		{name: "roles list", path: "/v1/users/roles", token: adminToken, wantData: marchallObj(t, user.Roles)},
		{name: "retrieve", path: "/v1/users/" + student.ID, token: adminToken, wantData: marchallObj(t, student)},
		{name: "retrieve (unknown)", path: "/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound},
	})
}

func Test_userApi_update(t *testing.T) {
	app := newTestApp(t)
	student := testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, app.users, "Admin", "admin", "admin@campus.test", "", []string{user.RoleAdmin}, true)
	studentToken := app.getToken(t, student)
	adminToken := app.getToken(t, admin)

	app.run(t, []httpTest{
		{name: "student cannot change roles", method: http.MethodPut, path: "/v1/users/me", token: studentToken,
			body: []byte(`{"roles":["admin"]}`), wantCode: http.StatusForbidden},
		{name: "student cannot use admin route", method: http.MethodPut, path: "/v1/users/" + student.ID, token: studentToken,
			body: []byte(`{"name":"x"}`), wantCode: http.StatusForbidden},
		{name: "admin cannot deactivate themselves", method: http.MethodPut, path: "/v1/users/" + admin.ID, token: adminToken,
			body: []byte(`{"is_active":false}`), wantCode: http.StatusForbidden},
	})

	rec := app.do(http.MethodPut, "/v1/users/me", studentToken, []byte(`{"name":"Esi B. Boateng"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, "Esi B. Boateng", usr.Name)

	rec = app.do(http.MethodPut, "/v1/users/me", studentToken, []byte(`{"city":"Tarkwa","bio":"Mining engineer","date_of_birth":"1996-02-29"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = app.do(http.MethodGet, "/v1/users/me", studentToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &usr)
	assert.Equal(t, "Esi B. Boateng", usr.Name)
	assert.Equal(t, "Tarkwa", usr.City)
	assert.Equal(t, "Mining engineer", usr.Bio)
	assert.Equal(t, user.DefaultCountry, usr.Country)
	assert.Equal(t, "1996-02-29", usr.DateOfBirth.Time.Format("2006-01-02"))

	rec = app.do(http.MethodPut, "/v1/users/me", studentToken, []byte(`{"date_of_birth":"29-02-1996"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"date_of_birth"`)

	rec = app.do(http.MethodPut, "/v1/users/"+student.ID, adminToken, []byte(`{"roles":["student","instructor"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &usr)
	assert.ElementsMatch(t, []string{user.RoleStudent, user.RoleInstructor}, []string(usr.Roles))

	rec = app.do(http.MethodPut, "/v1/users/"+student.ID, adminToken, []byte(`{"is_active":false}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// deactivated users lose access even with a valid token
	rec = app.do(http.MethodGet, "/v1/users/me", studentToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_userApi_tokenRefresh(t *testing.T) {
	app := newTestApp(t)
	student := testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", "", []string{user.RoleStudent}, true)

	rec := app.do(http.MethodPost, "/v1/users/token-refresh", app.getToken(t, student))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	rec = app.do(http.MethodPost, "/v1/users/token-refresh", "not.a.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_userApi_passwordReset(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.users, "Esi Boateng", "esiboat", "esi@campus.test", strongPwd, []string{user.RoleStudent}, true)

	for _, email := range []string{"unknown@campus.test", "ESI@campus.test"} {
		rec := app.do(http.MethodPost, "/v1/users/password-reset", "", []byte(`{"email":"`+email+`"}`))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	sent := app.email.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "esi@campus.test", sent[0].To[0].Address)

	rec := app.do(http.MethodPost, "/v1/users/password-reset-confirm", "", []byte(
		`{"uid":"bG9s","token":"abc-def","password":"`+strongPwd+`!","password_confirm":"`+strongPwd+`!"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token"`)
}
