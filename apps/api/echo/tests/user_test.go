package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/user"
)

func Test_home(t *testing.T) {
	f := setup(t)
	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func Test_userApi_me(t *testing.T) {
	f := setup(t)
	conf := f.app.Conf

	expired := GetUserClaims(conf, f.users.teacher)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(conf, expired)
	require.NoError(t, err)

	otherConf := *conf
	otherConf.SecretKey = "not-the-secret"

	unknown := user.User{ID: "00000000-0000-0000-0000-000000000000", Username: "ghost"}

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Expired token", path: "/v1/users/me", token: expiredToken,
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Foreign signature", path: "/v1/users/me", token: getToken(t, &otherConf, f.users.teacher),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "Unknown user", path: "/v1/users/me", token: getToken(t, conf, unknown),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "user not authenticated"}),
		},
		{
			name: "Deactivated account", path: "/v1/users/me", token: getToken(t, conf, f.users.inactive),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "OK", path: "/v1/users/me", token: getToken(t, conf, f.users.teacher),
			wantCode: http.StatusOK, wantData: marshalObj(t, f.users.teacher),
		},
	}
	f.run(t, tests)
}

func Test_userApi_adminEndpoints(t *testing.T) {
	f := setup(t)
	conf := f.app.Conf
	adminToken := getToken(t, conf, f.users.admin)

	all, err := f.app.Users.QueryAll(context.Background())
	require.NoError(t, err)
	allUsers := make([]interface{}, 0, len(all))
	for _, u := range all {
		allUsers = append(allUsers, u)
	}

	tests := []httpTest{
		{name: "List: auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "List: admin required", path: "/v1/users", token: getToken(t, conf, f.users.head),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "List", path: "/v1/users", token: adminToken, wantCode: http.StatusOK, wantData: marshalList(t, allUsers...)},
		{
			name: "Roles", path: "/v1/users/roles", token: getToken(t, conf, f.users.student),
			wantCode: http.StatusOK, wantData: marshalObj(t, user.Roles),
		},
		{
			name: "Create: invalid", method: http.MethodPost, path: "/v1/users", token: adminToken,
			body:     []byte(`{"name": "", "username": "x!", "email": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"name":     "this field is required",
				"username": "username must be at least 3 characters in length",
				"email":    "email must be a valid email address",
			}),
		},
		{
			name: "Create: cannot grant higher roles", method: http.MethodPost, path: "/v1/users", token: adminToken,
			body:     []byte(`{"name": "Olga Owner", "username": "olga", "roles": ["admin:owner"]}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "Create: username taken", method: http.MethodPost, path: "/v1/users", token: adminToken,
			body:     []byte(`{"name": "Tom Two", "username": "Teacher"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
	}
	f.run(t, tests)

	t.Run("Create", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/users", adminToken, []byte(`{"name": " Nina New ", "username": "Nina", "email": "NINA@test.cd", "roles": ["teacher:"]}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "Nina New", usr.Name)
		assert.Equal(t, "nina", usr.Username)
		assert.Equal(t, "nina@test.cd", usr.Email)
		assert.True(t, usr.IsActive)
		assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
	})
}
