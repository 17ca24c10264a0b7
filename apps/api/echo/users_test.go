package echoapi_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/tests"
)

var (
	errNotAuthenticated = httpErr{Error: "user not authenticated"}
	errForbidden        = httpErr{Error: "permission denied"}
)

func TestHome(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Darasa API!", rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	app := newTestApp(t)

	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false)
	student := testutil.CreateUser(t, app.db, "Student", "student@darasa.test", user.RoleStudent, false)
	blocked := testutil.CreateUser(t, app.db, "Blocked", "blocked@darasa.test", user.RoleAdmin, true)
	ghost := user.User{ID: "ghost", Email: "ghost@darasa.test", Role: user.RoleAdmin}

	sign := func(claims *Claims, secret ...string) string {
		s := app.conf.Server.JWTSecret
		if len(secret) > 0 {
			s = secret[0]
		}
		token, err := GenerateToken(s, claims)
		require.NoError(t, err)
		return token
	}
	expired := NewClaims(admin, testIssuer, time.Hour)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	// claims say ADMIN, storage says STUDENT
	stale := NewClaims(student, testIssuer, time.Hour)
	stale.Role = user.RoleAdmin.String()

	tests := []httpTest{
		{name: "no token", path: "/api/admin/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{name: "garbage token", path: "/api/admin/users", token: "lol", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{
			name: "bad signature", path: "/api/admin/users", token: sign(NewClaims(admin, testIssuer, time.Hour), "other"),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated),
		},
		{
			name: "bad issuer", path: "/api/admin/users", token: sign(NewClaims(admin, "https://evil.test", time.Hour)),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated),
		},
		{name: "expired", path: "/api/admin/users", token: sign(expired), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)},
		{
			name: "unknown user", path: "/api/admin/users", token: app.token(t, ghost),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated),
		},
		{name: "blocked user", path: "/api/admin/users", token: app.token(t, blocked), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "student", path: "/api/admin/users", token: app.token(t, student), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "stale role claim", path: "/api/admin/users", token: sign(stale), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "admin", path: "/api/admin/users", token: app.token(t, admin), wantCode: http.StatusOK},
		{name: "me", path: "/api/me", token: app.token(t, student), wantCode: http.StatusOK, wantData: marchallObj(t, student.Summary())},
		{name: "public", path: "/api/courses", wantCode: http.StatusOK, wantData: []byte("[]")},
	}
	runHttpTests(t, app, tests)

	t.Run("non-bearer scheme", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/me", "")
		req.Header.Set("Authorization", "Basic YWRtaW46YWRtaW4=")
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUserAPI_query(t *testing.T) {
	app := newTestApp(t)

	now := time.Now().UTC().Truncate(time.Second)
	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false, now.Add(-3*time.Hour))
	jane := testutil.CreateUser(t, app.db, "Jane Doe", "jane@darasa.test", user.RoleStudent, false, now.Add(-2*time.Hour))
	john := testutil.CreateUser(t, app.db, "John", "john@darasa.test", user.RoleStudent, true, now.Add(-time.Hour))
	token := app.token(t, admin)

	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/api/admin/users?" + v.Encode()
	}

	tests := []struct {
		name string
		path string
		want []user.User
	}{
		{name: "all (newest first)", path: path(), want: []user.User{john, jane, admin}},
		{name: "ordering", path: path("ordering", "name"), want: []user.User{admin, jane, john}},
		{name: "search", path: path("search", "DOE"), want: []user.User{jane}},
		{name: "search (unknown)", path: path("search", "lol"), want: []user.User{}},
		{name: "role", path: path("role", "student"), want: []user.User{john, jane}},
		{name: "roles", path: path("role", "student", "role", "admin"), want: []user.User{john, jane, admin}},
		{name: "blocked", path: path("blocked", "true"), want: []user.User{john}},
		{name: "not blocked", path: path("blocked", "false", "ordering", "created_at"), want: []user.User{admin, jane}},
		{name: "created_from", path: path("created_from", now.Add(-90*time.Minute).Format(time.RFC3339)), want: []user.User{john}},
		{name: "bad filter", path: path("blocked", "maybe"), want: []user.User{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, tt.path, token)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var got []user.User
			unmarchallObj(t, rec, &got)
			gotIDs := make([]string, 0, len(got))
			for _, u := range got {
				gotIDs = append(gotIDs, u.ID)
			}
			wantIDs := make([]string, 0, len(tt.want))
			for _, u := range tt.want {
				wantIDs = append(wantIDs, u.ID)
			}
			assert.Equal(t, wantIDs, gotIDs)
		})
	}
}

func TestUserAPI_setBlocked(t *testing.T) {
	app := newTestApp(t)

	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false)
	student := testutil.CreateUser(t, app.db, "Student", "student@darasa.test", user.RoleStudent, false)
	token := app.token(t, admin)

	path := func(id string) string { return "/api/admin/users/" + id + "/block" }
	blockedSummary := student.Summary()
	blockedSummary.Blocked = true

	tests := []httpTest{
		{
			name: "self-block", method: http.MethodPatch, path: path(admin.ID), token: token,
			body:     []byte(`{"blocked": true}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "you cannot block your own account"}),
		},
		{
			name: "missing flag", method: http.MethodPatch, path: path(student.ID), token: token,
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"blocked": "this field is required"}`),
		},
		{
			name: "unknown user", method: http.MethodPatch, path: path("8f14e45f-ceea-467f-a0e6-2f2a5f5e5b1c"), token: token,
			body:     []byte(`{"blocked": true}`),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name: "block", method: http.MethodPatch, path: path(student.ID), token: token,
			body:     []byte(`{"blocked": true}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, blockedSummary),
		},
		{
			name: "blocked student is locked out", path: "/api/me", token: app.token(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "self-unblock is allowed", method: http.MethodPatch, path: path(admin.ID), token: token,
			body:     []byte(`{"blocked": false}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, admin.Summary()),
		},
		{
			name: "unblock", method: http.MethodPatch, path: path(student.ID), token: token,
			body:     []byte(`{"blocked": false}`),
			wantCode: http.StatusOK, wantData: marchallObj(t, student.Summary()),
		},
	}
	runHttpTests(t, app, tests)

	// a rejected self-block leaves the flag untouched
	var stored user.User
	require.NoError(t, app.db.Gorm.First(&stored, "id = ?", admin.ID).Error)
	assert.False(t, stored.Blocked)
}

func TestUserAPI_ensure(t *testing.T) {
	app := newTestApp(t)
	admin := testutil.CreateUser(t, app.db, "Admin", "admin@darasa.test", user.RoleAdmin, false)
	token := app.token(t, admin)

	rec := app.do(http.MethodPost, "/api/admin/users", token, []byte(`{"name": "Jane", "email": "JANE@darasa.test", "role": "student"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created user.User
	unmarchallObj(t, rec, &created)
	assert.Equal(t, "jane@darasa.test", created.Email)
	assert.Equal(t, user.RoleStudent, created.Role)

	rec = app.do(http.MethodPost, "/api/admin/users", token, []byte(`{"name": "Jane D", "email": "jane@darasa.test", "role": "ADMIN"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var updated user.User
	unmarchallObj(t, rec, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, user.RoleAdmin, updated.Role)

	rec = app.do(http.MethodPost, "/api/admin/users", token, []byte(`{"name": "Jane", "email": "nope", "role": "tutor"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
