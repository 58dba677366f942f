package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type users struct {
	admin, principal, head, teacher, student, inactive user.User
}

type fixture struct {
	app     *testutil.App
	server  *Server
	orgUnit orgunit.OrgUnit
	users   users
}

func setup(t *testing.T) fixture {
	app := testutil.NewApp()
	server := NewServer("", nil, &Deps{
		Conf:           app.Conf,
		Logger:         testutil.NopLogger{},
		Validate:       app.Validate,
		Translator:     app.Translator,
		DisableReqLogs: true,
		UserSvc:        app.Users,
		OrgUnitSvc:     app.OrgUnits,
		WorkflowSvc:    app.Workflows,
		HistorySvc:     app.History,
		AcademicSvc:    app.Academic,
	})

	inactive := testutil.CreateUser(t, app.UserRepo, "Ivy Inactive", "inactive", "inactive@test.cd", user.RoleTeacher)
	inactive.IsActive = false
	if _, err := app.UserRepo.UpdateUser(context.Background(), inactive); err != nil {
		t.Fatalf("UpdateUser(): %v", err)
	}

	return fixture{
		app:     app,
		server:  server,
		orgUnit: testutil.CreateOrgUnit(t, app.OrgUnits, "CS", "Computer Science", orgunit.TypeDepartment),
		users: users{
			admin:     testutil.CreateUser(t, app.UserRepo, "Ada Admin", "admin", "admin@test.cd", user.RoleAdmin),
			principal: testutil.CreateUser(t, app.UserRepo, "Paul Principal", "principal", "principal@test.cd", user.RoleAdminPrincipal),
			head:      testutil.CreateUser(t, app.UserRepo, "Hana Head", "head", "head@test.cd", user.RoleTeacherHead),
			teacher:   testutil.CreateUser(t, app.UserRepo, "Tom Teacher", "teacher", "teacher@test.cd", user.RoleTeacher),
			student:   testutil.CreateUser(t, app.UserRepo, "Sam Student", "student", "student@test.cd", user.RoleStudent),
			inactive:  inactive,
		},
	}
}

// do serves the request and returns the recorder.
func (f fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := f.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "academia-tests/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	return marshalObj(t, objs)
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
