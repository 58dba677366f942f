package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/orgunit"
	"github.com/trezcool/academia/tests"
)

func Test_orgUnitApi(t *testing.T) {
	f := setup(t)
	conf := f.app.Conf
	adminToken := getToken(t, conf, f.users.admin)
	teacherToken := getToken(t, conf, f.users.teacher)

	fst := testutil.CreateOrgUnit(t, f.app.OrgUnits, "FST", "Science & Technology", orgunit.TypeFaculty)
	cs := f.orgUnit
	testutil.CreateCourse(t, f.app.Academic, testutil.Caller(f.users.teacher), cs.ID, "CS101")

	tests := []httpTest{
		{name: "List: auth required", path: "/v1/org-units", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "List", path: "/v1/org-units", token: teacherToken, wantCode: http.StatusOK, wantData: marshalList(t, cs, fst)},
		{name: "List: ordering", path: "/v1/org-units?ordering=-code", token: teacherToken, wantCode: http.StatusOK, wantData: marshalList(t, fst, cs)},
		{name: "List: type", path: "/v1/org-units?type=FACULTY", token: teacherToken, wantCode: http.StatusOK, wantData: marshalList(t, fst)},
		{name: "List: search", path: "/v1/org-units?search=comp", token: teacherToken, wantCode: http.StatusOK, wantData: marshalList(t, cs)},
		{name: "List: malformed filter", path: "/v1/org-units", token: teacherToken, body: []byte(`{"type": [1]}`), wantCode: http.StatusBadRequest},
		{name: "Get", path: "/v1/org-units/" + fst.ID, token: teacherToken, wantCode: http.StatusOK, wantData: marshalObj(t, fst)},
		{
			name: "Get: not found", path: "/v1/org-units/unknown", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "org unit not found"}),
		},
		{
			name: "Create: admin required", method: http.MethodPost, path: "/v1/org-units", token: teacherToken,
			body:     []byte(`{"code": "MATH", "name": "Mathematics", "type": "DEPARTMENT"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Create: invalid", method: http.MethodPost, path: "/v1/org-units", token: adminToken,
			body:     []byte(`{"code": "ma th", "name": "Mathematics", "type": "DEPARTMENT"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"code": "only uppercase letters, digits, dashes and underscores are allowed"}),
		},
		{
			name: "Create: duplicate code", method: http.MethodPost, path: "/v1/org-units", token: adminToken,
			body:     []byte(`{"code": "CS", "name": "Computing", "type": "DEPARTMENT"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"code": "an org unit with this code already exists"}),
		},
		{
			name: "Update: own parent", method: http.MethodPatch, path: "/v1/org-units/" + fst.ID, token: adminToken,
			body:     []byte(`{"parent_id": "` + fst.ID + `"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"parent_id": "an org unit cannot be its own parent"}),
		},
		{
			name: "Delete: still referenced", method: http.MethodDelete, path: "/v1/org-units/" + cs.ID, token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "the record is still referenced by other records"}),
		},
	}
	f.run(t, tests)

	t.Run("Create, update and delete", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/org-units", adminToken, []byte(`{"code": "MATH", "name": " Mathematics ", "type": "DEPARTMENT", "parent_id": "`+fst.ID+`"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var math orgunit.OrgUnit
		unmarshal(t, rec, &math)
		assert.Equal(t, "Mathematics", math.Name)
		require.NotNil(t, math.ParentID)
		assert.Equal(t, fst.ID, *math.ParentID)

		rec = f.do(http.MethodPut, "/v1/org-units/"+math.ID, adminToken, []byte(`{"name": "Applied Mathematics"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &math)
		assert.Equal(t, "Applied Mathematics", math.Name)
		assert.Equal(t, "MATH", math.Code)

		rec = f.do(http.MethodDelete, "/v1/org-units/"+math.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = f.do(http.MethodGet, "/v1/org-units/"+math.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
