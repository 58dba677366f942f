package dig_container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/workflow"
)

func TestNew(t *testing.T) {
	t.Setenv("ENV", "TEST")
	t.Setenv("TEST_DATABASE_ENGINE", "inmem")

	c := New()
	err := c.Invoke(func(conf *core.Config, db core.DB, metrics core.Metrics, wfSvc workflow.Service, server *echoapi.Server) {
		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.NotNil(t, metrics)
		assert.NotNil(t, db)

		defs, err := wfSvc.ActiveDefinitions(context.Background())
		require.NoError(t, err)
		assert.Len(t, defs, len(workflow.EntityTypes))

		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
	})
	require.NoError(t, err)
}
