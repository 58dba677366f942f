package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "API : ", 0), &core.Config{Env: "TEST", Debug: true})

	usr := user.User{ID: "1", Username: "teacher", Email: "teacher@test.cd"}
	logger.Info("workflow action processed", map[string]interface{}{"action": "approve"}, usr)
	logger.Error("processing action", errors.New("boom"), usr)

	out := buf.String()
	assert.Contains(t, out, "API : INFO: workflow action processed")
	assert.Contains(t, out, "map[action:approve]")
	assert.Contains(t, out, "API : ERROR: processing action")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "teacher@test.cd")
}
