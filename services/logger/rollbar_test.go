package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := &core.Config{Debug: true, Env: "TEST"}
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), conf)
	logger.Enable(conf.RollbarEnabled())

	usr := user.User{ID: "u-1", Name: "Ada", Email: "ada@test.test"}
	logger.Warn("sending email", errors.New("smtp down"), usr)

	out := buf.String()
	assert.Contains(t, out, "WARN: sending email")
	assert.Contains(t, out, "smtp down")
	assert.NotContains(t, out, "ada@test.test")

	args := logger.prepare("msg", []interface{}{usr, map[string]interface{}{"k": 1}})
	assert.Equal(t, []interface{}{"msg", map[string]interface{}{"k": 1}}, args)
}
