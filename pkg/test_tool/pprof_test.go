package testtool

import (
	"testing"

	"replay_worker/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestStartPprofDisabled(t *testing.T) {
	assert.Nil(t, StartPprof("", logger.NewNop()))
}

func TestStartPprofHandlers(t *testing.T) {
	srv := StartPprof("127.0.0.1:0", logger.NewNop())
	if assert.NotNil(t, srv) {
		assert.NotNil(t, srv.Handler)
		_ = srv.Close()
	}
}
