package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncRecorder struct {
	bytes.Buffer
	synced bool
}

func (s *syncRecorder) Sync() error {
	s.synced = true
	return nil
}

func TestExitOnErrorSyncsBeforeExit(t *testing.T) {
	out := &syncRecorder{}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), out, zap.InfoLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	code := -1
	exitOnError(errors.New("rpc down"), func(c int) {
		assert.True(t, out.synced, "logs must be flushed before exit")
		code = c
	})

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "rpc down")
}

func TestExitOnErrorNil(t *testing.T) {
	called := false
	exitOnError(nil, func(int) { called = true })
	assert.False(t, called)
}
