package monitoring

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestUseLogrus(t *testing.T) {
	original := Logf
	originalBase := base
	defer func() {
		Logf = original
		base = originalBase
	}()

	l, err := UseLogrus("debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	var buf bytes.Buffer
	l.SetOutput(&buf)
	Logf("armed %d", 3)
	Entry(logrus.Fields{"trial": 7}).Info("classified")

	assert.Contains(t, buf.String(), "armed 3")
	assert.Contains(t, buf.String(), "trial=7")
}

func TestUseLogrusRejectsUnknownLevel(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	_, err := UseLogrus("chatty")
	assert.Error(t, err)
}

func TestSetupTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "glitchctl", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
