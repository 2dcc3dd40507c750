package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_RunsHooksInOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), time.Second)

	var order []string
	sm.Register("cron", func(context.Context) error {
		order = append(order, "cron")
		return nil
	})
	sm.Register("redis", func(context.Context) error {
		order = append(order, "redis")
		return nil
	})

	assert.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"cron", "redis"}, order)
}

func TestShutdownManager_JoinsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), time.Second)
	errDB := errors.New("db close failed")

	ran := false
	sm.Register("db", func(context.Context) error { return errDB })
	sm.Register("otel", func(context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown(context.Background())
	assert.ErrorIs(t, err, errDB)
	assert.True(t, ran, "later hooks still run after a failure")
}

func TestShutdownManager_UnstartedServer(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewLogger(ErrorLevel, &bytes.Buffer{}), 0, srv)

	assert.NoError(t, sm.Shutdown(context.Background()))
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "purge job")
		panic("nil map")
	}()

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "purge job")
	assert.EqualError(t, PanicError("x"), "panic: x")
	assert.NoError(t, PanicError(nil))
}
