//go:build unix

package server

import (
	"context"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// TestInterruptShutdown は SIGINT でグレースフルに停止することを確認する
func TestInterruptShutdown(t *testing.T) {
	console := &syncBuffer{}
	srv, err := New(testConfig(t), WithLogger(quietLogger()), WithConsole(console))
	assert.NilError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	select {
	case <-srv.Ready():
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの起動がタイムアウトしました")
	}

	assert.NilError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case err := <-errCh:
		assert.NilError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
	assert.Check(t, is.Contains(console.String(), "Server stopped."))
}
