package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingShutdowner struct {
	called      bool
	ctxErr      error
	hadDeadline bool
}

func (r *recordingShutdowner) Shutdown(ctx context.Context) error {
	r.called = true
	r.ctxErr = ctx.Err()
	_, r.hadDeadline = ctx.Deadline()
	return nil
}

func TestGracefulShutdown_DrainsOnFreshContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := &recordingShutdowner{}
	gracefulShutdown(ctx, srv)

	require.True(t, srv.called)
	assert.NoError(t, srv.ctxErr, "drain context must not arrive already canceled")
	assert.True(t, srv.hadDeadline, "drain must be bounded")
}
