package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/server"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// pollInterval bounds how long the serve loop holds the exchange lock, so
// shell commands get a turn.
const pollInterval = 200 * time.Millisecond

// serve answers client datagrams until ctx is cancelled. While no client
// is associated the loop waits for the first datagram.
func serve(ctx context.Context, srv *server.Server, peer transport.Peer, logger *slog.Logger) {
	for ctx.Err() == nil {
		if peer.State() == transport.StateFakeClosed {
			sleep(ctx, pollInterval)
			continue
		}
		if peer.RemoteAddr() == nil {
			if err := peer.Listen(pollInterval); err != nil {
				if !transport.IsTimeout(err) {
					logger.Warn("listen failed", "error", err)
					sleep(ctx, pollInterval)
				}
				continue
			}
			logger.Info("client associated", "remote", peer.RemoteAddr())
		}

		h, err := srv.ServeOne(pollInterval)
		switch {
		case err == nil:
		case transport.IsTimeout(err):
			continue
		case errors.Is(err, transport.ErrClosed):
			return
		default:
			logger.Warn("serve failed", "error", err)
			sleep(ctx, pollInterval)
			continue
		}
		if h != nil && h.Message != nil {
			logger.Debug("handled", "kind", h.Message.Kind, "replayed", h.Replayed)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
