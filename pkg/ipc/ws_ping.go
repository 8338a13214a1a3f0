package ipc

import (
	"context"
	"time"
)

const (
	wsPingInterval = 20 * time.Second
	wsPingTimeout  = 5 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

// startWSPing pings conn every wsPingInterval until ctx ends. A ping that
// fails or times out calls onDead once and stops the loop.
func startWSPing(ctx context.Context, conn pinger, onDead func()) {
	startPingLoop(ctx, conn, wsPingInterval, onDead)
}

func startPingLoop(ctx context.Context, conn pinger, interval time.Duration, onDead func()) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, wsPingTimeout)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil && ctx.Err() == nil {
					if onDead != nil {
						onDead()
					}
					return
				}
			}
		}
	}()
}
