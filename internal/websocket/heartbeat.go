package websocket

import (
	"context"
	"time"
)

// HeartbeatMonitor pushes heartbeat_response frames to one session on a fixed
// period so intermediaries keep the connection open. It never closes the
// session itself.
type HeartbeatMonitor struct {
	client   *Client
	interval time.Duration
	now      func() time.Time
}

// NewHeartbeatMonitor creates a monitor for c.
func NewHeartbeatMonitor(c *Client, interval time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HeartbeatMonitor{client: c, interval: interval, now: time.Now}
}

// Run ticks until ctx is cancelled or the session closes.
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.client.Done():
			return
		case <-ticker.C:
			if err := m.client.Send(NewHeartbeatResponse(m.now().UTC())); err != nil {
				return
			}
		}
	}
}
