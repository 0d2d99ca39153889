package websocket

import (
	"context"
	"sync"
	"time"

	"relaychat/server/internal/store"

	"github.com/gofiber/fiber/v2/log"
)

// HubConfig holds the timing knobs of the realtime core.
type HubConfig struct {
	HeartbeatInterval time.Duration
	StoreTimeout      time.Duration
}

// Hub ties the registry, presence, routing and receipts together and runs
// sessions. Connect, disconnect, heartbeat and reaping for one user are
// serialized.
type Hub struct {
	registry *Registry
	presence *PresenceTracker
	router   *MessageRouter
	receipts *ReceiptCoordinator
	locks    *userLocks

	heartbeatInterval time.Duration
	now               func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// NewHub creates a hub over st.
func NewHub(st store.Store, cfg HubConfig) *Hub {
	registry := NewRegistry()

	return &Hub{
		registry:          registry,
		presence:          NewPresenceTracker(st, st, cfg.StoreTimeout),
		router:            NewMessageRouter(st, registry, cfg.StoreTimeout),
		receipts:          NewReceiptCoordinator(st, registry, cfg.StoreTimeout),
		locks:             newUserLocks(),
		heartbeatInterval: cfg.HeartbeatInterval,
		now:               time.Now,
	}
}

// Registry returns the live session table.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence returns the tracker the hub records presence through.
func (h *Hub) Presence() *PresenceTracker { return h.presence }

// Receipts returns the read receipt coordinator.
func (h *Hub) Receipts() *ReceiptCoordinator { return h.receipts }

// Serve runs a session until its connection ends: it registers the client,
// announces it online, starts the heartbeat monitor and write pump, and
// dispatches inbound frames. On exit it stops the monitor and announces the
// user offline unless a newer session has replaced this one. After Shutdown
// the client is closed without being served.
func (h *Hub) Serve(ctx context.Context, c *Client) {
	if !h.track() {
		log.Debugw("session refused during shutdown", "user_id", c.UserID, "session", c.ID)
		c.Close()
		return
	}
	defer h.sessions.Done()

	if !h.connect(ctx, c) {
		log.Debugw("session refused during shutdown", "user_id", c.UserID, "session", c.ID)
		c.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.WritePump()
	}()

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		NewHeartbeatMonitor(c, h.heartbeatInterval).Run(monitorCtx)
	}()

	c.ReadPump(func(data []byte) {
		h.dispatch(ctx, c, data)
	})

	stopMonitor()
	<-monitorDone

	c.Close()
	<-writerDone

	// ctx may already be done; offline must still be recorded
	h.disconnect(context.WithoutCancel(ctx), c)
}

// track counts a new session unless the hub is shutting down.
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.sessions.Add(1)
	return true
}

// register adds c to the registry unless Shutdown has begun, so every
// session Shutdown does not refuse is in its sweep.
func (h *Hub) register(c *Client) (prev *Client, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	return h.registry.Register(c), true
}

func (h *Hub) connect(ctx context.Context, c *Client) bool {
	unlock := h.locks.Lock(c.UserID)
	defer unlock()

	prev, ok := h.register(c)
	if !ok {
		return false
	}
	if prev != nil {
		log.Infow("session superseded", "user_id", c.UserID, "old_session", prev.ID, "new_session", c.ID)
		prev.Close()
	}

	if err := h.presence.SetOnline(ctx, c.UserID); err != nil {
		log.Errorw("failed to update online status", "user_id", c.UserID, "error", err)
	}
	h.broadcastStatus(ctx, c.UserID, true)

	log.Infow("client connected", "user_id", c.UserID, "session", c.ID)
	return true
}

func (h *Hub) disconnect(ctx context.Context, c *Client) {
	unlock := h.locks.Lock(c.UserID)
	defer unlock()

	if !h.registry.Unregister(c) {
		log.Infow("superseded session closed", "user_id", c.UserID, "session", c.ID)
		return
	}

	if err := h.presence.SetOffline(ctx, c.UserID); err != nil {
		log.Errorw("failed to update offline status", "user_id", c.UserID, "error", err)
	}
	h.broadcastStatus(ctx, c.UserID, false)

	log.Infow("client disconnected", "user_id", c.UserID, "session", c.ID)
}

// Heartbeat re-asserts online presence for the session's user. Heartbeats
// from a session that is no longer the live one are ignored.
func (h *Hub) Heartbeat(ctx context.Context, c *Client) error {
	unlock := h.locks.Lock(c.UserID)
	defer unlock()

	if current, ok := h.registry.Lookup(c.UserID); !ok || current != c {
		return nil
	}
	return h.refresh(ctx, c.UserID)
}

// HeartbeatUser re-asserts online presence for userID without a session,
// as the REST heartbeat endpoint does.
func (h *Hub) HeartbeatUser(ctx context.Context, userID int64) error {
	unlock := h.locks.Lock(userID)
	defer unlock()

	return h.refresh(ctx, userID)
}

// refresh stamps userID online. If the user was offline, for instance after
// the reaper flipped them, friends are told they are back. Caller holds the
// user's lock.
func (h *Hub) refresh(ctx context.Context, userID int64) error {
	before, err := h.presence.GetStatus(ctx, userID)
	if err != nil {
		return err
	}
	if err := h.presence.SetOnline(ctx, userID); err != nil {
		return err
	}
	if !before.IsOnline {
		log.Infow("user back online", "user_id", userID)
		h.broadcastStatus(ctx, userID, true)
	}
	return nil
}

func (h *Hub) dispatch(ctx context.Context, c *Client, data []byte) {
	frame, err := ParseInbound(data)
	if err != nil {
		h.reject(c, err)
		return
	}

	switch f := frame.(type) {
	case HeartbeatFrame:
		if err := h.Heartbeat(ctx, c); err != nil {
			h.reject(c, err)
		}

	case ReadFrame:
		if _, err := h.receipts.MarkRead(ctx, c.UserID, f.FromID, f.MessageIDs); err != nil {
			h.reject(c, err)
		}

	case SendFrame:
		result, err := h.router.Route(ctx, c.UserID, f)
		if err != nil {
			h.reject(c, err)
			return
		}
		if err := c.Send(NewMessageAck(result.Message, result.Delivered)); err != nil {
			log.Debugw("message ack dropped", "user_id", c.UserID, "error", err)
		}
	}
}

func (h *Hub) reject(c *Client, err error) {
	event := NewErrorEvent(err)
	switch event.Code {
	case CodeStoreFailure, CodeStoreTimeout:
		log.Errorw("frame failed", "user_id", c.UserID, "code", event.Code, "error", err)
	default:
		log.Debugw("frame rejected", "user_id", c.UserID, "code", event.Code, "error", err)
	}
	if sendErr := c.Send(event); sendErr != nil {
		log.Debugw("error frame dropped", "user_id", c.UserID, "error", sendErr)
	}
}

// broadcastStatus sends userID's presence change to every connected friend.
func (h *Hub) broadcastStatus(ctx context.Context, userID int64, online bool) {
	friends, err := h.presence.FriendIDs(ctx, userID)
	if err != nil {
		log.Errorw("failed to get friends", "user_id", userID, "error", err)
		return
	}

	data, err := Encode(NewUserStatus(userID, online, h.now().UTC()))
	if err != nil {
		log.Errorw("failed to marshal presence message", "error", err)
		return
	}

	for _, friendID := range friends {
		if friend, ok := h.registry.Lookup(friendID); ok {
			if err := friend.enqueue(data); err != nil {
				log.Debugw("failed to send presence to client", "to_id", friendID, "error", err)
			}
		}
	}
}

// Reap flips stale online users offline and tells their friends.
// It returns how many users were flipped. Each flip and its fan-out run
// under the user's lock, and a user who heartbeats or reconnects after
// being listed is left alone.
func (h *Hub) Reap(ctx context.Context, timeout time.Duration) (int, error) {
	candidates, cutoff, err := h.presence.StaleCandidates(ctx, timeout)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, userID := range candidates {
		flipped, err := h.reapUser(ctx, userID, cutoff)
		if err != nil {
			log.Errorw("failed to reap user", "user_id", userID, "error", err)
			continue
		}
		if flipped {
			reaped++
		}
	}
	return reaped, nil
}

func (h *Hub) reapUser(ctx context.Context, userID int64, cutoff time.Time) (bool, error) {
	unlock := h.locks.Lock(userID)
	defer unlock()

	flipped, err := h.presence.ReapUser(ctx, userID, cutoff)
	if err != nil || !flipped {
		return false, err
	}
	h.broadcastStatus(ctx, userID, false)
	return true, nil
}

// RunReaper calls Reap every interval until ctx is done.
func (h *Hub) RunReaper(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.Reap(ctx, timeout)
			if err != nil {
				log.Errorw("presence reaper failed", "error", err)
				continue
			}
			if n > 0 {
				log.Infow("presence reaper flipped stale users offline", "count", n)
			}
		}
	}
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(userID int64) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

// GetOnlineUsers returns a list of currently online user IDs
func (h *Hub) GetOnlineUsers() []int64 {
	return h.registry.UserIDs()
}

// GetOnlineCount returns the number of currently connected clients
func (h *Hub) GetOnlineCount() int {
	return h.registry.Count()
}

// Shutdown closes every session and waits for their cleanup, up to timeout.
// Sessions handed to Serve afterwards are refused.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	clients := h.registry.Clients()
	for _, c := range clients {
		c.Close()
	}
	log.Infof("Closed %d client connections", len(clients))

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
