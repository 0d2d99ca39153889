package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"relaychat/server/internal/models"
	"relaychat/server/internal/store"

	"github.com/gofiber/contrib/websocket"
)

// fakeConn is an in-memory Conn. Tests push inbound frames with deliver and
// read what the server wrote from out.
type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed network connection")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return errors.New("use of closed network connection")
	}
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) deliver(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	f.in <- data
}

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", data, err)
	}
	return frame
}

// expectFrame reads frames written to conn until one has the wanted msg_type.
func expectFrame(t *testing.T, conn *fakeConn, msgType string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-conn.out:
			frame := decodeFrame(t, data)
			if frame["msg_type"] == msgType {
				return frame
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for %q frame", msgType)
			return nil
		}
	}
}

// expectNoFrame fails if conn receives a frame with msgType within wait.
func expectNoFrame(t *testing.T, conn *fakeConn, msgType string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case data := <-conn.out:
			if frame := decodeFrame(t, data); frame["msg_type"] == msgType {
				t.Fatalf("Unexpected %q frame: %v", msgType, frame)
			}
		case <-deadline:
			return
		}
	}
}

// nextQueued pops the next frame queued on c without running a write pump.
func nextQueued(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		return decodeFrame(t, data)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for queued frame")
		return nil
	}
}

func assertNothingQueued(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("Unexpected queued frame: %s", data)
	default:
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func newTestClient(userID int64) (*Client, *fakeConn) {
	conn := newFakeConn()
	return NewClient(userID, conn, ClientOptions{SendBuffer: 16}), conn
}

func befriend(t *testing.T, st store.FriendGraph, a, b int64) {
	t.Helper()
	_, err := st.AddFriendEdge(context.Background(), models.FriendEdge{UserID: a, FriendID: b, Status: models.FriendAccepted})
	if err != nil {
		t.Fatalf("AddFriendEdge: %v", err)
	}
}

func number(t *testing.T, frame map[string]any, key string) int64 {
	t.Helper()
	v, ok := frame[key].(float64)
	if !ok {
		t.Fatalf("frame field %q = %v, want number", key, frame[key])
	}
	return int64(v)
}

// faultyStore wraps Memory and makes message writes fail, either at once
// with err or, when block is set, only once the context gives up.
type faultyStore struct {
	*store.Memory
	err   error
	block bool
}

func (f *faultyStore) fail(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *faultyStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return f.fail(ctx)
}

func (f *faultyStore) MarkRead(ctx context.Context, readerID, peerID int64, ids []int64) (int64, error) {
	return 0, f.fail(ctx)
}

func (f *faultyStore) SetOnline(ctx context.Context, userID int64, at time.Time) error {
	return f.fail(ctx)
}

// staleHookStore wraps Memory and runs afterList once, right after the
// reaper has listed its candidates and before any of them is flipped.
type staleHookStore struct {
	*store.Memory
	afterList func()
}

func (s *staleHookStore) StaleUserIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ids, err := s.Memory.StaleUserIDs(ctx, cutoff)
	if hook := s.afterList; hook != nil {
		s.afterList = nil
		hook()
	}
	return ids, err
}
