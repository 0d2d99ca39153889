package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"relaychat/server/internal/models"
	"relaychat/server/internal/store"
)

func TestRouteClassifiesMessages(t *testing.T) {
	tests := []struct {
		name string
		req  SendFrame
		want models.MessageType
	}{
		{"text", SendFrame{ToID: 2, Content: "hi"}, models.MessageText},
		{"image", SendFrame{ToID: 2, ImageURL: "/u/a.png", ImageName: "a.png"}, models.MessageImage},
		{"mixed", SendFrame{ToID: 2, Content: "look", ImageURL: "/u/a.png"}, models.MessageMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			r := NewMessageRouter(st, NewRegistry(), time.Second)

			result, err := r.Route(context.Background(), 1, tt.req)
			if err != nil {
				t.Fatalf("Route: %v", err)
			}
			if result.Message.Type != tt.want {
				t.Errorf("Type = %q, want %q", result.Message.Type, tt.want)
			}
			if result.Message.ID <= 0 {
				t.Errorf("ID = %d, want assigned", result.Message.ID)
			}
			if result.Message.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestRouteRejectsInvalidWithoutPersisting(t *testing.T) {
	tests := []struct {
		name    string
		req     SendFrame
		wantErr error
	}{
		{"empty body", SendFrame{ToID: 2}, models.ErrEmptyMessage},
		{"blank content", SendFrame{ToID: 2, Content: "   "}, models.ErrEmptyMessage},
		{"no recipient", SendFrame{Content: "hi"}, models.ErrMissingRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			r := NewMessageRouter(st, NewRegistry(), time.Second)

			if _, err := r.Route(context.Background(), 1, tt.req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Route() error = %v, want %v", err, tt.wantErr)
			}

			history, err := st.History(context.Background(), 1, 2, 20, 0)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(history) != 0 {
				t.Fatalf("invalid message was persisted: %v", history)
			}
		})
	}
}

func TestRouteDeliversToOnlineRecipient(t *testing.T) {
	st := store.NewMemory()
	registry := NewRegistry()
	recipient, _ := newTestClient(2)
	registry.Register(recipient)
	r := NewMessageRouter(st, registry, time.Second)

	result, err := r.Route(context.Background(), 1, SendFrame{ToID: 2, Content: "hi"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !result.Delivered {
		t.Fatal("Delivered = false for an online recipient")
	}

	frame := nextQueued(t, recipient)
	if frame["msg_type"] != "text" || frame["content"] != "hi" {
		t.Fatalf("delivery frame = %v", frame)
	}
	if number(t, frame, "from_id") != 1 || number(t, frame, "id") != result.Message.ID {
		t.Fatalf("delivery frame = %v, want from_id 1 and id %d", frame, result.Message.ID)
	}
}

func TestRouteOfflineRecipientOnlyPersists(t *testing.T) {
	st := store.NewMemory()
	registry := NewRegistry()
	bystander, _ := newTestClient(3)
	registry.Register(bystander)
	r := NewMessageRouter(st, registry, time.Second)

	result, err := r.Route(context.Background(), 1, SendFrame{ToID: 2, Content: "later"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Delivered {
		t.Fatal("Delivered = true for an offline recipient")
	}
	assertNothingQueued(t, bystander)

	unread, err := st.Unread(context.Background(), 2)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != result.Message.ID {
		t.Fatalf("Unread = %v, want the routed message", unread)
	}
}

func TestRouteClosedRecipientStillPersists(t *testing.T) {
	st := store.NewMemory()
	registry := NewRegistry()
	recipient, _ := newTestClient(2)
	registry.Register(recipient)
	recipient.Close()
	r := NewMessageRouter(st, registry, time.Second)

	result, err := r.Route(context.Background(), 1, SendFrame{ToID: 2, Content: "hi"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Delivered {
		t.Fatal("Delivered = true for a closed session")
	}
	if result.Message.ID == 0 {
		t.Fatal("message not persisted")
	}
}

func TestRouteStoreErrors(t *testing.T) {
	failing := &faultyStore{Memory: store.NewMemory(), err: errors.New("disk full")}
	r := NewMessageRouter(failing, NewRegistry(), time.Second)
	_, err := r.Route(context.Background(), 1, SendFrame{ToID: 2, Content: "hi"})
	if err == nil {
		t.Fatal("Route() with failing store returned nil error")
	}
	if code := NewErrorEvent(err).Code; code != CodeStoreFailure {
		t.Errorf("error code = %q, want %q", code, CodeStoreFailure)
	}

	stuck := &faultyStore{Memory: store.NewMemory(), block: true}
	registry := NewRegistry()
	recipient, _ := newTestClient(2)
	registry.Register(recipient)
	r = NewMessageRouter(stuck, registry, 20*time.Millisecond)

	_, err = r.Route(context.Background(), 1, SendFrame{ToID: 2, Content: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Route() error = %v, want deadline exceeded", err)
	}
	if code := NewErrorEvent(err).Code; code != CodeStoreTimeout {
		t.Errorf("error code = %q, want %q", code, CodeStoreTimeout)
	}
	assertNothingQueued(t, recipient)
}
