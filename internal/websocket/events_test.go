package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"relaychat/server/internal/models"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    InboundFrame
		wantErr error
	}{
		{
			name:  "heartbeat",
			input: `{"msg_type":"heartbeat"}`,
			want:  HeartbeatFrame{},
		},
		{
			name:  "heartbeat with version",
			input: `{"v":1,"msg_type":"heartbeat"}`,
			want:  HeartbeatFrame{},
		},
		{
			name:  "read",
			input: `{"msg_type":"read","from_id":7,"message_ids":[3,4]}`,
			want:  ReadFrame{FromID: 7, MessageIDs: []int64{3, 4}},
		},
		{
			name:  "read without ids",
			input: `{"msg_type":"read","from_id":7}`,
			want:  ReadFrame{FromID: 7, MessageIDs: []int64{}},
		},
		{
			name:    "read without sender",
			input:   `{"msg_type":"read","message_ids":[1]}`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:  "send without msg_type",
			input: `{"to_id":2,"content":"hi"}`,
			want:  SendFrame{ToID: 2, Content: "hi"},
		},
		{
			name:  "send typed as mixed",
			input: `{"msg_type":"mixed","to_id":2,"content":"look","image_url":"u.png","image_name":"u"}`,
			want:  SendFrame{ToID: 2, Content: "look", ImageURL: "u.png", ImageName: "u"},
		},
		{
			name:    "unknown type",
			input:   `{"msg_type":"typing"}`,
			wantErr: ErrUnknownFrame,
		},
		{
			name:    "unsupported version",
			input:   `{"v":2,"msg_type":"heartbeat"}`,
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: ErrMalformedFrame,
		},
		{
			name:    "wrong field type",
			input:   `{"to_id":"two","content":"hi"}`,
			wantErr: ErrMalformedFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseInbound() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInbound() error = %v", err)
			}

			switch want := tt.want.(type) {
			case ReadFrame:
				rf, ok := got.(ReadFrame)
				if !ok || rf.FromID != want.FromID || len(rf.MessageIDs) != len(want.MessageIDs) {
					t.Fatalf("ParseInbound() = %#v, want %#v", got, want)
				}
				if rf.MessageIDs == nil {
					t.Fatal("MessageIDs is nil, want empty slice")
				}
			default:
				if got != tt.want {
					t.Fatalf("ParseInbound() = %#v, want %#v", got, tt.want)
				}
			}
		})
	}
}

func TestNewErrorEventCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{errors.Join(ErrMalformedFrame, errors.New("bad json")), CodeMalformedFrame},
		{ErrUnknownFrame, CodeUnknownFrame},
		{ErrUnsupportedVersion, CodeUnsupportedVersion},
		{models.ErrEmptyMessage, CodeInvalidMessage},
		{models.ErrMissingRecipient, CodeInvalidMessage},
		{fmt.Errorf("persist: %w", context.DeadlineExceeded), CodeStoreTimeout},
		{errors.New("connection refused"), CodeStoreFailure},
	}

	for _, tt := range tests {
		event := NewErrorEvent(tt.err)
		if event.Code != tt.code {
			t.Errorf("NewErrorEvent(%v).Code = %q, want %q", tt.err, event.Code, tt.code)
		}
		if event.MsgType != FrameError {
			t.Errorf("NewErrorEvent(%v).MsgType = %q", tt.err, event.MsgType)
		}
	}

	// storage details stay server side
	event := NewErrorEvent(errors.New("pq: password authentication failed"))
	if event.Message != "storage failure" {
		t.Errorf("store failure message = %q", event.Message)
	}
}

func TestEncodeDeliveryIsFlatMessage(t *testing.T) {
	content := "hi"
	msg := models.Message{
		ID:        10,
		FromID:    1,
		ToID:      2,
		Content:   &content,
		Type:      models.MessageText,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := Encode(DeliveryEvent{Message: msg})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if frame["msg_type"] != "text" {
		t.Errorf("msg_type = %v, want text", frame["msg_type"])
	}
	if frame["id"] != float64(10) || frame["from_id"] != float64(1) || frame["to_id"] != float64(2) {
		t.Errorf("ids = %v/%v/%v", frame["id"], frame["from_id"], frame["to_id"])
	}
	if frame["content"] != "hi" {
		t.Errorf("content = %v", frame["content"])
	}
	if v, ok := frame["image_url"]; !ok || v != nil {
		t.Errorf("image_url = %v, %v; want present and null", v, ok)
	}
	if frame["is_read"] != false {
		t.Errorf("is_read = %v", frame["is_read"])
	}
}

func TestEncodeReadReceiptNeverNullIDs(t *testing.T) {
	data, err := Encode(NewReadReceipt(2, 1, nil, 0))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	ids, ok := frame["message_ids"].([]any)
	if !ok || len(ids) != 0 {
		t.Fatalf("message_ids = %v, want []", frame["message_ids"])
	}
	if frame["from_id"] != float64(2) || frame["to_id"] != float64(1) {
		t.Errorf("from_id/to_id = %v/%v, want 2/1", frame["from_id"], frame["to_id"])
	}
}

func TestNewUserStatus(t *testing.T) {
	at := time.Now().UTC()
	if got := NewUserStatus(3, true, at); got.Status != StatusOnline || got.UserID != 3 || got.MsgType != FrameUserStatus {
		t.Errorf("NewUserStatus(online) = %+v", got)
	}
	if got := NewUserStatus(3, false, at); got.Status != StatusOffline {
		t.Errorf("NewUserStatus(offline).Status = %q", got.Status)
	}
}
