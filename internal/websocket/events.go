package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"relaychat/server/internal/models"
)

// ProtocolVersion is the only frame version this server speaks. Frames that
// omit "v" are treated as this version.
const ProtocolVersion = 1

// FrameType is the msg_type discriminator of a frame.
type FrameType string

const (
	// Inbound
	FrameHeartbeat FrameType = "heartbeat"
	FrameRead      FrameType = "read"

	// Outbound
	FrameUserStatus        FrameType = "user_status"
	FrameHeartbeatResponse FrameType = "heartbeat_response"
	FrameReadReceipt       FrameType = "read_receipt"
	FrameMessageAck        FrameType = "message_ack"
	FrameError             FrameType = "error"
)

// Presence states carried by user_status frames.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnknownFrame       = errors.New("unknown frame type")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

// InboundFrame is one of HeartbeatFrame, ReadFrame or SendFrame.
type InboundFrame interface {
	inboundFrame()
}

// HeartbeatFrame is a client liveness signal.
type HeartbeatFrame struct{}

// ReadFrame asks to mark messages from FromID as read.
type ReadFrame struct {
	FromID     int64
	MessageIDs []int64
}

// SendFrame is a chat message send request. Blank fields are absent.
type SendFrame struct {
	ToID      int64
	Content   string
	ImageURL  string
	ImageName string
}

func (HeartbeatFrame) inboundFrame() {}
func (ReadFrame) inboundFrame()      {}
func (SendFrame) inboundFrame()      {}

type rawInbound struct {
	Version    *int    `json:"v"`
	MsgType    string  `json:"msg_type"`
	ToID       int64   `json:"to_id"`
	Content    *string `json:"content"`
	ImageURL   *string `json:"image_url"`
	ImageName  *string `json:"image_name"`
	FromID     int64   `json:"from_id"`
	MessageIDs []int64 `json:"message_ids"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ParseInbound decodes a client frame. A missing msg_type, or one naming a
// message type, is a send request; the body is classified later from its fields.
func ParseInbound(data []byte) (InboundFrame, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Join(ErrMalformedFrame, err)
	}

	if raw.Version != nil && *raw.Version != ProtocolVersion {
		return nil, ErrUnsupportedVersion
	}

	switch FrameType(raw.MsgType) {
	case FrameHeartbeat:
		return HeartbeatFrame{}, nil

	case FrameRead:
		if raw.FromID <= 0 {
			return nil, errors.Join(ErrMalformedFrame, errors.New("from_id is required"))
		}
		ids := raw.MessageIDs
		if ids == nil {
			ids = []int64{}
		}
		return ReadFrame{FromID: raw.FromID, MessageIDs: ids}, nil

	case "", FrameType(models.MessageText), FrameType(models.MessageImage), FrameType(models.MessageMixed):
		return SendFrame{
			ToID:      raw.ToID,
			Content:   deref(raw.Content),
			ImageURL:  deref(raw.ImageURL),
			ImageName: deref(raw.ImageName),
		}, nil

	default:
		return nil, ErrUnknownFrame
	}
}

// OutboundFrame is any frame the server pushes to a client.
type OutboundFrame interface {
	outboundFrame()
}

// UserStatusEvent announces a friend's online/offline transition.
type UserStatusEvent struct {
	MsgType   FrameType `json:"msg_type"`
	UserID    int64     `json:"user_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatResponseEvent is the periodic server keepalive.
type HeartbeatResponseEvent struct {
	MsgType   FrameType `json:"msg_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadReceiptEvent tells the original sender that FromID read their messages.
type ReadReceiptEvent struct {
	MsgType    FrameType `json:"msg_type"`
	FromID     int64     `json:"from_id"`
	ToID       int64     `json:"to_id"`
	MessageIDs []int64   `json:"message_ids"`
	Updated    int64     `json:"updated"`
}

// DeliveryEvent pushes a persisted message to its recipient. It has no
// msg_type of its own; msg_type carries the message classification.
type DeliveryEvent struct {
	models.Message
}

// MessageAckEvent confirms to the sender that a message was persisted.
type MessageAckEvent struct {
	MsgType   FrameType `json:"msg_type"`
	ID        int64     `json:"id"`
	ToID      int64     `json:"to_id"`
	CreatedAt time.Time `json:"created_at"`
	Delivered bool      `json:"delivered"`
}

// ErrorEvent reports a rejected inbound frame.
type ErrorEvent struct {
	MsgType FrameType `json:"msg_type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (UserStatusEvent) outboundFrame()        {}
func (HeartbeatResponseEvent) outboundFrame() {}
func (ReadReceiptEvent) outboundFrame()       {}
func (DeliveryEvent) outboundFrame()          {}
func (MessageAckEvent) outboundFrame()        {}
func (ErrorEvent) outboundFrame()             {}

// NewUserStatus builds the presence frame sent to userID's friends.
func NewUserStatus(userID int64, online bool, at time.Time) UserStatusEvent {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return UserStatusEvent{MsgType: FrameUserStatus, UserID: userID, Status: status, Timestamp: at}
}

// NewHeartbeatResponse builds the keep-alive frame stamped with at.
func NewHeartbeatResponse(at time.Time) HeartbeatResponseEvent {
	return HeartbeatResponseEvent{MsgType: FrameHeartbeatResponse, Timestamp: at}
}

// NewReadReceipt tells senderID that readerID read ids. A nil ids encodes as [].
func NewReadReceipt(readerID, senderID int64, ids []int64, updated int64) ReadReceiptEvent {
	if ids == nil {
		ids = []int64{}
	}
	return ReadReceiptEvent{
		MsgType:    FrameReadReceipt,
		FromID:     readerID,
		ToID:       senderID,
		MessageIDs: ids,
		Updated:    updated,
	}
}

// NewMessageAck confirms to the sender that msg was stored, and whether the
// recipient had a live session.
func NewMessageAck(msg models.Message, delivered bool) MessageAckEvent {
	return MessageAckEvent{
		MsgType:   FrameMessageAck,
		ID:        msg.ID,
		ToID:      msg.ToID,
		CreatedAt: msg.CreatedAt,
		Delivered: delivered,
	}
}

// Error codes carried by ErrorEvent.
const (
	CodeMalformedFrame     = "malformed_frame"
	CodeUnknownFrame       = "unknown_frame"
	CodeUnsupportedVersion = "unsupported_version"
	CodeInvalidMessage     = "invalid_message"
	CodeStoreTimeout       = "store_timeout"
	CodeStoreFailure       = "store_failure"
)

// NewErrorEvent maps err onto a client-facing error frame. Storage errors are
// reported by code only.
func NewErrorEvent(err error) ErrorEvent {
	event := ErrorEvent{MsgType: FrameError, Message: err.Error()}

	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		event.Code = CodeUnsupportedVersion
	case errors.Is(err, ErrUnknownFrame):
		event.Code = CodeUnknownFrame
	case errors.Is(err, ErrMalformedFrame):
		event.Code = CodeMalformedFrame
		event.Message = ErrMalformedFrame.Error()
	case errors.Is(err, models.ErrEmptyMessage), errors.Is(err, models.ErrMissingRecipient):
		event.Code = CodeInvalidMessage
	case errors.Is(err, context.DeadlineExceeded):
		event.Code = CodeStoreTimeout
		event.Message = "storage timed out"
	default:
		event.Code = CodeStoreFailure
		event.Message = "storage failure"
	}

	return event
}

// Encode serializes an outbound frame.
func Encode(frame OutboundFrame) ([]byte, error) {
	return json.Marshal(frame)
}
