package models

import (
	"errors"
	"strings"
	"time"
)

// MessageType classifies a message by which payload fields it carries.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageMixed MessageType = "mixed"
)

var (
	// ErrEmptyMessage is returned when a message has neither content nor an image.
	ErrEmptyMessage = errors.New("message must carry content or an image")
	// ErrMissingRecipient is returned when a message has no valid recipient id.
	ErrMissingRecipient = errors.New("message recipient is required")
)

// Body is the validated payload of a message. Build it with NewBody; the zero
// value is not a valid body.
type Body struct {
	Type      MessageType
	Content   *string
	ImageURL  *string
	ImageName *string
}

// NewBody validates the raw payload fields and classifies the message.
// Blank strings count as absent.
func NewBody(content, imageURL, imageName string) (Body, error) {
	hasContent := strings.TrimSpace(content) != ""
	hasImage := strings.TrimSpace(imageURL) != ""

	var body Body
	switch {
	case hasContent && hasImage:
		body.Type = MessageMixed
	case hasImage:
		body.Type = MessageImage
	case hasContent:
		body.Type = MessageText
	default:
		return Body{}, ErrEmptyMessage
	}

	if hasContent {
		body.Content = &content
	}
	if hasImage {
		body.ImageURL = &imageURL
		// image_name only means something next to an image
		if imageName != "" {
			body.ImageName = &imageName
		}
	}

	return body, nil
}

// Message represents a persisted direct message.
type Message struct {
	ID        int64       `json:"id" db:"id"`
	FromID    int64       `json:"from_id" db:"from_id"`
	ToID      int64       `json:"to_id" db:"to_id"`
	Content   *string     `json:"content" db:"content"`
	ImageURL  *string     `json:"image_url" db:"image_url"`
	ImageName *string     `json:"image_name" db:"image_name"`
	Type      MessageType `json:"msg_type" db:"msg_type"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	IsRead    bool        `json:"is_read" db:"is_read"`
}

// NewMessage builds an unpersisted message from a validated body.
func NewMessage(fromID, toID int64, body Body, createdAt time.Time) (Message, error) {
	if toID <= 0 {
		return Message{}, ErrMissingRecipient
	}
	if body.Type == "" {
		return Message{}, ErrEmptyMessage
	}

	return Message{
		FromID:    fromID,
		ToID:      toID,
		Content:   body.Content,
		ImageURL:  body.ImageURL,
		ImageName: body.ImageName,
		Type:      body.Type,
		CreatedAt: createdAt,
		IsRead:    false,
	}, nil
}
