package protocol

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindPublic  MessageKind = "public"
	KindPrivate MessageKind = "private"
)

// BodyCase identifies the single active variant of a message body.
type BodyCase string

const (
	BodyText  BodyCase = "text"
	BodyImage BodyCase = "image"
	BodyAudio BodyCase = "audio"
)

// MessageBody is a tagged variant: exactly one of the fields may be set.
// Case reports which one, and rejects bodies that set none or several.
type MessageBody struct {
	Text     string `json:"text,omitempty" bson:"text,omitempty"`
	ImageRef string `json:"imageRef,omitempty" bson:"imageRef,omitempty"`
	AudioRef string `json:"audioRef,omitempty" bson:"audioRef,omitempty"`
}

func (b MessageBody) Case() (BodyCase, bool) {
	var (
		active BodyCase
		count  int
	)
	if strings.TrimSpace(b.Text) != "" {
		active, count = BodyText, count+1
	}
	if b.ImageRef != "" {
		active, count = BodyImage, count+1
	}
	if b.AudioRef != "" {
		active, count = BodyAudio, count+1
	}
	if count != 1 {
		return "", false
	}
	return active, true
}

// Message is immutable once persisted; the core only routes it.
type Message struct {
	ID         string      `json:"id" bson:"_id"`
	Kind       MessageKind `json:"kind" bson:"kind"`
	OwnerID    string      `json:"ownerId" bson:"ownerId"`
	ReceiverID string      `json:"receiverId,omitempty" bson:"receiverId,omitempty"`
	Body       MessageBody `json:"body" bson:"body"`
	CreatedAt  time.Time   `json:"createdAt" bson:"createdAt"`
}
