package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Thread statuses.
const (
	ThreadPending  = "pending"
	ThreadAccepted = "accepted"
	ThreadDeclined = "declined"
)

// Thread is a conversation between a seeker and a lister about one listing.
type Thread struct {
	ID            uuid.UUID `json:"id"`
	ListingID     uuid.UUID `json:"listing_id"`
	SeekerID      uuid.UUID `json:"seeker_id"`
	ListerID      uuid.UUID `json:"lister_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// HasParticipant reports whether the user is the seeker or the lister.
func (t Thread) HasParticipant(userID uuid.UUID) bool {
	return t.SeekerID == userID || t.ListerID == userID
}

// Message is an append-only entry of a thread.
type Message struct {
	ID        uuid.UUID `json:"id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageQuery selects one page of a thread. With no cursor the page holds the newest
// messages; Before pages back through older ones and After follows newer ones. Messages
// are ordered by (created_at, id) and a cursor is the id of a message in the thread.
type MessageQuery struct {
	Before uuid.UUID
	After  uuid.UUID
	Limit  int
}

// MessagePage is one page of a thread in creation order.
type MessagePage struct {
	Messages []Message `json:"messages"`
	// HasMore is set when messages exist past the page in the paging direction.
	HasMore bool `json:"has_more"`
}
