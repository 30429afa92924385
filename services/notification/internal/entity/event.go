package entity

import "time"

// Kind discriminates the five notification types.
type Kind string

const (
	KindFriendRequest Kind = "FRIEND_REQUEST"
	KindFriendAccept  Kind = "FRIEND_ACCEPT"
	KindMessage       Kind = "MESSAGE"
	KindComment       Kind = "COMMENT"
	KindFriendPost    Kind = "FRIEND_POST"
)

func (k Kind) Valid() bool {
	switch k {
	case KindFriendRequest, KindFriendAccept, KindMessage, KindComment, KindFriendPost:
		return true
	}
	return false
}

// Event is one notification in a recipient's stream. IDs are assigned per
// recipient, start at 1 and increase without gaps; the ID doubles as the
// client's replay cursor. Events are immutable once stored.
type Event struct {
	ID          int64                  `json:"id"`
	RecipientID string                 `json:"recipient_id"`
	Kind        Kind                   `json:"kind"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
