package events

// Event names pushed to live client connections.
const (
	TypeReceiveMessage      = "receiveMessage"
	TypeMessageDelivered    = "messageDelivered"
	TypeMessageRead         = "messageRead"
	TypeUserOnline          = "userOnline"
	TypeUserOffline         = "userOffline"
	TypeUserTyping          = "userTyping"
	TypeConversationUpdated = "conversationUpdated"
	TypeUnreadCountUpdated  = "unreadCountUpdated"
	TypeError               = "error"
	TypePong                = "pong"
)

// Event is the envelope written to client websockets.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}
