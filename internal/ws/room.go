package ws

import "fmt"

// RoomKind distinguishes per-user rooms from per-chat rooms.
type RoomKind uint8

const (
	RoomUser RoomKind = iota + 1
	RoomChat
)

// RoomID names a broadcast channel. The zero value is not a valid room.
type RoomID struct {
	Kind RoomKind
	ID   int
}

func UserRoom(userID int) RoomID { return RoomID{Kind: RoomUser, ID: userID} }

func ChatRoom(chatID int) RoomID { return RoomID{Kind: RoomChat, ID: chatID} }

func (r RoomID) Valid() bool {
	return (r.Kind == RoomUser || r.Kind == RoomChat) && r.ID > 0
}

func (r RoomID) String() string {
	switch r.Kind {
	case RoomUser:
		return fmt.Sprintf("user:%d", r.ID)
	case RoomChat:
		return fmt.Sprintf("chat:%d", r.ID)
	default:
		return fmt.Sprintf("invalid:%d", r.ID)
	}
}
