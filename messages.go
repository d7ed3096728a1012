package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// appendMessage stores m and moves the room's last activity to m.SentAt.
func appendMessage(ctx context.Context, q *Queries, m *Message) error {
	if err := q.InsertMessage(ctx, m); err != nil {
		return err
	}
	return q.TouchRoom(ctx, m.RoomID, m.SentAt)
}

// SendMessage appends a message from sender to roomName and delivers it to
// every connection subscribed to the room, the sender's included.
func (rs *RoomService) SendMessage(ctx context.Context, sender, roomName, content string, isFile bool) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrValidation)
	}

	roomName = strings.TrimSpace(roomName)
	msg := &Message{Sender: sender, Content: content, IsFile: isFile, SentAt: rs.now()}
	err := rs.db.WithTx(ctx, func(q *Queries) error {
		room, err := q.GetRoomByName(ctx, roomName)
		if err != nil {
			return fmt.Errorf("room %q: %w", roomName, err)
		}
		account, _, err := requireMember(ctx, q, sender, room.ID)
		if err != nil {
			return err
		}
		msg.RoomID = room.ID
		msg.AccountID = account.ID
		return appendMessage(ctx, q, msg)
	})
	if err != nil {
		return nil, err
	}

	rs.hub.Broadcast(msg.RoomID, EventNewMessage, NewMessageEvent{
		RoomID: roomKey(msg.RoomID),
		Sender: sender,
		Body:   content,
		IsFile: isFile,
	})
	rs.log.Debug("message sent", zap.Int64("room_id", msg.RoomID), zap.String("sender", sender), zap.Int64("message_id", msg.ID))
	return msg, nil
}
