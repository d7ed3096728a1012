package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const eventTimeout = 10 * time.Second

// EventRouter handles inbound websocket events. Each connection's events run
// sequentially on its read pump.
type EventRouter struct {
	hub   *Hub
	auth  *AuthManager
	rooms *RoomService
	log   *zap.Logger
}

func NewEventRouter(hub *Hub, auth *AuthManager, rooms *RoomService, log *zap.Logger) *EventRouter {
	return &EventRouter{
		hub:   hub,
		auth:  auth,
		rooms: rooms,
		log:   log.Named("events"),
	}
}

func decodeEvent(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (r *EventRouter) Dispatch(c *Client, msg WSMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var (
		username string
		err      error
	)
	if msg.Type == EventInit {
		err = r.handleInit(ctx, c, msg.Data)
	} else if username, err = r.checkSession(ctx, c); err == nil {
		switch msg.Type {
		case EventJoin:
			err = r.handleJoin(ctx, c, username, msg.Data)
		case EventMessage:
			err = r.handleMessage(ctx, username, msg.Data)
		case EventLeave:
			err = r.handleLeave(ctx, username, msg.Data)
		case EventEmojiTheme:
			err = r.handleEmojiTheme(ctx, username, msg.Data)
		case EventNicknameChange:
			err = r.handleNicknameChange(ctx, username, msg.Data)
		default:
			err = fmt.Errorf("%w: unknown event %q", ErrValidation, msg.Type)
		}
	}

	if err != nil {
		r.fail(c, msg.Type, err)
	}
}

func (r *EventRouter) fail(c *Client, event string, err error) {
	message := err.Error()
	if statusFor(err) == http.StatusInternalServerError {
		r.log.Error("event failed", zap.String("event", event), zap.String("conn_id", c.ID()), zap.Error(err))
		message = "internal error"
	} else {
		r.log.Debug("event rejected", zap.String("event", event), zap.String("conn_id", c.ID()), zap.Error(err))
	}
	r.hub.Send(c, EventError, ErrorEvent{Event: event, Message: message})
}

// checkSession returns the connection's username while its session is still
// live. A revoked session leaves the connection uninitialized.
func (r *EventRouter) checkSession(ctx context.Context, c *Client) (string, error) {
	username, cookie := c.Identity()
	if username == "" {
		return "", fmt.Errorf("%w: connection not initialized", ErrUnauthorized)
	}

	err := r.auth.Authenticate(ctx, username, cookie)
	if errors.Is(err, ErrUnauthorized) {
		rooms := r.hub.LeaveAllChannels(c)
		c.setIdentity("", "")
		r.log.Info("session revoked, connection reset", zap.String("conn_id", c.ID()),
			zap.String("username", username), zap.Int("rooms", len(rooms)))
		return "", fmt.Errorf("%w: session expired", ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	return username, nil
}

// handleInit authenticates the connection and binds it as the session's
// personal room.
func (r *EventRouter) handleInit(ctx context.Context, c *Client, data json.RawMessage) error {
	var d InitData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	if err := r.auth.Authenticate(ctx, d.Username, d.Cookie); err != nil {
		return err
	}
	if err := r.auth.BindConnection(ctx, d.Username, d.Cookie, c.ID()); err != nil {
		return err
	}

	prevUser, prevCookie := c.Identity()
	if prevUser != "" && (prevUser != d.Username || prevCookie != d.Cookie) {
		if err := r.auth.UnbindConnection(ctx, prevUser, prevCookie, c.ID()); err != nil {
			r.log.Warn("unbind previous session", zap.String("username", prevUser), zap.Error(err))
		}
	}
	if prevUser != "" && prevUser != d.Username {
		// channel membership was checked against the previous account
		r.hub.LeaveAllChannels(c)
	}
	c.setIdentity(d.Username, d.Cookie)

	r.log.Info("connection initialized", zap.String("conn_id", c.ID()), zap.String("username", d.Username))
	return nil
}

func (r *EventRouter) handleJoin(ctx context.Context, c *Client, username string, data json.RawMessage) error {
	var d JoinData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	room, err := r.rooms.Subscribe(ctx, username, d.ChatroomName)
	if err != nil {
		return err
	}
	r.hub.Join(c, room.ID)
	return nil
}

func checkSender(connUser, claimed string) error {
	if claimed != "" && claimed != connUser {
		return fmt.Errorf("%w: username does not match connection", ErrForbidden)
	}
	return nil
}

func (r *EventRouter) handleMessage(ctx context.Context, username string, data json.RawMessage) error {
	var d SendMessageData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	if err := checkSender(username, d.Username); err != nil {
		return err
	}
	_, err := r.rooms.SendMessage(ctx, username, d.ChatroomName, d.Content, d.IsFile)
	return err
}

func (r *EventRouter) handleLeave(ctx context.Context, username string, data json.RawMessage) error {
	var d LeaveData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	if err := checkSender(username, d.Username); err != nil {
		return err
	}
	_, err := r.rooms.Leave(ctx, username, d.ChatroomName)
	return err
}

func (r *EventRouter) handleEmojiTheme(ctx context.Context, username string, data json.RawMessage) error {
	var d EmojiThemeData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	_, err := r.rooms.SetEmojiTheme(ctx, username, int64(d.ChatroomID), d.EmojiIndex, d.ThemeIndex)
	return err
}

func (r *EventRouter) handleNicknameChange(ctx context.Context, username string, data json.RawMessage) error {
	var d NicknameChangeData
	if err := decodeEvent(data, &d); err != nil {
		return err
	}
	if d.Username == "" {
		return fmt.Errorf("%w: username required", ErrValidation)
	}
	return r.rooms.SetNickname(ctx, username, int64(d.RoomID), d.Username, d.Nickname)
}

// Disconnect drops the connection's subscriptions and releases its personal
// room binding.
func (r *EventRouter) Disconnect(c *Client) {
	rooms := r.hub.Unregister(c)

	username, cookie := c.Identity()
	if username == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := r.auth.UnbindConnection(ctx, username, cookie, c.ID()); err != nil {
		r.log.Warn("unbind connection", zap.String("conn_id", c.ID()), zap.String("username", username), zap.Error(err))
	}
	r.log.Info("connection closed", zap.String("conn_id", c.ID()), zap.String("username", username), zap.Int("rooms", len(rooms)))
}
