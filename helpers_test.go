package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

type recordedEvent struct {
	RoomID  int64
	ConnID  string
	Event   string
	Payload interface{}
}

// fakeBroadcaster records every event the room service emits.
type fakeBroadcaster struct {
	mu           sync.Mutex
	broadcasts   []recordedEvent
	private      []recordedEvent
	unsubscribed []string
}

func (f *fakeBroadcaster) Broadcast(roomID int64, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, recordedEvent{RoomID: roomID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) PushPrivate(connID, event string, payload interface{}) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.private = append(f.private, recordedEvent{ConnID: connID, Event: event, Payload: payload})
	return true
}

func (f *fakeBroadcaster) UnsubscribeAccount(roomID int64, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, username)
}

func (f *fakeBroadcaster) eventsNamed(event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.broadcasts {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db    *Database
	auth  *AuthManager
	rooms *RoomService
	fake  *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDatabase(t)
	fake := &fakeBroadcaster{}
	auth := NewAuthManager(db, NewSQLSessionStore(db), zap.NewNop())
	auth.bcryptCost = bcrypt.MinCost
	return &fixture{
		db:    db,
		auth:  auth,
		rooms: NewRoomService(db, auth, fake, zap.NewNop()),
		fake:  fake,
	}
}

func (f *fixture) login(t *testing.T, name string) string {
	t.Helper()

	result, err := f.auth.Login(context.Background(), name, "pw-"+name)
	require.NoError(t, err)
	require.NotEqual(t, StatusFailed, result.Status)
	require.NotEmpty(t, result.Cookie)
	return result.Cookie
}

func (f *fixture) createRoom(t *testing.T, creator, name string) *Room {
	t.Helper()

	room, err := f.rooms.CreateRoom(context.Background(), creator, name)
	require.NoError(t, err)
	return room
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// drain decodes every queued message on c without blocking.
func drain(t *testing.T, c *Client) []WSMessage {
	t.Helper()

	var out []WSMessage
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return out
			}
			var msg WSMessage
			require.NoError(t, json.Unmarshal(raw, &msg))
			out = append(out, msg)
		default:
			return out
		}
	}
}

func eventTypes(msgs []WSMessage) []string {
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	return types
}
