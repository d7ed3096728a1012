package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	dateTimeLayout = "2006-01-02 15:04:05"

	defaultEmoji = 0
	defaultTheme = 2
)

type Account struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	LastOnline   time.Time `json:"last_online"`
}

// Session is one issued cookie. PersonalRoom holds the id of the live
// connection that called init with it, if any.
type Session struct {
	Username     string    `json:"username"`
	Cookie       string    `json:"cookie"`
	PersonalRoom string    `json:"personal_room,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
}

type Room struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	LastActive time.Time `json:"last_active"`
	EmojiID    int       `json:"emoji"`
	ThemeID    int       `json:"theme"`
}

type Membership struct {
	AccountID    int64
	RoomID       int64
	Username     string
	Nickname     string
	LastReadTime time.Time
}

// DisplayName is the nickname override if one is set, else the account name.
func (m Membership) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	AccountID int64     `json:"account_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	IsFile    bool      `json:"is_file"`
	SentAt    time.Time `json:"sent_at"`
}

type LoginResult struct {
	Status string `json:"status"`
	Cookie string `json:"cookie"`
}

const (
	StatusLogin      = "login successfully"
	StatusRegistered = "register successfully"
	StatusFailed     = "failed"
)

type Member struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

type RoomSummary struct {
	Name         string `json:"name"`
	ID           string `json:"id"`
	LastSendDate int64  `json:"last_send_date"`
	LastReadDate string `json:"last_read_date"`
	LastMessage  string `json:"last_message"`
	LastSender   string `json:"last_sender"`
	LastReadTime string `json:"last_read_time"`
}

type HistoryEntry struct {
	Sender string `json:"sender"`
	Body   string `json:"body"`
	IsFile bool   `json:"is_file"`
}

type RoomDetail struct {
	Name       string         `json:"name"`
	ID         string         `json:"id"`
	LastActive int64          `json:"last_active"`
	Emoji      int            `json:"emoji"`
	Theme      int            `json:"theme"`
	People     []Member       `json:"people"`
	Messages   []HistoryEntry `json:"messages"`
}

type LeaveResult struct {
	Room    Room
	Deleted bool
}

// WebSocket envelope, used in both directions.
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Inbound event payloads
type InitData struct {
	Username string `json:"username"`
	Cookie   string `json:"cookie"`
}

type JoinData struct {
	ChatroomName string `json:"chatroom_name"`
}

type LeaveData struct {
	Username     string `json:"username"`
	ChatroomName string `json:"chatroom_name"`
}

type SendMessageData struct {
	Username     string `json:"username"`
	Content      string `json:"content"`
	ChatroomName string `json:"chatroom_name"`
	IsFile       bool   `json:"is_file"`
}

type EmojiThemeData struct {
	ChatroomID flexID `json:"chatroom_id"`
	EmojiIndex int    `json:"emoji_index"`
	ThemeIndex int    `json:"theme_index"`
}

type NicknameChangeData struct {
	RoomID   flexID `json:"room_id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
}

// Outbound event payloads
type NewMessageEvent struct {
	RoomID string `json:"room_id"`
	Sender string `json:"sender"`
	Body   string `json:"body"`
	IsFile bool   `json:"is_file"`
}

type RoomRenamedEvent struct {
	RoomID  string `json:"room_id"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type InviteEvent struct {
	ChatroomName string `json:"chatroom_name"`
	RoomID       string `json:"room_id"`
}

type NewMembersEvent struct {
	RoomID  string   `json:"room_id"`
	Members []Member `json:"members"`
}

type MemberLeftEvent struct {
	RoomID       string `json:"room_id"`
	ChatroomName string `json:"chatroom_name"`
	LeftMember   string `json:"left_member"`
}

type EmojiThemeEvent struct {
	RoomID       string `json:"room_id"`
	ChatroomName string `json:"chatroom_name"`
	EmojiIndex   int    `json:"emoji_index"`
	ThemeIndex   int    `json:"theme_index"`
}

type NicknameChangedEvent struct {
	RoomID      string `json:"room_id"`
	Username    string `json:"username"`
	NewNickname string `json:"new_nickname"`
}

type ErrorEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

const (
	EventInit           = "init"
	EventJoin           = "join"
	EventLeave          = "leave"
	EventMessage        = "message"
	EventEmojiTheme     = "emoji_theme"
	EventNicknameChange = "nickname_change"

	EventNewMessage      = "new_message"
	EventRoomRenamed     = "chatroom_name_changed"
	EventInvite          = "invite"
	EventNewMembers      = "new_members"
	EventMemberLeft      = "member_left"
	EventEmojiThemeOut   = "emoji_theme_out"
	EventNicknameChanged = "nickname_change_out"
	EventError           = "error"
)

// flexID accepts a room id sent either as a JSON number or a JSON string.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("room id must be a number or numeric string: %w", err)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("room id %q: %w", s, err)
	}
	*f = flexID(n)
	return nil
}

func roomKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func unixMillis(t time.Time) int64 {
	return t.UnixMilli()
}
