package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Queries holds every CRUD statement the services use. Placeholders are
// numbered in order of first use so the same text runs on SQLite and Postgres.
type Queries struct {
	db DBTX
}

func dbError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// Accounts

func (q *Queries) CreateAccount(ctx context.Context, name, passwordHash string, now time.Time) (*Account, error) {
	account := &Account{Name: name, PasswordHash: passwordHash, LastOnline: now}
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO accounts (name, password_hash, last_online) VALUES ($1, $2, $3) RETURNING id`,
		name, passwordHash, now,
	).Scan(&account.ID)
	if err != nil {
		return nil, dbError(err)
	}
	return account, nil
}

func (q *Queries) GetAccountByName(ctx context.Context, name string) (*Account, error) {
	account := &Account{}
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, last_online FROM accounts WHERE name = $1`,
		name,
	).Scan(&account.ID, &account.Name, &account.PasswordHash, &account.LastOnline)
	if err != nil {
		return nil, dbError(err)
	}
	return account, nil
}

func (q *Queries) TouchAccount(ctx context.Context, accountID int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET last_online = $1 WHERE id = $2`,
		now, accountID,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

// Cookies

func (q *Queries) InsertCookie(ctx context.Context, s Session) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO cookies (username, cookie, issued_at) VALUES ($1, $2, $3)`,
		s.Username, s.Cookie, s.IssuedAt,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) CookieExists(ctx context.Context, username, cookie string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cookies WHERE username = $1 AND cookie = $2`,
		username, cookie,
	).Scan(&count)
	if err != nil {
		return false, dbError(err)
	}
	return count > 0, nil
}

func (q *Queries) DeleteCookie(ctx context.Context, username, cookie string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE username = $1 AND cookie = $2`,
		username, cookie,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

// SetPersonalRoom reports whether a cookie row was updated.
func (q *Queries) SetPersonalRoom(ctx context.Context, username, cookie, connID string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE cookies SET personal_room = $1 WHERE username = $2 AND cookie = $3`,
		connID, username, cookie,
	)
	if err != nil {
		return false, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError(err)
	}
	return n > 0, nil
}

func (q *Queries) ClearPersonalRoom(ctx context.Context, username, cookie, connID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE cookies SET personal_room = NULL WHERE username = $1 AND cookie = $2 AND personal_room = $3`,
		username, cookie, connID,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) PersonalRooms(ctx context.Context, username string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT personal_room FROM cookies WHERE username = $1 AND personal_room IS NOT NULL ORDER BY id`,
		username,
	)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	connIDs := make([]string, 0)
	for rows.Next() {
		var connID string
		if err := rows.Scan(&connID); err != nil {
			return nil, dbError(err)
		}
		connIDs = append(connIDs, connID)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return connIDs, nil
}

// Rooms

const roomColumns = `id, name, last_active, emoji_id, theme_id`

func scanRoom(row interface{ Scan(...any) error }) (*Room, error) {
	room := &Room{}
	if err := row.Scan(&room.ID, &room.Name, &room.LastActive, &room.EmojiID, &room.ThemeID); err != nil {
		return nil, err
	}
	return room, nil
}

func (q *Queries) CreateRoom(ctx context.Context, name string, now time.Time) (*Room, error) {
	room := &Room{Name: name, LastActive: now, EmojiID: defaultEmoji, ThemeID: defaultTheme}
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO rooms (name, last_active, emoji_id, theme_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		name, now, defaultEmoji, defaultTheme,
	).Scan(&room.ID)
	if err != nil {
		return nil, dbError(err)
	}
	return room, nil
}

func (q *Queries) GetRoomByID(ctx context.Context, roomID int64) (*Room, error) {
	room, err := scanRoom(q.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID))
	if err != nil {
		return nil, dbError(err)
	}
	return room, nil
}

func (q *Queries) GetRoomByName(ctx context.Context, name string) (*Room, error) {
	room, err := scanRoom(q.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name))
	if err != nil {
		return nil, dbError(err)
	}
	return room, nil
}

func (q *Queries) RoomNameTaken(ctx context.Context, name string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE name = $1`, name).Scan(&count)
	if err != nil {
		return false, dbError(err)
	}
	return count > 0, nil
}

func (q *Queries) RenameRoom(ctx context.Context, roomID int64, name string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE rooms SET name = $1 WHERE id = $2`, name, roomID)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) SetRoomSettings(ctx context.Context, roomID int64, emoji, theme int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE rooms SET emoji_id = $1, theme_id = $2 WHERE id = $3`,
		emoji, theme, roomID,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) TouchRoom(ctx context.Context, roomID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE rooms SET last_active = $1 WHERE id = $2`, at, roomID)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) DeleteRoom(ctx context.Context, roomID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return dbError(err)
	}
	return nil
}

// Memberships

func (q *Queries) AddMembership(ctx context.Context, accountID, roomID int64, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO memberships (account_id, room_id, last_read_time) VALUES ($1, $2, $3)`,
		accountID, roomID, now,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) GetMembership(ctx context.Context, accountID, roomID int64) (*Membership, error) {
	m := &Membership{}
	var nickname sql.NullString
	err := q.db.QueryRowContext(ctx,
		`SELECT b.account_id, b.room_id, a.name, b.nickname, b.last_read_time
		 FROM memberships b
		 JOIN accounts a ON a.id = b.account_id
		 WHERE b.account_id = $1 AND b.room_id = $2`,
		accountID, roomID,
	).Scan(&m.AccountID, &m.RoomID, &m.Username, &nickname, &m.LastReadTime)
	if err != nil {
		return nil, dbError(err)
	}
	m.Nickname = nickname.String
	return m, nil
}

// DeleteMembership reports whether a membership row was removed.
func (q *Queries) DeleteMembership(ctx context.Context, accountID, roomID int64) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE account_id = $1 AND room_id = $2`,
		accountID, roomID,
	)
	if err != nil {
		return false, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError(err)
	}
	return n > 0, nil
}

func (q *Queries) CountMembers(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships WHERE room_id = $1`, roomID).Scan(&count)
	if err != nil {
		return 0, dbError(err)
	}
	return count, nil
}

func (q *Queries) RoomMembers(ctx context.Context, roomID int64) ([]Membership, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT b.account_id, b.room_id, a.name, b.nickname, b.last_read_time
		 FROM memberships b
		 JOIN accounts a ON a.id = b.account_id
		 WHERE b.room_id = $1
		 ORDER BY a.name`,
		roomID,
	)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	members := make([]Membership, 0)
	for rows.Next() {
		var m Membership
		var nickname sql.NullString
		if err := rows.Scan(&m.AccountID, &m.RoomID, &m.Username, &nickname, &m.LastReadTime); err != nil {
			return nil, dbError(err)
		}
		m.Nickname = nickname.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return members, nil
}

func (q *Queries) SetNickname(ctx context.Context, accountID, roomID int64, nickname string) error {
	var value sql.NullString
	if nickname != "" {
		value = sql.NullString{String: nickname, Valid: true}
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE memberships SET nickname = $1 WHERE account_id = $2 AND room_id = $3`,
		value, accountID, roomID,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) MarkRead(ctx context.Context, accountID, roomID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE memberships SET last_read_time = $1 WHERE account_id = $2 AND room_id = $3`,
		at, accountID, roomID,
	)
	if err != nil {
		return dbError(err)
	}
	return nil
}

type accountRoom struct {
	Room         Room
	LastReadTime time.Time
}

func (q *Queries) RoomsForAccount(ctx context.Context, accountID int64) ([]accountRoom, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.last_active, r.emoji_id, r.theme_id, b.last_read_time
		 FROM rooms r
		 JOIN memberships b ON b.room_id = r.id
		 WHERE b.account_id = $1
		 ORDER BY r.last_active DESC, r.id DESC`,
		accountID,
	)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	rooms := make([]accountRoom, 0)
	for rows.Next() {
		var ar accountRoom
		r := &ar.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.LastActive, &r.EmojiID, &r.ThemeID, &ar.LastReadTime); err != nil {
			return nil, dbError(err)
		}
		rooms = append(rooms, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return rooms, nil
}

// Messages

const messageColumns = `m.id, m.room_id, m.account_id, a.name, m.content, m.is_file, m.sent_at`

func (q *Queries) InsertMessage(ctx context.Context, m *Message) error {
	err := q.db.QueryRowContext(ctx,
		`INSERT INTO messages (content, is_file, sent_at, account_id, room_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		m.Content, m.IsFile, m.SentAt, m.AccountID, m.RoomID,
	).Scan(&m.ID)
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (q *Queries) LastMessage(ctx context.Context, roomID int64) (*Message, error) {
	m := &Message{}
	err := q.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE m.room_id = $1
		 ORDER BY m.sent_at DESC, m.id DESC
		 LIMIT 1`,
		roomID,
	).Scan(&m.ID, &m.RoomID, &m.AccountID, &m.Sender, &m.Content, &m.IsFile, &m.SentAt)
	if err != nil {
		return nil, dbError(err)
	}
	return m, nil
}

func (q *Queries) RoomMessages(ctx context.Context, roomID int64) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+messageColumns+`
		 FROM messages m
		 JOIN accounts a ON a.id = m.account_id
		 WHERE m.room_id = $1
		 ORDER BY m.sent_at ASC, m.id ASC`,
		roomID,
	)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AccountID, &m.Sender, &m.Content, &m.IsFile, &m.SentAt); err != nil {
			return nil, dbError(err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return messages, nil
}

func (q *Queries) DeleteRoomMessages(ctx context.Context, roomID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID)
	if err != nil {
		return dbError(err)
	}
	return nil
}
