package main

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxAccountNameLength = 20
	maxPasswordBytes     = 72 // bcrypt input limit
	cookieTimeLayout     = "01/02/2006, 15:04:05"
	usernameKey          = "username"
	cookieKey            = "cookie"
)

type AuthManager struct {
	db         *Database
	sessions   SessionStore
	log        *zap.Logger
	bcryptCost int
	now        func() time.Time
}

func NewAuthManager(db *Database, sessions SessionStore, log *zap.Logger) *AuthManager {
	return &AuthManager{
		db:         db,
		sessions:   sessions,
		log:        log.Named("auth"),
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// issueCookie derives a session token from the account name, its password
// hash, the issue time and a random nonce.
func issueCookie(name, passwordHash string, issuedAt time.Time) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	h := sha512.New()
	h.Write([]byte(name))
	h.Write([]byte(passwordHash))
	h.Write([]byte(issuedAt.Format(cookieTimeLayout)))
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func validateAccountName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: username required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxAccountNameLength {
		return fmt.Errorf("%w: username longer than %d characters", ErrValidation, maxAccountNameLength)
	}
	return nil
}

// Login authenticates name/password, registering the account on first use.
// A wrong password yields StatusFailed with no cookie and a nil error.
func (am *AuthManager) Login(ctx context.Context, name, password string) (LoginResult, error) {
	failed := LoginResult{Status: StatusFailed}

	if err := validateAccountName(name); err != nil {
		return failed, err
	}
	if password == "" {
		return failed, fmt.Errorf("%w: password required", ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return failed, fmt.Errorf("%w: password longer than %d bytes", ErrValidation, maxPasswordBytes)
	}

	now := am.now()
	result := failed
	err := am.db.WithTx(ctx, func(q *Queries) error {
		account, err := q.GetAccountByName(ctx, name)
		switch {
		case errors.Is(err, ErrNotFound):
			hash, err := bcrypt.GenerateFromPassword([]byte(password), am.bcryptCost)
			if err != nil {
				return err
			}
			account, err = q.CreateAccount(ctx, name, string(hash), now)
			if err != nil {
				return err
			}
			result.Status = StatusRegistered
		case err != nil:
			return err
		default:
			if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
				return nil
			}
			if err := q.TouchAccount(ctx, account.ID, now); err != nil {
				return err
			}
			result.Status = StatusLogin
		}

		cookie, err := issueCookie(account.Name, account.PasswordHash, now)
		if err != nil {
			return err
		}
		session := Session{Username: account.Name, Cookie: cookie, IssuedAt: now}
		if err := am.sessions.Create(ctx, q, session); err != nil {
			return err
		}
		result.Cookie = cookie
		return nil
	})
	if err != nil {
		return failed, fmt.Errorf("login %s: %w", name, err)
	}

	if result.Status == StatusFailed {
		am.log.Info("login rejected", zap.String("username", name))
	} else {
		am.log.Info("login", zap.String("username", name), zap.String("status", result.Status))
	}
	return result, nil
}

// Authenticate checks that cookie is a live session of username.
func (am *AuthManager) Authenticate(ctx context.Context, username, cookie string) error {
	if username == "" || cookie == "" {
		return ErrUnauthorized
	}
	ok, err := am.sessions.Exists(ctx, username, cookie)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (am *AuthManager) Logout(ctx context.Context, username, cookie string) error {
	if err := am.Authenticate(ctx, username, cookie); err != nil {
		return err
	}
	if err := am.sessions.Revoke(ctx, username, cookie); err != nil {
		return err
	}
	am.log.Info("logout", zap.String("username", username))
	return nil
}

// BindConnection makes connID the personal room of the session so private
// events (invites) can reach it.
func (am *AuthManager) BindConnection(ctx context.Context, username, cookie, connID string) error {
	if username == "" || cookie == "" {
		return ErrUnauthorized
	}
	ok, err := am.sessions.Bind(ctx, username, cookie, connID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func (am *AuthManager) UnbindConnection(ctx context.Context, username, cookie, connID string) error {
	return am.sessions.Unbind(ctx, username, cookie, connID)
}

// Connections lists the personal rooms bound to any session of username.
func (am *AuthManager) Connections(ctx context.Context, username string) ([]string, error) {
	return am.sessions.PersonalRooms(ctx, username)
}

// RequireAuth guards a handler with the username/cookie form fields.
func (am *AuthManager) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		username := c.FormValue(usernameKey)
		cookie := c.FormValue(cookieKey)

		if err := am.Authenticate(c.Request().Context(), username, cookie); err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				am.log.Error("session lookup failed", zap.String("username", username), zap.Error(err))
				return c.String(http.StatusInternalServerError, resultFailed)
			}
			return c.String(http.StatusUnauthorized, resultAuthFailed)
		}

		c.Set(usernameKey, username)
		c.Set(cookieKey, cookie)
		return next(c)
	}
}

func usernameFromContext(c echo.Context) string {
	if username, ok := c.Get(usernameKey).(string); ok {
		return username
	}
	return ""
}
