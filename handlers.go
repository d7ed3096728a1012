package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	resultSuccessful = "successful"
	resultFailed     = "failed"
	resultAuthFailed = "authentication failed"
)

type Server struct {
	auth           *AuthManager
	rooms          *RoomService
	hub            *Hub
	router         *EventRouter
	log            *zap.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
	maxMessageSize int64
}

type roomListResponse struct {
	Data []RoomSummary `json:"data"`
}

func NewServer(cfg *Config, auth *AuthManager, rooms *RoomService, hub *Hub, router *EventRouter, log *zap.Logger) *Server {
	s := &Server{
		auth:           auth,
		rooms:          rooms,
		hub:            hub,
		router:         router,
		log:            log.Named("http"),
		allowedOrigins: cfg.AllowedOrigins,
		maxMessageSize: cfg.MaxMessageSize,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Echo builds the HTTP server with middleware and every route attached.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger(s.log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	s.RegisterRoutes(e)
	return e
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/ws", s.handleWebSocket)

	e.POST("/login", s.handleLogin)

	requireAuth := s.auth.RequireAuth
	e.POST("/logout", s.handleLogout, requireAuth)
	e.POST("/chatrooms", s.handleListRooms, requireAuth)
	e.POST("/chat/:id", s.handleRoomDetail, requireAuth)
	e.POST("/create_room", s.handleCreateRoom, requireAuth)
	e.POST("/change_room_name", s.handleRenameRoom, requireAuth)
	e.POST("/add_member", s.handleAddMember, requireAuth)
}

// respondResult replies with the plain-text result strings clients expect.
func (s *Server) respondResult(c echo.Context, err error) error {
	if err == nil {
		return c.String(http.StatusOK, resultSuccessful)
	}
	if errors.Is(err, ErrUnauthorized) {
		return c.String(http.StatusUnauthorized, resultAuthFailed)
	}
	status := statusFor(err)
	s.logFailure(c, status, err)
	return c.String(status, resultFailed)
}

func (s *Server) respondError(c echo.Context, err error) error {
	status := statusFor(err)
	s.logFailure(c, status, err)
	return c.JSON(status, ErrorEvent{Event: c.Path(), Message: err.Error()})
}

func (s *Server) logFailure(c echo.Context, status int, err error) {
	fields := []zap.Field{
		zap.String("path", c.Path()),
		zap.String("username", usernameFromContext(c)),
		zap.Error(err),
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
		return
	}
	s.log.Debug("request rejected", fields...)
}

func parseRoomID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid room id %q", ErrValidation, raw)
	}
	return id, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.ClientCount(),
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	result, err := s.auth.Login(c.Request().Context(), c.FormValue("username"), c.FormValue("password"))
	if err != nil {
		status := statusFor(err)
		s.logFailure(c, status, err)
		return c.JSON(status, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleLogout(c echo.Context) error {
	err := s.auth.Logout(c.Request().Context(), usernameFromContext(c), c.FormValue(cookieKey))
	return s.respondResult(c, err)
}

func (s *Server) handleListRooms(c echo.Context) error {
	rooms, err := s.rooms.ListRooms(c.Request().Context(), usernameFromContext(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, roomListResponse{Data: rooms})
}

func (s *Server) handleRoomDetail(c echo.Context) error {
	roomID, err := parseRoomID(c.Param("id"))
	if err != nil {
		return s.respondError(c, err)
	}
	detail, err := s.rooms.RoomDetail(c.Request().Context(), usernameFromContext(c), roomID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleCreateRoom(c echo.Context) error {
	_, err := s.rooms.CreateRoom(c.Request().Context(), usernameFromContext(c), c.FormValue("chatroom_name"))
	return s.respondResult(c, err)
}

func (s *Server) handleRenameRoom(c echo.Context) error {
	roomID, err := parseRoomID(c.FormValue("room_id"))
	if err != nil {
		return s.respondResult(c, err)
	}
	_, err = s.rooms.RenameRoom(c.Request().Context(), usernameFromContext(c), roomID, c.FormValue("new_chatroom_name"))
	return s.respondResult(c, err)
}

func (s *Server) handleAddMember(c echo.Context) error {
	err := s.rooms.AddMember(c.Request().Context(), usernameFromContext(c),
		c.FormValue("chatroom_name"), c.FormValue("new_member_name"))
	return s.respondResult(c, err)
}

// handleWebSocket upgrades the request; the connection authenticates later
// with an init event.
func (s *Server) handleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return nil
	}

	client := s.hub.NewClient(conn)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump(s.router, s.maxMessageSize)
	return nil
}
