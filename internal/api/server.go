// Package api serves the REST surface: the room catalog, live participant
// lists, chat history, room termination, health and metrics. It contains no
// room logic of its own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"classroom/internal/auth"
	"classroom/internal/classroom"
	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// LiveRooms exposes the live room registry.
type LiveRooms interface {
	Snapshot(roomID string) (types.RoomSnapshot, bool)
	Stats() (rooms, participants int)
}

// Authenticator resolves the verified user of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// ConnectionCounter reports open WebSocket connections.
type ConnectionCounter interface {
	Count() int
}

// Dependencies are the collaborators of a Server. Auth, Metrics and
// WebSocket may be nil; a nil Auth disables the host check on DELETE.
type Dependencies struct {
	Catalog     interfaces.RoomCatalog
	Database    interfaces.DatabaseManager
	Live        LiveRooms
	Connections ConnectionCounter
	Auth        Authenticator
	Metrics     http.Handler
	WebSocket   http.Handler
	Logger      zerolog.Logger
}

// Server is the HTTP entry point.
type Server struct {
	catalog     interfaces.RoomCatalog
	dbManager   interfaces.DatabaseManager
	live        LiveRooms
	connections ConnectionCounter
	auth        Authenticator
	logger      zerolog.Logger
	started     time.Time
	router      *http.ServeMux
}

// NewServer builds the server and its routes.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		catalog:     deps.Catalog,
		dbManager:   deps.Database,
		live:        deps.Live,
		connections: deps.Connections,
		auth:        deps.Auth,
		logger:      deps.Logger.With().Str("module", "api").Logger(),
		started:     time.Now(),
		router:      http.NewServeMux(),
	}

	s.setupRoutes(deps.Metrics, deps.WebSocket)
	return s
}

func (s *Server) setupRoutes(metricsHandler, wsHandler http.Handler) {
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/api/rooms/join", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleJoinByCode))))
	s.router.Handle("/api/rooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRoomByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))

	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler)
	}
	if wsHandler != nil {
		s.router.Handle("/ws", wsHandler)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateRoomRequest struct {
	Name     string `json:"name"`
	HostID   string `json:"host_id"`
	HostName string `json:"host_name"`
}

type JoinRoomRequest struct {
	Code string `json:"code"`
}

type RoomResponse struct {
	Room             *types.Room `json:"room"`
	ParticipantCount int         `json:"participant_count"`
}

type RoomWithParticipants struct {
	*types.Room
	ParticipantCount int `json:"participant_count"`
}

type ListRoomsResponse struct {
	Rooms []RoomWithParticipants `json:"rooms"`
}

type MessagesResponse struct {
	RoomID   string               `json:"room_id"`
	Messages []*types.ChatMessage `json:"messages"`
}

type HealthResponse struct {
	Status       string                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	Database     string                 `json:"database"`
	Connections  int                    `json:"connections"`
	Rooms        int                    `json:"rooms"`
	Participants int                    `json:"participants"`
	System       map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleRooms serves POST /api/rooms and GET /api/rooms.
func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createRoom(w, r)
	case http.MethodGet:
		s.listRooms(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoomByID serves /api/rooms/{id} and its sub-resources.
func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rooms/"), "/")
	if path == "" {
		s.sendError(w, "Room ID required", http.StatusBadRequest)
		return
	}

	parts := strings.Split(path, "/")
	roomID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			s.getRoom(w, r, roomID)
		case http.MethodDelete:
			s.endRoom(w, r, roomID)
		default:
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case len(parts) == 2 && parts[1] == "participants":
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getParticipants(w, r, roomID)

	case len(parts) == 2 && parts[1] == "messages":
		if r.Method != http.MethodGet {
			s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getMessages(w, r, roomID)

	default:
		s.sendError(w, "Not found", http.StatusNotFound)
	}
}

// createRoom serves POST /api/rooms. With authentication enabled the host
// is the token subject and a body host_id naming anyone else is refused.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	r, ok := s.withUser(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if uid, ok := auth.UserID(r.Context()); ok {
		if req.HostID != "" && req.HostID != uid {
			s.logger.Warn().Str("user_id", uid).Str("host_id", req.HostID).Msg("create room for another host refused")
			s.sendError(w, "Host ID must match the authenticated user", http.StatusForbidden)
			return
		}
		req.HostID = uid
	}

	if strings.TrimSpace(req.Name) == "" {
		s.sendError(w, "Room name is required", http.StatusBadRequest)
		return
	}
	if req.HostID == "" {
		s.sendError(w, "Host ID is required", http.StatusBadRequest)
		return
	}

	room, err := s.catalog.CreateRoom(r.Context(), req.Name, req.HostID, req.HostName)
	if err != nil {
		if errors.Is(err, types.ErrInvalidRoomName) || errors.Is(err, types.ErrInvalidHostID) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error().Err(err).Msg("create room failed")
		s.sendError(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, RoomResponse{Room: room})
}

// listRooms serves GET /api/rooms.
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.catalog.ListActiveRooms(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list rooms failed")
		s.sendError(w, "Failed to list rooms", http.StatusInternalServerError)
		return
	}

	out := make([]RoomWithParticipants, len(rooms))
	for i, room := range rooms {
		out[i] = RoomWithParticipants{Room: room, ParticipantCount: s.participantCount(room.ID)}
	}
	s.writeJSON(w, http.StatusOK, ListRoomsResponse{Rooms: out})
}

// handleJoinByCode serves POST /api/rooms/join, resolving a join code to its room.
func (s *Server) handleJoinByCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	room, err := s.catalog.GetRoomByCode(r.Context(), req.Code)
	switch {
	case errors.Is(err, classroom.ErrInvalidCode):
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, interfaces.ErrRoomNotFound):
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("join by code failed")
		s.sendError(w, "Failed to resolve room", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, RoomResponse{Room: room, ParticipantCount: s.participantCount(room.ID)})
}

// getRoom serves GET /api/rooms/{id}.
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	room, err := s.catalog.GetRoom(r.Context(), roomID)
	if err != nil {
		s.sendLookupError(w, err, "Failed to get room")
		return
	}

	s.writeJSON(w, http.StatusOK, RoomResponse{Room: room, ParticipantCount: s.participantCount(roomID)})
}

// getParticipants serves GET /api/rooms/{id}/participants from the live
// registry. Rooms are created implicitly by the first join, so a live room
// needs no catalog record.
func (s *Server) getParticipants(w http.ResponseWriter, r *http.Request, roomID string) {
	if snap, ok := s.live.Snapshot(roomID); ok {
		s.writeJSON(w, http.StatusOK, snap)
		return
	}

	if _, err := s.catalog.GetRoom(r.Context(), roomID); err != nil {
		s.sendLookupError(w, err, "Failed to get participants")
		return
	}
	s.writeJSON(w, http.StatusOK, types.RoomSnapshot{RoomID: roomID, Participants: []*types.Participant{}})
}

// getMessages serves GET /api/rooms/{id}/messages?limit=N.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request, roomID string) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.sendError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMessageLimit)
	}

	messages, err := s.dbManager.GetRoomMessages(r.Context(), roomID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("get messages failed")
		s.sendError(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}

	s.writeJSON(w, http.StatusOK, MessagesResponse{RoomID: roomID, Messages: messages})
}

// endRoom serves DELETE /api/rooms/{id}. With authentication enabled only
// the recorded host may end the room.
func (s *Server) endRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	room, err := s.catalog.GetRoom(r.Context(), roomID)
	if err != nil {
		s.sendLookupError(w, err, "Failed to end room")
		return
	}

	r, ok := s.withUser(w, r)
	if !ok {
		return
	}
	if uid, ok := auth.UserID(r.Context()); ok {
		if uid != room.HostID {
			s.logger.Warn().Str("room_id", roomID).Str("user_id", uid).Msg("non-host tried to end room")
			s.sendError(w, "Only the host can end the room", http.StatusForbidden)
			return
		}
	}

	if err := s.catalog.EndRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, interfaces.ErrRoomEnded) {
			s.sendError(w, "Room already ended", http.StatusConflict)
			return
		}
		s.sendLookupError(w, err, "Failed to end room")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Room ended successfully"})
}

// withUser authenticates the request when authentication is enabled and
// returns it with the verified user in its context. On failure it has
// already written a 401.
func (s *Server) withUser(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if s.auth == nil {
		return r, true
	}
	uid, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("unauthenticated request")
		s.sendError(w, "Valid bearer token required", http.StatusUnauthorized)
		return r, false
	}
	return r.WithContext(auth.WithUser(r.Context(), uid)), true
}

// healthCheck serves GET /health.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.dbManager.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	rooms, participants := s.live.Stats()
	connections := 0
	if s.connections != nil {
		connections = s.connections.Count()
	}

	response := HealthResponse{
		Status:       status,
		Timestamp:    time.Now(),
		Database:     dbStatus,
		Connections:  connections,
		Rooms:        rooms,
		Participants: participants,
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.started).Round(time.Second).String(),
		},
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) participantCount(roomID string) int {
	snap, ok := s.live.Snapshot(roomID)
	if !ok {
		return 0
	}
	return len(snap.Participants)
}

func (s *Server) sendLookupError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		s.sendError(w, "Room not found", http.StatusNotFound)
		return
	}
	s.logger.Error().Err(err).Msg(fallback)
	s.sendError(w, fallback, http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("write response failed")
	}
}

// sendError writes the common error body.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows browser clients on any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
