// Package database is the SQLite persistence collaborator: the room catalog
// records and chat history.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	dbconfig "classroom/pkg/database"
	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

// DefaultMessageLimit applies when GetRoomMessages is called without a limit.
const DefaultMessageLimit = 100

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager implements interfaces.DatabaseManager. Reads use the connection
// pool directly; all writes are serialized through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	logger       zerolog.Logger
	writeChannel chan writeOperation
	retryDelay   time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database and starts the writer goroutine.
func NewManager(config *dbconfig.Config, logger zerolog.Logger) (*Manager, error) {
	if config.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	m := &Manager{
		db:           db,
		config:       config,
		logger:       logger.With().Str("module", "database").Logger(),
		writeChannel: make(chan writeOperation, 100),
		retryDelay:   5 * time.Second,
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

// writeLoop runs every write, retrying a failed one once after retryDelay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !errors.Is(err, interfaces.ErrRoomNotFound) {
				m.logger.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("database write failed, retrying")
				time.Sleep(m.retryDelay)
				if err = op.operation(m.db); err != nil {
					m.logger.Error().Err(err).Msg("database write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.logger.Debug().Msg("write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// CreateRoom inserts a room record.
func (m *Manager) CreateRoom(ctx context.Context, room *types.Room) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO rooms (id, name, code, host_id, host_name, created_at, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			room.ID,
			room.Name,
			room.Code,
			room.HostID,
			room.HostName,
			room.CreatedAt,
			room.IsActive,
		)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

const roomColumns = `id, name, code, host_id, host_name, created_at, is_active`

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*types.Room, error) {
	var room types.Room
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Code,
		&room.HostID,
		&room.HostName,
		&room.CreatedAt,
		&room.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom returns a room record whether or not it is active.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, roomID)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return room, nil
}

// GetRoomByCode resolves a join code, case-insensitively, to an active room.
func (m *Manager) GetRoomByCode(ctx context.Context, code string) (*types.Room, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = ? AND is_active = 1 ORDER BY created_at DESC LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(code)),
	)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room by code: %w", err)
	}
	return room, nil
}

// DeactivateRoom marks a room as ended.
func (m *Manager) DeactivateRoom(ctx context.Context, roomID string) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE rooms SET is_active = 0 WHERE id = ?`, roomID)
		if err != nil {
			return fmt.Errorf("failed to deactivate room: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to deactivate room: %w", err)
		}
		if n == 0 {
			return interfaces.ErrRoomNotFound
		}
		return nil
	})
}

// ListActiveRooms returns active rooms, newest first.
func (m *Manager) ListActiveRooms(ctx context.Context) ([]*types.Room, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE is_active = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rooms := []*types.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}
	return rooms, nil
}

// StoreMessage appends a chat message.
func (m *Manager) StoreMessage(ctx context.Context, message *types.ChatMessage) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO messages (id, room_id, user_id, display_name, content, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			message.RoomID,
			message.UserID,
			message.DisplayName,
			message.Content,
			message.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// GetRoomMessages returns the latest limit messages of a room, oldest first.
func (m *Manager) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, room_id, user_id, display_name, content, timestamp
		FROM messages
		WHERE room_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query room messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*types.ChatMessage{}
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.RoomID,
			&msg.UserID,
			&msg.DisplayName,
			&msg.Content,
			&msg.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// HealthCheck validates connectivity and that the schema is readable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying pool for migrations.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the pool. It is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
