package interfaces_test

import (
	"context"
	"errors"
	"testing"

	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

type mockSink struct{ id string }

func (m *mockSink) ID() string             { return m.id }
func (m *mockSink) Send(frame []byte) error { return nil }
func (m *mockSink) Close() error            { return nil }

type mockCatalog struct{}

func (m *mockCatalog) IsHost(ctx context.Context, roomID, userID string) (bool, error) {
	return userID == "host", nil
}
func (m *mockCatalog) CreateRoom(ctx context.Context, name, hostID, hostName string) (*types.Room, error) {
	return &types.Room{Name: name, HostID: hostID, HostName: hostName, IsActive: true}, nil
}
func (m *mockCatalog) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return nil, interfaces.ErrRoomNotFound
}
func (m *mockCatalog) GetRoomByCode(ctx context.Context, code string) (*types.Room, error) {
	return nil, interfaces.ErrRoomNotFound
}
func (m *mockCatalog) ListActiveRooms(ctx context.Context) ([]*types.Room, error) { return nil, nil }
func (m *mockCatalog) EndRoom(ctx context.Context, roomID string) error          { return nil }

type mockRouter struct{}

func (m *mockRouter) Connect(sink interfaces.Sink)                                {}
func (m *mockRouter) Dispatch(ctx context.Context, connID string, ev types.Event) {}
func (m *mockRouter) Disconnect(connID string)                                    {}

type mockDB struct{}

func (m *mockDB) CreateRoom(ctx context.Context, room *types.Room) error { return nil }
func (m *mockDB) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return nil, nil
}
func (m *mockDB) GetRoomByCode(ctx context.Context, code string) (*types.Room, error) {
	return nil, nil
}
func (m *mockDB) DeactivateRoom(ctx context.Context, roomID string) error         { return nil }
func (m *mockDB) ListActiveRooms(ctx context.Context) ([]*types.Room, error)      { return nil, nil }
func (m *mockDB) StoreMessage(ctx context.Context, msg *types.ChatMessage) error { return nil }
func (m *mockDB) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error) {
	return nil, nil
}
func (m *mockDB) HealthCheck(ctx context.Context) error { return nil }
func (m *mockDB) Close() error                          { return nil }

var (
	_ interfaces.Sink            = (*mockSink)(nil)
	_ interfaces.RoomCatalog     = (*mockCatalog)(nil)
	_ interfaces.HostResolver    = (*mockCatalog)(nil)
	_ interfaces.EventRouter     = (*mockRouter)(nil)
	_ interfaces.DatabaseManager = (*mockDB)(nil)
	_ interfaces.MessageStore    = (*mockDB)(nil)
)

func TestHostResolver_Contract(t *testing.T) {
	var resolver interfaces.HostResolver = &mockCatalog{}

	isHost, err := resolver.IsHost(context.Background(), "room", "host")
	if err != nil || !isHost {
		t.Errorf("Expected host to resolve, got %v, %v", isHost, err)
	}
	isHost, _ = resolver.IsHost(context.Background(), "room", "student")
	if isHost {
		t.Error("Expected non-host to resolve false")
	}
}

func TestRoomCatalog_NotFound(t *testing.T) {
	var catalog interfaces.RoomCatalog = &mockCatalog{}

	_, err := catalog.GetRoom(context.Background(), "missing")
	if !errors.Is(err, interfaces.ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestErrors_AreDistinct(t *testing.T) {
	errs := []error{interfaces.ErrRoomNotFound, interfaces.ErrRoomEnded, interfaces.ErrUnauthorized}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v should not match %v", errs[i], errs[j])
			}
		}
	}
}
