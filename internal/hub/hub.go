// Package hub delivers outbound frames to the connections of a room.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"classroom/internal/metrics"
	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

// Membership resolves which connections currently belong to a room.
type Membership interface {
	ConnectionsIn(roomID string) []string
}

// Hub is the broadcast fan-out. Delivery never blocks: a frame that cannot be
// queued to a connection is dropped for that connection only, and the
// connection is handed to the eviction loop to be closed.
type Hub struct {
	mu    sync.RWMutex
	sinks map[string]interfaces.Sink // connID -> sink

	members Membership
	metrics *metrics.Metrics
	logger  zerolog.Logger

	evictChannel    chan string   // connIDs whose buffers overflowed
	shutdownChannel chan struct{} // closed by Stop

	runMu   sync.Mutex
	running bool
}

// New creates a hub that resolves room membership through members.
func New(members Membership, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		sinks:           make(map[string]interfaces.Sink),
		members:         members,
		metrics:         m,
		logger:          logger.With().Str("module", "hub").Logger(),
		evictChannel:    make(chan string, 256),
		shutdownChannel: make(chan struct{}),
	}
}

// Start runs the eviction loop until ctx is done or Stop is called.
func (h *Hub) Start(ctx context.Context) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true

	h.logger.Info().Msg("starting fan-out hub")
	go h.run(ctx)
	return nil
}

// Stop ends the eviction loop. Registered sinks are left open; the transport
// closes them on shutdown.
func (h *Hub) Stop() error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	h.logger.Info().Msg("stopped fan-out hub")
	return nil
}

// Register makes sink addressable by its connection id. A sink registered
// under an existing id replaces it.
func (h *Hub) Register(sink interfaces.Sink) error {
	if sink == nil {
		return ErrNilSink
	}
	h.mu.Lock()
	h.sinks[sink.ID()] = sink
	h.mu.Unlock()
	return nil
}

// Unregister forgets connID. Unknown ids are ignored.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	delete(h.sinks, connID)
	h.mu.Unlock()
}

// Count returns the number of registered sinks.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Broadcast delivers event to every connection bound to roomID at the moment
// of the call and returns how many frames were queued.
func (h *Hub) Broadcast(roomID, event string, payload any) int {
	frame, ok := h.encode(event, payload)
	if !ok {
		return 0
	}

	sent := 0
	for _, connID := range h.members.ConnectionsIn(roomID) {
		if h.deliver(connID, event, frame) {
			sent++
		}
	}
	h.metrics.Delivered(event, sent)
	h.logger.Debug().Str("room", roomID).Str("event", event).Int("sent_to", sent).Msg("broadcast")
	return sent
}

// Unicast delivers event to one connection.
func (h *Hub) Unicast(connID, event string, payload any) bool {
	frame, ok := h.encode(event, payload)
	if !ok {
		return false
	}
	if !h.deliver(connID, event, frame) {
		return false
	}
	h.metrics.Delivered(event, 1)
	return true
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	frame, err := json.Marshal(types.Frame{Event: event, Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(connID, event string, frame []byte) bool {
	h.mu.RLock()
	sink, ok := h.sinks[connID]
	h.mu.RUnlock()
	if !ok {
		// Bound but already gone; its disconnect will clean up the binding.
		h.metrics.DeliveryDropped(event)
		return false
	}

	if err := sink.Send(frame); err != nil {
		h.metrics.DeliveryDropped(event)
		h.logger.Warn().Err(err).Str("conn", connID).Str("event", event).Msg("delivery dropped")
		h.evict(connID)
		return false
	}
	return true
}

func (h *Hub) evict(connID string) {
	select {
	case h.evictChannel <- connID:
	default:
		// Loop is saturated; the next failed delivery retries.
	}
}

func (h *Hub) run(ctx context.Context) {
	defer func() {
		h.logger.Debug().Msg("eviction loop stopped")
	}()

	for {
		select {
		case connID := <-h.evictChannel:
			h.mu.RLock()
			sink, ok := h.sinks[connID]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			// Closing ends the read pump, which reports the disconnect.
			if err := sink.Close(); err != nil {
				h.logger.Debug().Err(err).Str("conn", connID).Msg("evicted connection close")
			}
		case <-h.shutdownChannel:
			return
		case <-ctx.Done():
			return
		}
	}
}
