// Package router applies inbound room events to live room state and emits
// the resulting broadcasts.
//
// Every mutation of a room happens inside that room's critical section, and
// the broadcasts it produces are queued before the section ends, so members
// observe a room's events in the order they were applied. Host lookups happen
// before the section is entered; chat persistence happens after it is left.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classroom/internal/metrics"
	"classroom/internal/roomstate"
	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

// Fanout delivers frames to connections.
type Fanout interface {
	Register(sink interfaces.Sink) error
	Unregister(connID string)
	Broadcast(roomID, event string, payload any) int
	Unicast(connID, event string, payload any) bool
}

// Config tunes the router.
type Config struct {
	RateLimit         int           // events per window per connection, 0 disables
	RateWindow        time.Duration // rate limit window
	HostLookupTimeout time.Duration // bound on one IsHost call
	PersistTimeout    time.Duration // bound on one chat persistence call
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit:         100,
		RateWindow:        time.Minute,
		HostLookupTimeout: 2 * time.Second,
		PersistTimeout:    5 * time.Second,
	}
}

// Router implements interfaces.EventRouter and interfaces.RoomTerminator.
type Router struct {
	cfg      Config
	store    *roomstate.Store
	fanout   Fanout
	hosts    interfaces.HostResolver
	messages interfaces.MessageStore // optional
	limiter  *RateLimiter
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	persistWG sync.WaitGroup
}

// New wires a router. messages and m may be nil.
func New(cfg Config, store *roomstate.Store, fanout Fanout, hosts interfaces.HostResolver,
	messages interfaces.MessageStore, m *metrics.Metrics, logger zerolog.Logger) *Router {
	return &Router{
		cfg:      cfg,
		store:    store,
		fanout:   fanout,
		hosts:    hosts,
		messages: messages,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		metrics:  m,
		logger:   logger.With().Str("module", "router").Logger(),
	}
}

// Connect makes a new transport connection addressable for unicast and broadcast.
func (r *Router) Connect(sink interfaces.Sink) {
	if err := r.fanout.Register(sink); err != nil {
		r.logger.Error().Err(err).Msg("failed to register connection")
		return
	}
	r.logger.Debug().Str("conn", sink.ID()).Msg("connection registered")
}

// Dispatch applies one inbound event sent over connID. Nothing is reported
// back to the sender; failures are logged and counted.
func (r *Router) Dispatch(ctx context.Context, connID string, event types.Event) {
	if !r.limiter.Allow(connID) {
		r.record(connID, event, ErrRateLimited)
		return
	}
	r.record(connID, event, r.handle(ctx, connID, event))
}

func (r *Router) handle(ctx context.Context, connID string, event types.Event) error {
	switch ev := event.(type) {
	case types.Join:
		return r.handleJoin(ctx, connID, ev)
	case types.Leave:
		return r.leave(ev.RoomID, ev.UserID, "")
	case types.ToggleMute:
		return r.update(ev.RoomID, ev.UserID, func(p *types.Participant) {
			p.IsMuted = ev.IsMuted
		}, func(p *types.Participant) (string, any) {
			return types.EventParticipantUpdated, types.MuteUpdated{UserID: p.UserID, IsMuted: p.IsMuted}
		})
	case types.ToggleVideo:
		return r.update(ev.RoomID, ev.UserID, func(p *types.Participant) {
			p.IsVideoOn = ev.IsVideoOn
		}, func(p *types.Participant) (string, any) {
			return types.EventParticipantUpdated, types.VideoUpdated{UserID: p.UserID, IsVideoOn: p.IsVideoOn}
		})
	case types.RaiseHand:
		return r.update(ev.RoomID, ev.UserID, func(p *types.Participant) {
			p.IsHandRaised = ev.IsHandRaised
		}, func(p *types.Participant) (string, any) {
			return types.EventHandRaised, types.HandRaised{
				UserID:       p.UserID,
				DisplayName:  p.DisplayName,
				IsHandRaised: p.IsHandRaised,
			}
		})
	case types.StartPresenting:
		return r.handleStartPresenting(ev)
	case types.StopPresenting:
		return r.handleStopPresenting(ev)
	case types.MuteAll:
		return r.handleMuteAll(ctx, ev)
	case types.SendMessage:
		return r.handleSendMessage(connID, ev)
	default:
		return types.ErrUnknownEvent
	}
}

// Disconnect resolves a transport disconnect to a leave. It may fire any
// number of times for the same connection.
func (r *Router) Disconnect(connID string) {
	r.limiter.Forget(connID)

	if b, ok := r.store.Index().Lookup(connID); ok {
		if err := r.leave(b.RoomID, b.UserID, connID); err != nil {
			r.logger.Debug().Err(err).Str("conn", connID).Msg("disconnect resolved to nothing")
		}
	}
	r.fanout.Unregister(connID)
}

// TerminateRoom notifies the members of roomID with room_ended and drops the
// room's state. Later disconnects of its former members resolve to nothing.
func (r *Router) TerminateRoom(roomID string) bool {
	existed := r.store.Terminate(roomID, func(room *roomstate.Room) {
		r.fanout.Broadcast(roomID, types.EventRoomEnded, types.RoomEnded{RoomID: roomID})
	})
	r.logger.Info().Str("room", roomID).Bool("live", existed).Msg("room terminated")
	return existed
}

// Snapshot returns the live state of roomID.
func (r *Router) Snapshot(roomID string) (types.RoomSnapshot, bool) {
	return r.store.Snapshot(roomID)
}

// Wait blocks until in-flight chat persistence calls finish.
func (r *Router) Wait() {
	r.persistWG.Wait()
}

// RunJanitor prunes idle rate limiter entries every interval until ctx is done.
func (r *Router) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.limiter.Cleanup(); n > 0 {
				r.logger.Debug().Int("removed", n).Msg("pruned rate limiter entries")
			}
		}
	}
}

func (r *Router) handleJoin(ctx context.Context, connID string, ev types.Join) error {
	role := r.resolveRole(ctx, ev.RoomID, ev.UserID)

	// A connection speaks for one participant at a time; joining elsewhere
	// leaves the previous room first.
	if prev, ok := r.store.Index().Lookup(connID); ok && (prev.RoomID != ev.RoomID || prev.UserID != ev.UserID) {
		_ = r.leave(prev.RoomID, prev.UserID, connID)
	}

	p := &types.Participant{
		ID:           uuid.NewString(),
		UserID:       ev.UserID,
		DisplayName:  ev.DisplayName,
		Role:         role,
		IsMuted:      true,
		ConnectionID: connID,
	}

	r.store.Do(ev.RoomID, true, func(room *roomstate.Room) {
		if replaced := room.Join(p); replaced != nil {
			r.logger.Info().Str("room", ev.RoomID).Str("user", ev.UserID).
				Str("old_conn", replaced.ConnectionID).Msg("participant replaced by newer join")
			if replaced.IsPresenting {
				r.fanout.Broadcast(ev.RoomID, types.EventPresentationStopped, types.PresentationStopped{UserID: ev.UserID})
			}
		}
		r.fanout.Broadcast(ev.RoomID, types.EventParticipantJoined, room.Get(ev.UserID))
		r.fanout.Unicast(connID, types.EventRoomState, room.Snapshot())
	})

	r.logger.Info().Str("room", ev.RoomID).Str("user", ev.UserID).Str("role", role).Msg("participant joined")
	return nil
}

// leave removes userID from roomID. A non-empty connID restricts removal to
// the participant bound to that connection.
func (r *Router) leave(roomID, userID, connID string) error {
	err := ErrParticipantNotFound
	found := r.store.Do(roomID, false, func(room *roomstate.Room) {
		current := room.Get(userID)
		if current == nil || (connID != "" && current.ConnectionID != connID) {
			return
		}
		removed, wasPresenting := room.Leave(userID)
		r.fanout.Broadcast(roomID, types.EventParticipantLeft, types.ParticipantLeft{
			UserID:      removed.UserID,
			DisplayName: removed.DisplayName,
		})
		if wasPresenting {
			r.fanout.Broadcast(roomID, types.EventPresentationStopped, types.PresentationStopped{UserID: removed.UserID})
		}
		err = nil
	})
	if !found {
		return ErrRoomNotFound
	}
	if err == nil {
		r.logger.Info().Str("room", roomID).Str("user", userID).Msg("participant left")
	}
	return err
}

func (r *Router) update(roomID, userID string, mutate func(*types.Participant),
	payload func(*types.Participant) (string, any)) error {
	err := ErrParticipantNotFound
	found := r.store.Do(roomID, false, func(room *roomstate.Room) {
		p := room.Update(userID, mutate)
		if p == nil {
			return
		}
		event, data := payload(p)
		r.fanout.Broadcast(roomID, event, data)
		err = nil
	})
	if !found {
		return ErrRoomNotFound
	}
	return err
}

func (r *Router) handleStartPresenting(ev types.StartPresenting) error {
	err := ErrParticipantNotFound
	found := r.store.Do(ev.RoomID, false, func(room *roomstate.Room) {
		p := room.StartPresenting(ev.UserID, ev.ContentRef)
		if p == nil {
			return
		}
		r.fanout.Broadcast(ev.RoomID, types.EventPresentationStarted, types.PresentationStarted{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			ContentRef:  ev.ContentRef,
		})
		err = nil
	})
	if !found {
		return ErrRoomNotFound
	}
	return err
}

// Any participant id may stop the current presentation.
func (r *Router) handleStopPresenting(ev types.StopPresenting) error {
	found := r.store.Do(ev.RoomID, false, func(room *roomstate.Room) {
		room.StopPresenting(ev.UserID)
		r.fanout.Broadcast(ev.RoomID, types.EventPresentationStopped, types.PresentationStopped{UserID: ev.UserID})
	})
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

func (r *Router) handleMuteAll(ctx context.Context, ev types.MuteAll) error {
	if !r.isHost(ctx, ev.RoomID, ev.ActingUserID) {
		return ErrNotHost
	}

	found := r.store.Do(ev.RoomID, false, func(room *roomstate.Room) {
		changed := room.MuteStudents()
		r.fanout.Broadcast(ev.RoomID, types.EventAllMuted, types.AllMuted{RoomID: ev.RoomID})
		r.logger.Info().Str("room", ev.RoomID).Int("muted", changed).Msg("host muted all students")
	})
	if !found {
		return ErrRoomNotFound
	}
	return nil
}

func (r *Router) handleSendMessage(connID string, ev types.SendMessage) error {
	msg := &types.ChatMessage{
		ID:          uuid.NewString(),
		RoomID:      ev.RoomID,
		UserID:      ev.UserID,
		DisplayName: ev.DisplayName,
		Content:     ev.Content,
	}
	if msg.UserID == "" {
		if b, ok := r.store.Index().Lookup(connID); ok && b.RoomID == ev.RoomID {
			msg.UserID = b.UserID
		}
	}
	if msg.UserID == "" {
		return ErrUnknownSender
	}

	found := r.store.Do(ev.RoomID, false, func(room *roomstate.Room) {
		if msg.DisplayName == "" {
			if p := room.Get(msg.UserID); p != nil {
				msg.DisplayName = p.DisplayName
			}
		}
		msg.Timestamp = time.Now().UTC()
		r.fanout.Broadcast(ev.RoomID, types.EventNewMessage, msg)
	})
	if !found {
		return ErrRoomNotFound
	}

	r.persist(msg)
	return nil
}

// persist hands msg to the message store without holding up the event path.
// Failures are logged; the broadcast has already happened.
func (r *Router) persist(msg *types.ChatMessage) {
	if r.messages == nil {
		return
	}

	r.persistWG.Add(1)
	go func() {
		defer r.persistWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
		defer cancel()
		if err := r.messages.StoreMessage(ctx, msg); err != nil {
			r.metrics.PersistFailed()
			r.logger.Error().Err(err).Str("room", msg.RoomID).Str("message", msg.ID).Msg("failed to persist chat message")
		}
	}()
}

// resolveRole falls back to student when the lookup fails.
func (r *Router) resolveRole(ctx context.Context, roomID, userID string) string {
	if r.isHost(ctx, roomID, userID) {
		return types.RoleTeacher
	}
	return types.RoleStudent
}

func (r *Router) isHost(ctx context.Context, roomID, userID string) bool {
	if r.hosts == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.HostLookupTimeout)
	defer cancel()
	isHost, err := r.hosts.IsHost(ctx, roomID, userID)
	if err != nil {
		r.logger.Warn().Err(err).Str("room", roomID).Str("user", userID).Msg("host lookup failed")
		return false
	}
	return isHost
}

func (r *Router) record(connID string, event types.Event, err error) {
	outcome := metrics.OutcomeHandled
	switch {
	case err == nil:
	case errors.Is(err, ErrRateLimited):
		outcome = metrics.OutcomeRateLimited
	case errors.Is(err, ErrNotHost):
		outcome = metrics.OutcomeUnauthorized
	case errors.Is(err, ErrUnknownSender), errors.Is(err, types.ErrUnknownEvent):
		outcome = metrics.OutcomeInvalid
	default:
		outcome = metrics.OutcomeIgnored
	}
	r.metrics.EventReceived(event.EventName(), outcome)

	if err != nil {
		r.logger.Debug().Err(err).Str("conn", connID).Str("event", event.EventName()).
			Str("room", event.Room()).Msg("event dropped")
	}
}
