// Package dispatch translates between wire envelopes and store mutations.
// Inbound messages are decoded into a closed set of types and applied in
// one place; outbound intents are validated locally before anything is sent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mmuslimabdulj/drawtogether/internal/delivery/ws"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/loop"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
)

var (
	ErrInvalidRoomName        = errors.New("dispatch: room name must be at least 3 characters")
	ErrInvalidMaxParticipants = errors.New("dispatch: max participants must be between 2 and 20")
	ErrInvalidRoomID          = errors.New("dispatch: room id is required")
	ErrNoCurrentUser          = errors.New("dispatch: no current user set")
	ErrRoomFull               = errors.New("dispatch: room is full")
)

// Transport is the part of the connection manager the dispatcher drives
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Send(payload any)
	OnMessage(fn func(domain.Envelope)) func()
	OnOpen(fn func()) func()
	OnError(fn func(error)) func()
	OnStateChange(fn func(ws.StateEvent)) func()
}

// Dispatcher is safe to call from any goroutine; inbound handling runs on
// the scheduler
type Dispatcher struct {
	transport    Transport
	store        *store.Store
	sched        loop.Scheduler
	log          *logger.Logger
	refreshDelay time.Duration

	mu     sync.Mutex
	unsubs []func()
}

// New creates a dispatcher. Call Bind to start receiving.
func New(transport Transport, st *store.Store, sched loop.Scheduler, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.New("dispatch")
	}
	return &Dispatcher{
		transport:    transport,
		store:        st,
		sched:        sched,
		log:          log,
		refreshDelay: domain.RoomsRefreshDelay,
	}
}

// Bind subscribes to the transport's message and lifecycle events
func (d *Dispatcher) Bind() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.unsubs = append(d.unsubs,
		d.transport.OnMessage(d.HandleEnvelope),
		d.transport.OnOpen(d.handleOpen),
		d.transport.OnError(d.handleError),
		d.transport.OnStateChange(d.handleState),
	)
}

// Close removes every subscription made by Bind
func (d *Dispatcher) Close() {
	d.mu.Lock()
	unsubs := d.unsubs
	d.unsubs = nil
	d.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// ==== Lifecycle ====

// Connect opens the transport and waits for it. An unusable server URL is
// recorded as the connection error.
func (d *Dispatcher) Connect(ctx context.Context) error {
	err := d.transport.Connect(ctx)
	if errors.Is(err, ws.ErrInvalidURL) {
		d.store.SetConnection(domain.ConnectionState{Error: "Failed to connect: invalid server address"})
	}
	return err
}

// Disconnect closes the transport; the connection state is cleared
func (d *Dispatcher) Disconnect() {
	d.transport.Disconnect()
	d.store.SetConnection(domain.ConnectionState{})
}

func (d *Dispatcher) handleOpen() {
	d.store.SetConnection(domain.ConnectionState{IsConnected: true})
	d.RequestRooms()
}

func (d *Dispatcher) handleError(err error) {
	// Exhaustion is reported with the terminal state event
	if errors.Is(err, ws.ErrReconnectExhausted) {
		return
	}
	d.log.WithError(err).Warn("transport error")
	d.store.SetConnectionError("Connection error")
}

func (d *Dispatcher) handleState(ev ws.StateEvent) {
	switch ev.New {
	case ws.StateConnecting:
		d.store.SetConnection(domain.ConnectionState{IsConnecting: true})
	case ws.StateReconnecting:
		d.store.SetConnection(domain.ConnectionState{
			IsConnecting: true,
			Error:        fmt.Sprintf("Connection lost, reconnecting (attempt %d of %d)", ev.Attempt, ev.MaxAttempts),
		})
	case ws.StateConnected:
		d.store.SetConnection(domain.ConnectionState{IsConnected: true})
	case ws.StateDisconnected:
		if errors.Is(ev.Err, ws.ErrReconnectExhausted) {
			d.store.SetConnection(domain.ConnectionState{
				Error: fmt.Sprintf("Unable to reach the server after %d attempts", ev.MaxAttempts),
			})
			return
		}
		d.store.SetConnection(domain.ConnectionState{})
	}
}

// ==== Outbound intents ====

// CreateRoom asks the server for a new room
func (d *Dispatcher) CreateRoom(name string, maxParticipants int) error {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < domain.MinRoomNameLength {
		return ErrInvalidRoomName
	}
	if maxParticipants < domain.MinParticipants || maxParticipants > domain.MaxParticipants {
		return ErrInvalidMaxParticipants
	}

	d.transport.Send(domain.CreateRoomCommand{
		Action:   domain.ActionCreateRoom,
		RoomName: name,
		MaxUsers: maxParticipants,
	})
	return nil
}

// JoinRoom asks to join roomID as the current user. A room the lobby
// already knows to be full is refused locally.
func (d *Dispatcher) JoinRoom(roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrInvalidRoomID
	}
	user, ok := d.store.CurrentUser()
	if !ok {
		return ErrNoCurrentUser
	}
	if room, ok := d.store.FindRoom(roomID); ok && room.IsFull() {
		return fmt.Errorf("%w: %s", ErrRoomFull, room.Name)
	}

	d.transport.Send(domain.JoinRoomCommand{
		Action: domain.ActionJoinRoom,
		RoomID: roomID,
		UserID: user.ID,
	})
	return nil
}

// LeaveRoom asks to leave; the room is cleared when ROOM_LEFT arrives
func (d *Dispatcher) LeaveRoom() {
	d.transport.Send(domain.BareCommand{Action: domain.ActionLeaveRoom})
}

// SendDrawEvent forwards a local draw event
func (d *Dispatcher) SendDrawEvent(ev domain.DrawEvent) {
	d.transport.Send(domain.DrawEventCommand{Action: domain.ActionDrawEvent, EventData: ev})
}

// RequestRooms asks for the room list
func (d *Dispatcher) RequestRooms() {
	d.transport.Send(domain.BareCommand{Action: domain.ActionGetRooms})
}

// ==== Inbound ====

// HandleEnvelope decodes env and applies it to the store. Payloads that
// cannot be decoded are logged and dropped.
func (d *Dispatcher) HandleEnvelope(env domain.Envelope) {
	msg, err := Decode(env)
	if err != nil {
		d.log.WithError(err).Warnf("dropping %s message", env.Type)
		return
	}
	d.Apply(msg)
}

// Apply performs the store mutation for one decoded message
func (d *Dispatcher) Apply(msg Inbound) {
	switch m := msg.(type) {
	case ConnectionEstablished:
		d.log.Info("connected to server")

	case RoomsList:
		d.store.SetAvailableRooms(m.Rooms)

	case RoomCreated:
		d.log.Info("room created")
		if m.HasRooms {
			d.store.SetAvailableRooms(m.Rooms)
		}
		d.sched.After(d.refreshDelay, d.RequestRooms)

	case RoomJoined:
		d.store.SetCurrentRoom(m.Room, m.History)
		d.store.UpdateRoom(m.Room)
		d.log.Infof("joined room %s (%d/%d)", m.Room.ID, m.Room.CurrentParticipantsCount, m.Room.MaxParticipants)

	case DrawEventReceived:
		d.store.AppendDrawEvent(m.Event)

	case MembershipChanged:
		if !d.store.ApplyMembership(m.Membership) {
			d.log.Debugf("ignoring membership change for room %s", m.Membership.RoomID)
		}

	case RoomLeft:
		d.store.ClearCurrentRoom()
		d.log.Info("left room")

	case ServerError:
		d.log.Warnf("server error: %s", m.Message)
		d.store.SetConnectionError(m.Message)

	case Unknown:
		d.log.Debugf("unhandled message type: %s", m.Type)

	default:
		d.log.Warnf("unhandled inbound %T", msg)
	}
}
