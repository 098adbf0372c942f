package poker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kiliankoe/pokerdash/internal/metrics"
	"github.com/kiliankoe/pokerdash/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidSettings = errors.New("invalid room settings")
)

// DefaultTTL is how long an untouched room survives in the store.
const DefaultTTL = 6 * time.Hour

// Registry delivers encoded messages to live connections.
type Registry interface {
	Broadcast(roomID string, msg []byte, exclude ...string)
	SendTo(connID string, msg []byte)
}

type Isolation string

const (
	// IsolationNone loads, mutates and stores without any lock; concurrent
	// commands on one room race and the last write wins.
	IsolationNone Isolation = "none"
	// IsolationRoom runs commands for the same room one at a time.
	IsolationRoom Isolation = "room"
)

// ParseIsolation maps a ROOM_ISOLATION value to an Isolation. Empty means none.
func ParseIsolation(s string) (Isolation, error) {
	switch Isolation(strings.ToLower(strings.TrimSpace(s))) {
	case "", IsolationNone:
		return IsolationNone, nil
	case IsolationRoom:
		return IsolationRoom, nil
	}
	return "", fmt.Errorf("unknown isolation %q (want %q or %q)", s, IsolationNone, IsolationRoom)
}

type Option func(*RoomManager)

func WithTTL(ttl time.Duration) Option { return func(rm *RoomManager) { rm.ttl = ttl } }

func WithIsolation(i Isolation) Option { return func(rm *RoomManager) { rm.isolation = i } }

func WithClock(now func() time.Time) Option { return func(rm *RoomManager) { rm.now = now } }

// WithAfterFunc replaces time.AfterFunc for auto-reveal timers.
func WithAfterFunc(after func(time.Duration, func())) Option {
	return func(rm *RoomManager) { rm.after = after }
}

func WithExportFile(path string) Option { return func(rm *RoomManager) { rm.exportFile = path } }

// RoomManager runs every command as load -> apply -> store -> deliver against
// the store. It keeps no room state of its own between commands.
type RoomManager struct {
	store     store.Store
	registry  Registry
	ttl       time.Duration
	isolation Isolation
	now       func() time.Time
	after     func(time.Duration, func())

	exportFile string
	exportMu   sync.Mutex

	mu    sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomManager(st store.Store, reg Registry, opts ...Option) *RoomManager {
	rm := &RoomManager{
		store:     st,
		registry:  reg,
		ttl:       DefaultTTL,
		isolation: IsolationNone,
		now:       time.Now,
		after:     func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		locks:     make(map[string]*roomLock),
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

// CreateRoom stores a fresh room owned by owner and returns its id.
func (rm *RoomManager) CreateRoom(ctx context.Context, owner string, preset Preset, timerDuration int, autoReveal bool) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || !preset.Valid() || !ValidTimer(timerDuration) {
		return "", ErrInvalidSettings
	}
	var code string
	for attempt := 0; ; attempt++ {
		code = randomCode(6)
		existing, err := rm.load(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			break
		}
		if attempt >= 8 {
			return "", errors.New("could not allocate room id")
		}
	}
	room := NewRoom(code, owner, preset, timerDuration, autoReveal, rm.now())
	if err := rm.save(ctx, room); err != nil {
		return "", err
	}
	log.Info().Str("room", code).Str("owner", owner).Str("preset", string(preset)).Msg("room created")
	return code, nil
}

func (rm *RoomManager) Get(ctx context.Context, id string) (*Room, error) {
	r, err := rm.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (rm *RoomManager) Summary(ctx context.Context, id string) (Summary, error) {
	r, err := rm.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return r.Summary(), nil
}

// Handle decodes and dispatches one raw client message. A malformed message
// is dropped; the connection stays usable.
func (rm *RoomManager) Handle(ctx context.Context, roomID, connID string, data []byte) error {
	cmd, err := ParseCommand(data)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("malformed", "dropped").Inc()
		log.Warn().Str("room", roomID).Str("conn", connID).Err(err).Msg("dropping message")
		return err
	}
	_, err = rm.Dispatch(ctx, roomID, connID, cmd)
	return err
}

func (rm *RoomManager) Dispatch(ctx context.Context, roomID, connID string, cmd Command) (Outcome, error) {
	out, err := rm.run(ctx, roomID, connID, cmd.Type, func(r *Room) Outcome {
		return Apply(r, cmd, connID, rm.now())
	})
	if err != nil {
		return out, err
	}
	ev := log.Debug()
	if out.Result != ResultIgnored {
		ev = log.Info()
	}
	ev.Str("room", roomID).Str("conn", connID).Str("type", cmd.Type).Str("result", string(out.Result)).Msg("command")

	if out.Result == ResultApplied {
		switch cmd.Type {
		case TypeStartRound:
			rm.scheduleReveal(roomID, out.Room)
		case TypeRevealVotes:
			rm.export(out.Room)
		}
	}
	return out, nil
}

// Connect records nothing in the room; a connection only claims a name by
// sending join_room.
func (rm *RoomManager) Connect(roomID, connID string) {
	log.Info().Str("room", roomID).Str("conn", connID).Msg("connected")
}

// Disconnect marks the participant bound to connID as gone. A missing room or
// an unbound connection is not an error.
func (rm *RoomManager) Disconnect(ctx context.Context, roomID, connID string) error {
	out, err := rm.run(ctx, roomID, connID, "disconnect", func(r *Room) Outcome {
		return Disconnect(r, connID)
	})
	if err != nil {
		log.Error().Str("room", roomID).Str("conn", connID).Err(err).Msg("disconnect")
		return err
	}
	log.Info().Str("room", roomID).Str("conn", connID).Str("result", string(out.Result)).Msg("disconnected")
	return nil
}

func (rm *RoomManager) run(ctx context.Context, roomID, connID, kind string, op func(*Room) Outcome) (Outcome, error) {
	unlock := rm.lock(roomID)
	defer unlock()

	room, err := rm.load(ctx, roomID)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(kind, "failed").Inc()
		log.Error().Str("room", roomID).Str("type", kind).Err(err).Msg("load room")
		return Outcome{}, err
	}
	out := op(room)
	if out.Persist {
		if err := rm.save(ctx, out.Room); err != nil {
			metrics.CommandsTotal.WithLabelValues(kind, "failed").Inc()
			log.Error().Str("room", roomID).Str("type", kind).Err(err).Msg("store room")
			return Outcome{}, err
		}
	}
	rm.deliver(roomID, connID, out.Effects)
	metrics.CommandsTotal.WithLabelValues(kind, string(out.Result)).Inc()
	return out, nil
}

func (rm *RoomManager) load(ctx context.Context, id string) (*Room, error) {
	b, err := rm.store.Get(ctx, RoomKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		metrics.StoreErrors.WithLabelValues("get").Inc()
		return nil, err
	}
	return decodeRoom(b)
}

func (rm *RoomManager) save(ctx context.Context, r *Room) error {
	b, err := encodeRoom(r)
	if err != nil {
		return err
	}
	if err := rm.store.Set(ctx, RoomKey(r.ID), b, rm.ttl); err != nil {
		metrics.StoreErrors.WithLabelValues("set").Inc()
		return err
	}
	return nil
}

func (rm *RoomManager) deliver(roomID, connID string, effects []Effect) {
	for _, e := range effects {
		b, err := json.Marshal(e.Message)
		if err != nil {
			log.Error().Str("room", roomID).Str("type", e.Message.Type()).Err(err).Msg("encode message")
			continue
		}
		switch e.Audience {
		case ToSender:
			if connID != "" {
				rm.registry.SendTo(connID, b)
			}
		case ToOthers:
			rm.registry.Broadcast(roomID, b, connID)
		case ToRoom:
			rm.registry.Broadcast(roomID, b)
		}
	}
}

func (rm *RoomManager) lock(roomID string) func() {
	if rm.isolation != IsolationRoom {
		return func() {}
	}
	rm.mu.Lock()
	l := rm.locks[roomID]
	if l == nil {
		l = &roomLock{}
		rm.locks[roomID] = l
	}
	l.refs++
	rm.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		rm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(rm.locks, roomID)
		}
		rm.mu.Unlock()
	}
}

func (rm *RoomManager) scheduleReveal(roomID string, r *Room) {
	if r == nil || !r.AutoReveal || r.TimerEnd == nil {
		return
	}
	due := *r.TimerEnd
	rm.after(due.Sub(rm.now()), func() {
		cmd := Command{Type: TypeRevealVotes, dueAt: &due}
		if _, err := rm.Dispatch(context.Background(), roomID, "", cmd); err != nil {
			log.Error().Str("room", roomID).Err(err).Msg("auto reveal")
		}
	})
}

func (rm *RoomManager) export(r *Room) {
	if rm.exportFile == "" || r == nil {
		return
	}
	rm.exportMu.Lock()
	defer rm.exportMu.Unlock()
	if err := ExportRound(r, rm.exportFile, rm.now()); err != nil {
		log.Error().Err(err).Str("room", r.ID).Msg("failed to export round")
		return
	}
	log.Info().Str("room", r.ID).Str("file", rm.exportFile).Msg("exported round")
}

func randomCode(n int) string {
	letters := []rune("ABCDEFGHJKLMNPQRSTUVWXYZ23456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
