// Package session wires a complete client: event loop, connection manager,
// state store, dispatcher, the drawing surface and its synchronizer.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmuslimabdulj/drawtogether/internal/canvas"
	"github.com/mmuslimabdulj/drawtogether/internal/config"
	httpHandler "github.com/mmuslimabdulj/drawtogether/internal/delivery/http"
	"github.com/mmuslimabdulj/drawtogether/internal/delivery/ws"
	"github.com/mmuslimabdulj/drawtogether/internal/dispatch"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/loop"
	"github.com/mmuslimabdulj/drawtogether/internal/middleware"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
	"github.com/mmuslimabdulj/drawtogether/internal/stroke"
	"github.com/mmuslimabdulj/drawtogether/internal/usecase"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrStopped is returned by Do once the loop has exited
var ErrStopped = errors.New("session: stopped")

// Deps overrides the collaborators New would otherwise build from config
type Deps struct {
	Dialer   ws.Dialer            // nil dials with gorilla/websocket
	Profiles usecase.ProfileStore // nil uses a file at cfg.ProfilePath
	Surface  canvas.Surface       // nil renders into a Raster of the configured size
}

// Session is one running client
type Session struct {
	cfg *config.Config
	log *logger.Logger

	loop       *loop.Loop
	manager    *ws.Manager
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	surface    canvas.Surface
	raster     *canvas.Raster // nil when Deps.Surface was given
	sync       *stroke.Synchronizer
	profiles   *usecase.ProfileService
	limiter    *middleware.IPRateLimiter
}

// New builds a session from cfg. Nothing connects until Run and Connect.
func New(cfg *config.Config, deps Deps) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:  cfg,
		log:  logger.New("session"),
		loop: loop.New(),
	}

	s.manager = ws.NewManager(ws.Options{
		URL:            cfg.ServerURL,
		Dialer:         deps.Dialer,
		Scheduler:      s.loop,
		Logger:         logger.New("ws"),
		MaxAttempts:    cfg.ReconnectMaxAttempts,
		BaseDelay:      cfg.ReconnectBaseDelay,
		MaxMessageSize: int64(cfg.MaxMessageSize),
		HistorySize:    cfg.MaxHistorySize,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.OutboundRate), cfg.OutboundBurst),
	})

	s.store = store.New(logger.New("store"))
	s.dispatcher = dispatch.New(s.manager, s.store, s.loop, logger.New("dispatch"))
	s.dispatcher.Bind()

	s.surface = deps.Surface
	if s.surface == nil {
		s.raster = canvas.NewRaster(cfg.CanvasWidth, cfg.CanvasHeight)
		s.surface = s.raster
	}
	s.sync = stroke.New(s.surface, s.store, s.dispatcher, logger.New("stroke"))
	s.sync.Bind(s.store)

	profiles := deps.Profiles
	if profiles == nil {
		profiles = usecase.NewFileProfileStore(cfg.ProfilePath, logger.New("profile"))
	}
	s.profiles = usecase.NewProfileService(profiles, logger.New("profile"))

	s.limiter = middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitInspect), max(1, int(cfg.RateLimitInspect*2)))

	return s, nil
}

// Run drives the event loop, and the inspection server when configured,
// until ctx is done. The connection is closed on the way out.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop.Run(ctx)
	})

	if s.cfg.InspectAddr != "" {
		srv := &http.Server{
			Addr:         s.cfg.InspectAddr,
			Handler:      s.InspectHandler(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		g.Go(func() error {
			s.log.Infof("inspection server at http://%s", s.cfg.InspectAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("inspection server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			s.limiter.SweepEvery(time.Minute, ctx.Done())
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if n := s.loop.Pending(); n > 0 {
		s.log.Debugf("discarding %d queued calls", n)
	}
	s.manager.Disconnect()
	s.dispatcher.Close()
	s.sync.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Do runs fn on the event loop and waits for its result
func (s *Session) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if !s.loop.Post(func() { done <- fn() }) {
		return ErrStopped
	}

	select {
	case err := <-done:
		return err
	case <-s.loop.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitFor blocks until cond holds for the store snapshot
func (s *Session) WaitFor(ctx context.Context, cond func(store.Snapshot) bool) (store.Snapshot, error) {
	changed := make(chan struct{}, 1)
	unsub := s.store.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsub()

	for {
		snap := s.store.Snapshot()
		if cond(snap) {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

// Connect opens the server connection and waits for it
func (s *Session) Connect(ctx context.Context) error {
	return s.dispatcher.Connect(ctx)
}

// UseProfile loads the stored user, or creates one when there is none or
// name differs, and makes it the current user
func (s *Session) UseProfile(ctx context.Context, name string) error {
	u, ok, err := s.profiles.LoadUser()
	if err != nil {
		s.log.WithError(err).Warn("ignoring unreadable profile")
	}
	if !ok || (name != "" && u.Name != name) {
		if name == "" {
			name = usecase.SuggestName()
		}
		if u, err = s.profiles.CreateUser(name); err != nil {
			return err
		}
	}

	return s.Do(ctx, func() error {
		s.store.SetCurrentUser(&u)
		return nil
	})
}

// SetColor changes the display color of the current user and stores it
func (s *Session) SetColor(ctx context.Context, color string) error {
	u, err := s.profiles.UpdateColor(color)
	if err != nil {
		return err
	}
	return s.Do(ctx, func() error {
		s.store.SetCurrentUser(&u)
		return nil
	})
}

// Leave sends LEAVE_ROOM and waits for the server to confirm with ROOM_LEFT
func (s *Session) Leave(ctx context.Context) error {
	if _, ok := s.store.CurrentRoom(); !ok || s.manager.State() != ws.StateConnected {
		return nil
	}
	s.dispatcher.LeaveRoom()
	_, err := s.WaitFor(ctx, func(snap store.Snapshot) bool {
		return snap.Room == nil
	})
	return err
}

// InspectHandler serves the read-only inspection routes
func (s *Session) InspectHandler() http.Handler {
	var png httpHandler.CanvasSource
	if s.raster != nil {
		png = s.raster
	}
	h := httpHandler.NewHandler(s.store, png, s.manager, logger.New("http"))
	return h.Routes(s.limiter)
}

// Store returns the state store
func (s *Session) Store() *store.Store {
	return s.store
}

// Dispatcher returns the intent and inbound handler
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Synchronizer returns the local and remote stroke handler
func (s *Session) Synchronizer() *stroke.Synchronizer {
	return s.sync
}

func (s *Session) Manager() *ws.Manager {
	return s.manager
}

// Raster returns the rendered surface; nil when a custom surface was given
func (s *Session) Raster() *canvas.Raster { return s.raster }
