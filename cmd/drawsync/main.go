package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmuslimabdulj/drawtogether/internal/config"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/mmuslimabdulj/drawtogether/internal/session"
	"github.com/mmuslimabdulj/drawtogether/internal/store"
)

func main() {
	// Load .env file (ignore error if not exists, e.g. in production)
	_ = godotenv.Load()

	name := flag.String("name", "", "display name (random when empty and no profile is stored)")
	color := flag.String("color", "", "display color as #RGB or #RRGGBB, stored with the profile")
	roomID := flag.String("room", "", "id of the room to join")
	create := flag.String("create", "", "name of a room to create and join")
	maxUsers := flag.Int("max", domain.DefaultMaxParticipants, "participant limit for -create")
	snapshot := flag.String("snapshot", "", "write the canvas as PNG to this path on exit")
	inspect := flag.String("inspect", "", "address for the read-only inspection server (overrides INSPECT_ADDR)")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *inspect != "" {
		cfg.InspectAddr = *inspect
	}

	logger.Init(cfg.LogConfig())
	log := logger.New("main")

	sess, err := session.New(cfg, session.Deps{})
	if err != nil {
		log.WithError(err).Error("failed to build session")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The session outlives the signal so LEAVE_ROOM can still go out
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(runCtx) }()

	if err := start(ctx, sess, *name, *color, *roomID, *create, *maxUsers); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("failed to start")
		stop()
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	leaveCtx, cancelLeave := context.WithTimeout(runCtx, leaveTimeout)
	if err := sess.Leave(leaveCtx); err != nil {
		log.WithError(err).Warn("room not confirmed left before shutdown")
	}
	cancelLeave()
	cancelRun()

	if err := <-runErr; err != nil {
		log.WithError(err).Error("session ended with error")
	}

	if *snapshot != "" {
		if err := writeSnapshot(sess, *snapshot); err != nil {
			log.WithError(err).Error("failed to write snapshot")
			os.Exit(1)
		}
		log.Infof("canvas written to %s", *snapshot)
	}
}

// leaveTimeout bounds the wait for ROOM_LEFT on shutdown
const leaveTimeout = 2 * time.Second

// start sets up the identity, connects and enters the requested room
func start(ctx context.Context, sess *session.Session, name, color, roomID, create string, maxUsers int) error {
	log := logger.New("main")

	if err := sess.UseProfile(ctx, name); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if color != "" {
		if err := sess.SetColor(ctx, color); err != nil {
			return fmt.Errorf("color: %w", err)
		}
	}
	if u, ok := sess.Store().CurrentUser(); ok {
		log.Infof("drawing as %s", u.Name)
	}

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if create != "" {
		before := roomIDs(sess.Store().AvailableRooms())
		if err := sess.Dispatcher().CreateRoom(create, maxUsers); err != nil {
			return err
		}

		// The new room shows up with the next room list
		snap, err := sess.WaitFor(ctx, func(snap store.Snapshot) bool {
			_, ok := newRoomNamed(snap.AvailableRooms, before, create)
			return ok
		})
		if err != nil {
			return fmt.Errorf("waiting for room %q: %w", create, err)
		}
		room, _ := newRoomNamed(snap.AvailableRooms, before, create)
		roomID = room.ID
	}

	if roomID == "" {
		for _, r := range sess.Store().AvailableRooms() {
			log.Infof("room %s %q (%d/%d)", r.ID, r.Name, r.CurrentParticipantsCount, r.MaxParticipants)
		}
		return nil
	}

	if err := sess.Dispatcher().JoinRoom(roomID); err != nil {
		return err
	}
	snap, err := sess.WaitFor(ctx, func(snap store.Snapshot) bool {
		return (snap.Room != nil && snap.Room.ID == roomID) || snap.Connection.Error != ""
	})
	if err != nil {
		return err
	}
	if snap.Room == nil {
		return fmt.Errorf("join %s: %s", roomID, snap.Connection.Error)
	}
	log.Infof("in room %q with %d participants, %d events replayed", snap.Room.Name, snap.Room.CurrentParticipantsCount, snap.HistoryLength)
	if host, ok := snap.Room.Host(); ok {
		log.Infof("room host is %s", host)
	}
	return nil
}

func roomIDs(rooms []domain.Room) []string {
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids
}

func newRoomNamed(rooms []domain.Room, before []string, name string) (domain.Room, bool) {
	for _, r := range rooms {
		if r.Name == name && !slices.Contains(before, r.ID) {
			return r, true
		}
	}
	return domain.Room{}, false
}

func writeSnapshot(sess *session.Session, path string) error {
	raster := sess.Raster()
	if raster == nil {
		return errors.New("no raster surface")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := raster.WritePNG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
