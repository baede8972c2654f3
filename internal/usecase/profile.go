package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
	"github.com/natefinch/atomic"
)

var (
	ErrInvalidUserName = errors.New("user name must be between 2 and 20 characters")
	ErrInvalidColor    = errors.New("invalid user color")
	ErrNoProfile       = errors.New("no user profile")
)

// ProfileStore persists the local user between runs
type ProfileStore interface {
	// Load returns ErrNoProfile when nothing usable is stored
	Load() (*domain.User, error)
	Save(u *domain.User) error
	Remove() error
}

// ProfileService owns the identity of whoever runs this client
type ProfileService struct {
	mu      sync.RWMutex
	store   ProfileStore
	current *domain.User
	log     *logger.Logger
	pick    func(n int) int
}

// NewProfileService creates a service backed by store
func NewProfileService(store ProfileStore, log *logger.Logger) *ProfileService {
	if log == nil {
		log = logger.New("profile")
	}
	return &ProfileService{
		store: store,
		log:   log,
		pick:  rand.Intn,
	}
}

// Current returns a copy of the active user
func (ps *ProfileService) Current() (domain.User, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.current == nil {
		return domain.User{}, false
	}
	return *ps.current, true
}

// CreateUser makes a new identity with a random palette color and saves it
func (ps *ProfileService) CreateUser(name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < domain.MinUserNameLength || n > domain.MaxUserNameLength {
		return domain.User{}, fmt.Errorf("%w: %q", ErrInvalidUserName, name)
	}

	color := domain.DefaultColors[ps.pick(len(domain.DefaultColors))]
	u := domain.NewUser(name, color)

	if err := ps.store.Save(u); err != nil {
		return domain.User{}, fmt.Errorf("save profile: %w", err)
	}

	ps.mu.Lock()
	ps.current = u
	ps.mu.Unlock()

	ps.log.Infof("created user %s (%s)", u.Name, u.ID)
	return *u, nil
}

// LoadUser restores the stored identity, if any
func (ps *ProfileService) LoadUser() (domain.User, bool, error) {
	u, err := ps.store.Load()
	if errors.Is(err, ErrNoProfile) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load profile: %w", err)
	}

	ps.mu.Lock()
	ps.current = u
	ps.mu.Unlock()

	return *u, true, nil
}

// ClearUser forgets the identity in memory and on disk
func (ps *ProfileService) ClearUser() error {
	ps.mu.Lock()
	ps.current = nil
	ps.mu.Unlock()

	if err := ps.store.Remove(); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	return nil
}

// UpdateColor changes the active user's color
func (ps *ProfileService) UpdateColor(color string) (domain.User, error) {
	color = strings.TrimSpace(color)
	if !strings.HasPrefix(color, "#") || (len(color) != 4 && len(color) != 7) {
		return domain.User{}, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.current == nil {
		return domain.User{}, ErrNoProfile
	}
	updated := *ps.current
	updated.Color = color
	if err := ps.store.Save(&updated); err != nil {
		return domain.User{}, fmt.Errorf("save profile: %w", err)
	}
	ps.current = &updated
	return updated, nil
}

// FileProfileStore keeps the user as one JSON document
type FileProfileStore struct {
	path string
	log  *logger.Logger
}

// NewFileProfileStore stores the profile at path
func NewFileProfileStore(path string, log *logger.Logger) *FileProfileStore {
	if log == nil {
		log = logger.New("profile")
	}
	return &FileProfileStore{path: path, log: log}
}

// Load reads the profile. A file that does not decode to a user with an id
// and a name is deleted.
func (fs *FileProfileStore) Load() (*domain.User, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, err
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil || u.ID == "" || u.Name == "" {
		fs.log.Warnf("discarding corrupt profile at %s", fs.path)
		if rmErr := os.Remove(fs.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			fs.log.WithError(rmErr).Warn("failed to remove corrupt profile")
		}
		return nil, ErrNoProfile
	}
	return &u, nil
}

// Save replaces the profile atomically, creating its directory if needed
func (fs *FileProfileStore) Save(u *domain.User) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return err
	}
	return atomic.WriteFile(fs.path, bytes.NewReader(data))
}

// Remove deletes the profile; a missing file is not an error
func (fs *FileProfileStore) Remove() error {
	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
