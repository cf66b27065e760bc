package access

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfourny/offload/pkg/logging"
)

// ErrDenied is returned when a capability cannot be obtained for a path
var ErrDenied = errors.New("access denied")

// Manager exchanges filesystem paths for renewable access capabilities.
// It is the only component allowed to touch the token store; everything
// else holds capabilities, never store references.
type Manager struct {
	store  *Store
	logger logging.Logger

	mu     sync.Mutex
	active map[string]*Capability
}

// NewManager creates a capability manager backed by the given store
func NewManager(store *Store, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Manager{
		store:  store,
		logger: logger,
		active: make(map[string]*Capability),
	}
}

// Acquire obtains a capability for path. An already-active non-stale
// capability is returned as-is. A persisted capability is revalidated
// against the current volume identity; if the volume changed, a fresh
// token is re-derived from the same logical path rather than reusing
// the stale one.
func (m *Manager) Acquire(path string) (*Capability, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve path %q: %v", ErrDenied, path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cap, ok := m.active[abs]; ok && !cap.Stale {
		return cap, nil
	}

	volumeID, err := volumeIdentity(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDenied, abs, err)
	}

	if m.store != nil {
		stored, err := m.store.Get(abs)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			if stored.VolumeID == volumeID {
				m.active[abs] = stored
				return stored, nil
			}
			stored.Stale = true
			m.logger.Warn(context.Background(), "stored capability is stale, re-deriving", logging.Fields{
				"path": abs,
			})
		}
	}

	cap := &Capability{
		Path:     abs,
		Token:    mintToken(),
		VolumeID: volumeID,
		IssuedAt: time.Now().UTC(),
	}

	if m.store != nil {
		if err := m.store.Put(cap); err != nil {
			return nil, err
		}
	}

	m.active[abs] = cap
	m.logger.Debug(context.Background(), "capability acquired", logging.Fields{
		"path": abs,
	})
	return cap, nil
}

// Validate proves a capability still works with an acquire-use-release
// cycle: an open-for-read probe on files, a create-and-delete probe on
// directories. The probe never leaks access beyond the call.
func (m *Manager) Validate(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if !info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		f.Close()
		return true
	}

	probe := filepath.Join(path, ".offload-probe-"+uuid.New().String()[:8])
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

// Release relinquishes the active grant for the current operation.
// The persisted token survives; a later Acquire re-opens the grant.
func (m *Manager) Release(cap *Capability) {
	if cap == nil {
		return
	}
	m.mu.Lock()
	delete(m.active, cap.Path)
	m.mu.Unlock()
}

// Forget drops both the active grant and the persisted token for a path
func (m *Manager) Forget(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.active, abs)
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Delete(abs)
	}
	return nil
}

// mintToken produces a fresh opaque token
func mintToken() []byte {
	id := uuid.New()
	return id[:]
}

// volumeIdentity fingerprints the volume a path lives on. The fingerprint
// combines the anchor directory's path and modification time; a remounted
// or replaced volume produces a different fingerprint. Probing via
// Validate covers cases the fingerprint cannot.
func volumeIdentity(path string) (string, error) {
	anchor := path
	info, err := os.Stat(anchor)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		anchor = filepath.Dir(anchor)
		info, err = os.Stat(anchor)
		if err != nil {
			return "", err
		}
	}

	h := sha1.New()
	fmt.Fprintf(h, "%s|%d", anchor, info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
