// Package registry tracks the admins currently authenticated against a
// running server. It is the only in-process state shared across connections;
// every read-modify-write happens under a single lock so no caller ever sees
// a half-updated roster.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"seminarhub/internal/store"
	"seminarhub/pkg/domain"
)

var (
	// ErrAuthConflict reports a login for an admin who already holds a session.
	ErrAuthConflict = errors.New("admin is already logged in")
	// ErrInvalidCredentials reports a failed username or password check.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// AdminStore is the lookup the registry needs from the persistence layer.
type AdminStore interface {
	AdminByUsername(ctx context.Context, username string) (*domain.Admin, error)
}

// Session is one authenticated admin connection.
type Session struct {
	Handle  string
	Admin   *domain.Admin
	LoginAt time.Time
}

// Registry is the process-wide roster of authenticated admins. Its lifetime
// is the server's: created at start, cleared at stop. It is an owned value
// handed to the supervisor, not a package singleton, so independent server
// instances can coexist in tests.
type Registry struct {
	admins AdminStore
	log    *zap.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session // admin ID -> session
	byHandle map[string]int64

	activeGauge prometheus.Gauge
	notify      func([]*Session)
}

// New creates an empty registry. The prometheus registerer receives the
// active-admins gauge; pass a fresh registry per server instance.
func New(admins AdminStore, reg prometheus.Registerer, log *zap.Logger) *Registry {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seminarhub_active_admins",
		Help: "Number of currently authenticated admin sessions.",
	})
	if reg != nil {
		reg.MustRegister(gauge)
	}
	return &Registry{
		admins:      admins,
		log:         log,
		sessions:    make(map[int64]*Session),
		byHandle:    make(map[string]int64),
		activeGauge: gauge,
	}
}

// SetNotify installs the roster-change callback. The callback runs outside
// the registry lock with a snapshot of the roster.
func (r *Registry) SetNotify(fn func([]*Session)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Login authenticates the credentials and registers the admin. At most one
// concurrent session exists per admin: under concurrent logins for the same
// account exactly one wins, the rest get ErrAuthConflict. The credential
// check runs outside the lock; the uniqueness check and the roster insert are
// one atomic step.
func (r *Registry) Login(ctx context.Context, username, password string) (*Session, error) {
	admin, err := r.admins.AdminByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	session := &Session{
		Handle:  uuid.New().String(),
		Admin:   admin.Skeletal(),
		LoginAt: time.Now(),
	}

	r.mu.Lock()
	if _, exists := r.sessions[admin.AdminID]; exists {
		r.mu.Unlock()
		return nil, ErrAuthConflict
	}
	r.sessions[admin.AdminID] = session
	r.byHandle[session.Handle] = admin.AdminID
	r.activeGauge.Set(float64(len(r.sessions)))
	roster := r.snapshotLocked()
	notify := r.notify
	r.mu.Unlock()

	r.log.Info("admin logged in", zap.String("username", admin.Username), zap.Int("active", len(roster)))
	if notify != nil {
		notify(roster)
	}
	return session, nil
}

// Logout removes the session for the given handle. Removing an absent handle
// is a deliberate no-op; logout is idempotent.
func (r *Registry) Logout(handle string) {
	r.mu.Lock()
	adminID, ok := r.byHandle[handle]
	if !ok {
		r.mu.Unlock()
		return
	}
	session := r.sessions[adminID]
	delete(r.byHandle, handle)
	delete(r.sessions, adminID)
	r.activeGauge.Set(float64(len(r.sessions)))
	roster := r.snapshotLocked()
	notify := r.notify
	r.mu.Unlock()

	r.log.Info("admin logged out", zap.String("username", session.Admin.Username), zap.Int("active", len(roster)))
	if notify != nil {
		notify(roster)
	}
}

// ListActive returns a point-in-time snapshot of the roster, sorted by
// username.
func (r *Registry) ListActive() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Clear drops every session, used at server stop.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.sessions = make(map[int64]*Session)
	r.byHandle = make(map[string]int64)
	r.activeGauge.Set(0)
	r.mu.Unlock()
}

func (r *Registry) snapshotLocked() []*Session {
	roster := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		roster = append(roster, session)
	}
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Admin.Username < roster[j].Admin.Username
	})
	return roster
}
