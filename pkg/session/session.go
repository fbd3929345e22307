// Package session holds the per-session intake state: the pending photo
// collections and flow flags. Each browser session owns its state exclusively;
// it is created on first interaction, mutated only by the entry form and the
// upload orchestrator, and discarded on reset or expiry.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcervantes/foliofotos/internal/util"
)

// DefaultTTL is how long an idle session survives before it is discarded.
const DefaultTTL = 2 * time.Hour

// PhotoItem is one pending photo as captured or selected: the raw bytes plus
// what little metadata the client declared about them.
type PhotoItem struct {
	Bytes []byte

	// declared media type, may be empty
	Mime string

	// original filename, may be empty for camera captures
	Name string

	// pipeline.SourceUpload or pipeline.SourceCamera
	Source string
}

// Result records the outcome of a completed submission for the confirmation
// screen: the folio, how many photos were newly stored (duplicates excluded),
// and the normalized preview bytes of everything processed.
type Result struct {
	Folio    string
	Uploaded int
	Previews [][]byte

	// non-fatal degradations surfaced on the confirmation screen
	Warnings []string
}

// Session is the mutable state of a single intake flow.
type Session struct {
	ID string

	mu      sync.Mutex
	touched time.Time

	gallery []PhotoItem
	camera  []PhotoItem

	// non-nil once a submission has completed; drives the confirmation screen
	result *Result

	// true once the user advances to the terminal closing screen
	closing bool
}

// AddGallery appends photos selected from the device gallery, preserving
// selection order.
func (s *Session) AddGallery(items ...PhotoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gallery = append(s.gallery, items...)
}

// AddCamera appends a live camera capture, preserving capture order.
func (s *Session) AddCamera(item PhotoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.camera = append(s.camera, item)
}

// ClearCamera drops the pending camera captures, leaving gallery items alone.
func (s *Session) ClearCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.camera = nil
}

// Pending returns the photos awaiting submission in their stable processing
// order: gallery items in selection order, then camera items in capture order.
func (s *Session) Pending() []PhotoItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]PhotoItem, 0, len(s.gallery)+len(s.camera))
	items = append(items, s.gallery...)
	items = append(items, s.camera...)

	return items
}

// PendingCounts returns the number of pending gallery and camera photos.
func (s *Session) PendingCounts() (gallery, camera int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.gallery), len(s.camera)
}

// Complete records a submission result and clears the pending collections.
func (s *Session) Complete(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.result = r
	s.gallery = nil
	s.camera = nil
}

// Result returns the recorded submission outcome, or nil if none completed.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.result
}

// Close advances the session to the terminal closing screen.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closing = true
}

// IsClosing reports whether the session reached the terminal screen.
func (s *Session) IsClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

// Reset returns the session to the entry screen with nothing pending.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gallery = nil
	s.camera = nil
	s.result = nil
	s.closing = false
}

// Store is the interface for session lookup and lifecycle.
type Store interface {

	// Fetch returns the live session for the id, or false if the id is
	// unknown or the session has expired.
	Fetch(id string) (*Session, bool)

	// Create registers a new empty session with a fresh id.
	Create() *Session

	// Delete discards the session for the id.
	Delete(id string)
}

// NewStore creates a new in-memory session store, returning a pointer to the
// concrete implementation. A ttl of zero means DefaultTTL.
func NewStore(ttl time.Duration) Store {

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &store{
		ttl:      ttl,
		sessions: make(map[string]*Session),

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackageSession)).
			With(slog.String(util.ComponentKey, util.ComponentSessionStore)),
	}
}

var _ Store = (*store)(nil)

// store is the concrete implementation of the Store interface.
type store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session

	logger *slog.Logger
}

// Fetch is the concrete implementation of the interface method.
func (st *store) Fetch(id string) (*Session, bool) {

	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}

	if time.Since(s.touched) > st.ttl {
		delete(st.sessions, id)
		return nil, false
	}

	s.touched = time.Now()

	return s, true
}

// Create is the concrete implementation of the interface method.
func (st *store) Create() *Session {

	st.mu.Lock()
	defer st.mu.Unlock()

	// opportunistically sweep expired sessions so an unattended instance
	// does not accumulate abandoned photo buffers
	for id, s := range st.sessions {
		if time.Since(s.touched) > st.ttl {
			delete(st.sessions, id)
		}
	}

	s := &Session{
		ID:      uuid.NewString(),
		touched: time.Now(),
	}
	st.sessions[s.ID] = s

	st.logger.Info("created intake session", "session_id", s.ID)

	return s
}

// Delete is the concrete implementation of the interface method.
func (st *store) Delete(id string) {

	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.sessions, id)
}
