// Package session keeps the token-keyed registry of connected clients.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/packet"
	"github.com/google/uuid"
)

// Registry maps opaque tokens to live sessions. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byTok  map[string]*Presence
	byUser map[int64]*Presence
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byTok:  make(map[string]*Presence),
		byUser: make(map[int64]*Presence),
		logger: logger,
	}
}

// Create registers a new session and returns it. Its token is never reused.
func (r *Registry) Create(identity Identity) *Presence {
	p := newPresence(uuid.NewString(), identity)

	r.mu.Lock()
	r.byTok[p.token] = p
	r.mu.Unlock()

	r.logger.Debug("session created", "token", p.token, "ip", identity.IP)
	return p
}

// Bind attaches an authenticated user to a session. An older session of the same
// user is removed and returned so the caller can announce its logout. A session
// that was already removed cannot be bound.
func (r *Registry) Bind(p *Presence, user *domain.User) (replaced *Presence, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byTok[p.token]; !ok || cur != p {
		return nil, fmt.Errorf("binding user %d: %w", user.ID, domain.ErrSessionNotFound)
	}

	p.mu.Lock()
	p.user = user
	p.mu.Unlock()

	if old, ok := r.byUser[user.ID]; ok && old != p {
		delete(r.byTok, old.token)
		replaced = old
	}
	r.byUser[user.ID] = p
	return replaced, nil
}

// Lookup finds a session by token. A miss means the caller is unauthenticated.
func (r *Registry) Lookup(token string) (*Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byTok[token]
	return p, ok
}

// LookupUser finds the session bound to a user id
func (r *Registry) LookupUser(userID int64) (*Presence, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byUser[userID]
	return p, ok
}

// Remove deletes a session; unknown tokens are ignored
func (r *Registry) Remove(token string) (*Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byTok[token]
	if !ok {
		return nil, false
	}
	delete(r.byTok, token)
	if id := p.UserID(); id != 0 && r.byUser[id] == p {
		delete(r.byUser, id)
	}
	return p, true
}

// Len returns the number of sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTok)
}

// Snapshot returns the authenticated sessions at the time of the call
func (r *Registry) Snapshot() []*Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Presence, 0, len(r.byUser))
	for _, p := range r.byUser {
		out = append(out, p)
	}
	return out
}

// Broadcast enqueues packets on every authenticated session except skip
func (r *Registry) Broadcast(skip *Presence, packets ...packet.Packet) {
	w := packet.NewWriter()
	for _, p := range packets {
		p.EncodeTo(w)
	}
	wire := w.Bytes()
	for _, p := range r.Snapshot() {
		if p == skip {
			continue
		}
		p.queue.EnqueueRaw(wire, len(packets))
	}
}

// Expired removes and returns sessions idle for longer than maxIdle
func (r *Registry) Expired(maxIdle time.Duration) []*Presence {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []*Presence
	for tok, p := range r.byTok {
		if p.LastSeen().After(cutoff) {
			continue
		}
		delete(r.byTok, tok)
		if id := p.UserID(); id != 0 && r.byUser[id] == p {
			delete(r.byUser, id)
		}
		expired = append(expired, p)
	}
	return expired
}
