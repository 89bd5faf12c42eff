package session

import (
	"sync"
	"time"

	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/packet"
)

// Identity is what is known about a client when its session is created
type Identity struct {
	IP            string
	ClientVersion string
	UTCOffset     int8
}

// Presence is the live server-side state of one connected client
type Presence struct {
	token    string
	identity Identity
	queue    Queue

	// serializes request processing for this session
	reqMu sync.Mutex

	mu       sync.RWMutex
	user     *domain.User
	status   domain.UserStatus
	stats    domain.UserStats
	channels map[string]struct{}
	attrs    map[string]any
	lastSeen time.Time
}

func newPresence(token string, identity Identity) *Presence {
	return &Presence{
		token:    token,
		identity: identity,
		channels: make(map[string]struct{}),
		attrs:    make(map[string]any),
		lastSeen: time.Now(),
	}
}

// Token returns the opaque session key
func (p *Presence) Token() string {
	return p.token
}

// Identity returns the connection details captured at creation
func (p *Presence) Identity() Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// SetClient records the client details sent with the login request
func (p *Presence) SetClient(version string, utcOffset int8) {
	p.mu.Lock()
	p.identity.ClientVersion = version
	p.identity.UTCOffset = utcOffset
	p.mu.Unlock()
}

// Queue returns the session's outbound packet queue
func (p *Presence) Queue() *Queue {
	return &p.queue
}

// Enqueue is shorthand for Queue().Enqueue
func (p *Presence) Enqueue(packets ...packet.Packet) {
	p.queue.Enqueue(packets...)
}

// Lock serializes a request against other requests for the same session
func (p *Presence) Lock() {
	p.reqMu.Lock()
}

// Unlock releases the request lock taken by Lock
func (p *Presence) Unlock() {
	p.reqMu.Unlock()
}

// User returns the bound account, nil before login completes
func (p *Presence) User() *domain.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user
}

// UserID returns the bound account id or 0
func (p *Presence) UserID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return 0
	}
	return p.user.ID
}

// Username returns the bound account name
func (p *Presence) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return ""
	}
	return p.user.Username
}

// Status returns the last status the client reported
func (p *Presence) Status() domain.UserStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetStatus records the client's current activity
func (p *Presence) SetStatus(s domain.UserStatus) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Stats returns the stats mirrored for the current mode
func (p *Presence) Stats() domain.UserStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// SetStats replaces the mirrored stats
func (p *Presence) SetStats(s domain.UserStats) {
	p.mu.Lock()
	p.stats = s
	p.mu.Unlock()
}

// Attr returns an ad-hoc cached attribute
func (p *Presence) Attr(key string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.attrs[key]
	return v, ok
}

// SetAttr stores a handler-owned value on the session
func (p *Presence) SetAttr(key string, value any) {
	p.mu.Lock()
	p.attrs[key] = value
	p.mu.Unlock()
}

// JoinChannel records channel membership, reporting whether it was new
func (p *Presence) JoinChannel(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[name]; ok {
		return false
	}
	p.channels[name] = struct{}{}
	return true
}

// LeaveChannel removes the session from a channel
func (p *Presence) LeaveChannel(name string) {
	p.mu.Lock()
	delete(p.channels, name)
	p.mu.Unlock()
}

// InChannel reports whether the session joined a channel
func (p *Presence) InChannel(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.channels[name]
	return ok
}

// Touch marks the session as alive
func (p *Presence) Touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

// LastSeen returns the time of the last request
func (p *Presence) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// PresenceCard builds the UserPresence packet payload for this session
func (p *Presence) PresenceCard() packet.Presence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	card := packet.Presence{
		Timezone: p.identity.UTCOffset,
		Mode:     p.status.Mode,
		Rank:     int32(p.stats.Position),
	}
	if p.user != nil {
		card.UserID = int32(p.user.ID)
		card.Username = p.user.Username
		card.Country = p.user.Country
		card.Privileges = uint8(p.user.Privileges)
	}
	return card
}

// StatsPacket builds the UserStats packet for this session
func (p *Presence) StatsPacket() packet.Packet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var id int32
	if p.user != nil {
		id = int32(p.user.ID)
	}
	return packet.UserStats(id, p.status, p.stats)
}
