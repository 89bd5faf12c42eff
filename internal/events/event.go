// Package events dispatches protocol and domain events to subscribed handlers.
package events

import (
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/session"
)

// Kind tags an Event and selects its handler list
type Kind uint8

const (
	KindLoginRequest Kind = iota
	KindPacketReceived
	KindStatsRequest
	KindSendStatus
	KindAnnounce
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindLoginRequest:
		return "login_request"
	case KindPacketReceived:
		return "packet_received"
	case KindStatsRequest:
		return "stats_request"
	case KindSendStatus:
		return "send_status"
	case KindAnnounce:
		return "announce"
	}
	return "unknown"
}

// LoginRequest carries a login body for a freshly created session.
// Handlers write the handshake into Reply; it is returned in the login response.
type LoginRequest struct {
	Presence *session.Presence
	Body     []byte
	Reply    *packet.Writer
}

// PacketReceived carries one decoded packet from an authenticated session
type PacketReceived struct {
	Presence *session.Presence
	Packet   packet.Packet
}

// StatsRequest asks for the stats of UserIDs to be delivered.
// With Broadcast set they go to every session, otherwise to Presence only.
type StatsRequest struct {
	Presence  *session.Presence
	UserIDs   []int64
	Broadcast bool
}

// SendStatus delivers a session's own stats back to itself
type SendStatus struct {
	Presence *session.Presence
}

// Announce posts a server message to a public channel
type Announce struct {
	Announcement domain.Announcement
}

// Event is a tagged union. Exactly the field matching Kind is set.
type Event struct {
	Kind Kind

	Login    *LoginRequest
	Packet   *PacketReceived
	Stats    *StatsRequest
	Status   *SendStatus
	Announce *Announce
}

func NewLoginRequest(p LoginRequest) Event {
	return Event{Kind: KindLoginRequest, Login: &p}
}

func NewPacketReceived(p PacketReceived) Event {
	return Event{Kind: KindPacketReceived, Packet: &p}
}

func NewStatsRequest(p StatsRequest) Event {
	return Event{Kind: KindStatsRequest, Stats: &p}
}

func NewSendStatus(p SendStatus) Event {
	return Event{Kind: KindSendStatus, Status: &p}
}

func NewAnnounce(a domain.Announcement) Event {
	return Event{Kind: KindAnnounce, Announce: &Announce{Announcement: a}}
}
