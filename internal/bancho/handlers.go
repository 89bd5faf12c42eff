// Package bancho holds the event handlers that implement the client protocol:
// the login handshake, inbound packets, stats delivery and announcements.
package bancho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/session"
	"github.com/finnbear/moderation"
)

// Authenticator verifies login credentials
type Authenticator interface {
	Authenticate(ctx context.Context, username, passwordMD5 string) (*domain.User, error)
}

// StatsSource builds the live stats of a user for one mode
type StatsSource interface {
	UserStats(ctx context.Context, userID int64, mode domain.PlayMode) (domain.UserStats, error)
}

// AnnouncementSink receives announcements for delivery outside bancho, e.g. the live feed
type AnnouncementSink interface {
	BroadcastAnnouncement(a domain.Announcement)
}

// Handlers implements the protocol on top of the event bus
type Handlers struct {
	sessions *session.Registry
	auth     Authenticator
	stats    StatsSource
	events   events.Publisher
	sink     AnnouncementSink
	config   *config.BanchoConfig
	logger   *slog.Logger
}

// NewHandlers creates the protocol handlers. sink may be nil.
func NewHandlers(
	sessions *session.Registry,
	auth Authenticator,
	stats StatsSource,
	publisher events.Publisher,
	sink AnnouncementSink,
	cfg *config.BanchoConfig,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		sessions: sessions,
		auth:     auth,
		stats:    stats,
		events:   publisher,
		sink:     sink,
		config:   cfg,
		logger:   logger,
	}
}

// Register subscribes every handler to its event kind
func (h *Handlers) Register(bus *events.Bus) {
	bus.Subscribe(events.KindLoginRequest, h.handleLogin)
	bus.Subscribe(events.KindPacketReceived, h.handlePacket)
	bus.Subscribe(events.KindStatsRequest, h.handleStatsRequest)
	bus.Subscribe(events.KindSendStatus, h.handleSendStatus)
	bus.Subscribe(events.KindAnnounce, h.handleAnnounce)
}

func (h *Handlers) handleLogin(ctx context.Context, ev events.Event) error {
	req := ev.Login
	pr := req.Presence

	form, err := ParseLogin(req.Body)
	if err != nil {
		h.rejectLogin(req, packet.LoginFailed)
		return err
	}

	user, err := h.auth.Authenticate(ctx, form.Username, form.PasswordMD5)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.logger.Info("login rejected", "username", form.Username, "ip", pr.Identity().IP)
			h.rejectLogin(req, packet.LoginFailed)
			return nil
		}
		h.rejectLogin(req, packet.LoginServerError)
		return fmt.Errorf("authenticating %q: %w", form.Username, err)
	}

	pr.SetClient(form.ClientVersion, form.UTCOffset)
	stats, err := h.stats.UserStats(ctx, user.ID, domain.ModeOsu)
	if err != nil {
		h.rejectLogin(req, packet.LoginServerError)
		return fmt.Errorf("loading stats for user %d: %w", user.ID, err)
	}
	pr.SetStats(stats)
	pr.Touch()

	if err := ctx.Err(); err != nil {
		h.rejectLogin(req, packet.LoginServerError)
		return fmt.Errorf("login of user %d abandoned: %w", user.ID, err)
	}
	replaced, err := h.sessions.Bind(pr, user)
	if err != nil {
		h.rejectLogin(req, packet.LoginServerError)
		return err
	}
	if replaced != nil {
		h.logger.Info("older session replaced", "user_id", user.ID, "token", replaced.Token())
	}

	out := []packet.Packet{
		packet.ProtocolNegotiation(h.config.ProtocolVersion),
		packet.LoginReply(int32(user.ID)),
		packet.LoginPermissions(user.Privileges),
		packet.UserPresence(pr.PresenceCard()),
		pr.StatsPacket(),
	}
	for _, ch := range h.config.Channels {
		pr.JoinChannel(ch)
		out = append(out, packet.ChannelJoinSuccess(ch))
	}
	out = append(out, packet.ChannelListingDone())
	for _, other := range h.sessions.Snapshot() {
		if other == pr {
			continue
		}
		out = append(out, packet.UserPresence(other.PresenceCard()), other.StatsPacket())
	}
	for _, p := range out {
		p.EncodeTo(req.Reply)
	}

	h.sessions.Broadcast(pr, packet.UserPresence(pr.PresenceCard()), pr.StatsPacket())

	h.logger.Info("user logged in",
		"user_id", user.ID,
		"username", user.Username,
		"client", form.ClientVersion,
		"online", h.sessions.Len(),
	)
	return nil
}

func (h *Handlers) rejectLogin(req *events.LoginRequest, code int32) {
	packet.LoginReply(code).EncodeTo(req.Reply)
	h.sessions.Remove(req.Presence.Token())
}

func (h *Handlers) handlePacket(ctx context.Context, ev events.Event) error {
	pr, p := ev.Packet.Presence, ev.Packet.Packet

	switch p.ID {
	case packet.ClientChangeAction:
		return h.changeAction(ctx, pr, p)
	case packet.ClientRequestStatusUpdate:
		return h.events.Publish(ctx, events.NewSendStatus(events.SendStatus{Presence: pr}))
	case packet.ClientUserStatsRequest:
		return h.statsRequest(ctx, pr, p)
	case packet.ClientUserPresenceRequest:
		return h.presenceRequest(pr, p)
	case packet.ClientPong:
		pr.Touch()
	case packet.ClientExit:
		h.Logout(pr)
	case packet.ClientSendPublicMessage:
		return h.publicMessage(pr, p)
	case packet.ClientChannelJoin:
		return h.channelJoin(pr, p)
	case packet.ClientChannelPart:
		return h.channelPart(pr, p)
	default:
		h.logger.Debug("unhandled packet", "id", p.ID.String(), "user_id", pr.UserID(), "length", len(p.Payload))
	}
	return nil
}

func (h *Handlers) changeAction(ctx context.Context, pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	status, err := packet.ReadStatus(r)
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}
	pr.SetStatus(status)

	if pr.Stats().Mode != status.Mode || pr.Stats().Position == 0 {
		stats, err := h.stats.UserStats(ctx, pr.UserID(), status.Mode)
		if err != nil {
			return fmt.Errorf("loading %s stats: %w", status.Mode, err)
		}
		pr.SetStats(stats)
	}

	return h.events.Publish(ctx, events.NewStatsRequest(events.StatsRequest{
		Presence:  pr,
		UserIDs:   []int64{pr.UserID()},
		Broadcast: true,
	}))
}

func (h *Handlers) statsRequest(ctx context.Context, pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	ids, err := r.ReadInt32List()
	if err != nil {
		return fmt.Errorf("reading stats request: %w", err)
	}
	userIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		if int64(id) != pr.UserID() {
			userIDs = append(userIDs, int64(id))
		}
	}
	if len(userIDs) == 0 {
		return nil
	}
	return h.events.Publish(ctx, events.NewStatsRequest(events.StatsRequest{
		Presence: pr,
		UserIDs:  userIDs,
	}))
}

func (h *Handlers) presenceRequest(pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	ids, err := r.ReadInt32List()
	if err != nil {
		return fmt.Errorf("reading presence request: %w", err)
	}
	for _, id := range ids {
		if other, ok := h.sessions.LookupUser(int64(id)); ok {
			pr.Enqueue(packet.UserPresence(other.PresenceCard()))
		}
	}
	return nil
}

// Logout removes the session and tells everyone else the user left
func (h *Handlers) Logout(pr *session.Presence) {
	if _, ok := h.sessions.Remove(pr.Token()); !ok {
		return
	}
	if id := pr.UserID(); id != 0 {
		h.sessions.Broadcast(pr, packet.UserLogout(int32(id)))
		h.logger.Info("user logged out", "user_id", id, "online", h.sessions.Len())
	}
}

func (h *Handlers) publicMessage(pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	msg, err := packet.ReadMessage(r)
	if err != nil {
		return fmt.Errorf("reading message: %w", err)
	}
	if msg.Text == "" || !pr.InChannel(msg.Target) {
		return nil
	}

	text := msg.Text
	if result := moderation.Scan(text); result.Is(moderation.Inappropriate) {
		text, _ = moderation.Censor(text, moderation.Inappropriate)
		h.logger.Info("censored chat message", "user_id", pr.UserID(), "channel", msg.Target)
	}

	out := packet.SendMessage(packet.Message{
		Sender:   pr.Username(),
		Text:     text,
		Target:   msg.Target,
		SenderID: int32(pr.UserID()),
	})
	h.toChannel(msg.Target, pr, out)
	return nil
}

func (h *Handlers) channelJoin(pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	name, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("reading channel: %w", err)
	}
	if !slices.Contains(h.config.Channels, name) {
		pr.Enqueue(packet.ChannelRevoked(name))
		return nil
	}
	pr.JoinChannel(name)
	pr.Enqueue(packet.ChannelJoinSuccess(name))
	return nil
}

func (h *Handlers) channelPart(pr *session.Presence, p packet.Packet) error {
	r, err := p.Reader()
	if err != nil {
		return err
	}
	name, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("reading channel: %w", err)
	}
	pr.LeaveChannel(name)
	return nil
}

func (h *Handlers) handleStatsRequest(_ context.Context, ev events.Event) error {
	req := ev.Stats
	packets := make([]packet.Packet, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		if other, ok := h.sessions.LookupUser(id); ok {
			packets = append(packets, other.StatsPacket())
		}
	}
	if len(packets) == 0 {
		return nil
	}
	if req.Broadcast {
		h.sessions.Broadcast(nil, packets...)
		return nil
	}
	req.Presence.Enqueue(packets...)
	return nil
}

func (h *Handlers) handleSendStatus(_ context.Context, ev events.Event) error {
	pr := ev.Status.Presence
	pr.Enqueue(pr.StatsPacket())
	return nil
}

func (h *Handlers) handleAnnounce(_ context.Context, ev events.Event) error {
	a := ev.Announce.Announcement
	h.toChannel(a.Channel, nil, packet.SendMessage(packet.Message{
		Sender:   h.config.BotName,
		Text:     a.Message,
		Target:   a.Channel,
		SenderID: h.config.BotID,
	}))
	if h.sink != nil {
		h.sink.BroadcastAnnouncement(a)
	}
	h.logger.Info("announcement sent", "channel", a.Channel)
	return nil
}

// toChannel enqueues p on every member of channel except skip
func (h *Handlers) toChannel(channel string, skip *session.Presence, p packet.Packet) {
	for _, other := range h.sessions.Snapshot() {
		if other != skip && other.InChannel(channel) {
			other.Enqueue(p)
		}
	}
}
