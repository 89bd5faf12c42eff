package bancho

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bancho-server/internal/auth"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/memstore"
	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/service"
	"github.com/bancho-server/internal/session"
	"golang.org/x/crypto/bcrypt"
)

type recordingSink struct {
	mu  sync.Mutex
	got []domain.Announcement
}

func (s *recordingSink) BroadcastAnnouncement(a domain.Announcement) {
	s.mu.Lock()
	s.got = append(s.got, a)
	s.mu.Unlock()
}

type harness struct {
	store    *memstore.Store
	sessions *session.Registry
	bus      *events.Bus
	handlers *Handlers
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()

	store := memstore.New()
	sessions := session.NewRegistry(logger)
	bus := events.NewBus(logger)
	ranking := service.NewRankingService(store, store, memstore.NewIndex(), logger)
	sink := &recordingSink{}
	h := NewHandlers(sessions, auth.NewService(store), ranking, bus, sink, &cfg.Bancho, logger)
	h.Register(bus)

	for _, name := range []string{"Alice", "Bob"} {
		hash, err := auth.HashPasswordCost(auth.MD5Hex(name+"-pw"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hashing password: %v", err)
		}
		if err := store.CreateUser(context.Background(), &domain.User{Username: name, PasswordHash: hash}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
	return &harness{store: store, sessions: sessions, bus: bus, handlers: h, sink: sink}
}

func (h *harness) login(t *testing.T, name, password string) (*session.Presence, []packet.Packet) {
	t.Helper()
	pr := h.sessions.Create(session.Identity{IP: "127.0.0.1"})
	reply := packet.NewWriter()
	body := name + "\n" + auth.MD5Hex(password) + "\nb20240101|2|0|hashes|0\n"
	err := h.bus.Publish(context.Background(), events.NewLoginRequest(events.LoginRequest{
		Presence: pr,
		Body:     []byte(body),
		Reply:    reply,
	}))
	if err != nil {
		t.Fatalf("publishing login: %v", err)
	}
	packets, err := packet.DecodeAll(reply.Bytes())
	if err != nil {
		t.Fatalf("decoding login reply: %v", err)
	}
	return pr, packets
}

func (h *harness) send(t *testing.T, pr *session.Presence, p packet.Packet) {
	t.Helper()
	err := h.bus.Publish(context.Background(), events.NewPacketReceived(events.PacketReceived{Presence: pr, Packet: p}))
	if err != nil {
		t.Fatalf("publishing packet: %v", err)
	}
}

func drained(t *testing.T, pr *session.Presence) []packet.Packet {
	t.Helper()
	packets, err := packet.DecodeAll(pr.Queue().Drain())
	if err != nil {
		t.Fatalf("decoding queue: %v", err)
	}
	return packets
}

func ids(packets []packet.Packet) []packet.ID {
	out := make([]packet.ID, len(packets))
	for i, p := range packets {
		out[i] = p.ID
	}
	return out
}

func readInt32(t *testing.T, p packet.Packet) int32 {
	t.Helper()
	r, err := p.Reader()
	if err != nil {
		t.Fatal(err)
	}
	v, err := r.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestParseLogin(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    LoginForm
		wantErr bool
	}{
		{
			name: "full",
			body: "Alice\nabc\nb20240101|-5|1|x:y|1\n",
			want: LoginForm{Username: "Alice", PasswordMD5: "abc", ClientVersion: "b20240101", UTCOffset: -5, DisplayCity: true, ClientHashes: "x:y", BlockNonFriendPM: true},
		},
		{
			name: "crlf and short info",
			body: "Alice\r\nabc\r\nb1\r\n",
			want: LoginForm{Username: "Alice", PasswordMD5: "abc", ClientVersion: "b1"},
		},
		{name: "missing lines", body: "Alice\n", wantErr: true},
		{name: "empty password", body: "Alice\n\nb1\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogin([]byte(tt.body))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLogin() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLogin() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLogin() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoginHandshake(t *testing.T) {
	h := newHarness(t)
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, bob)

	alice, reply := h.login(t, "Alice", "Alice-pw")
	if len(reply) < 2 {
		t.Fatalf("reply = %v", ids(reply))
	}
	if reply[0].ID != packet.ServerProtocolNegotiation || readInt32(t, reply[0]) != 19 {
		t.Errorf("first packet = %v", reply[0].ID)
	}
	if reply[1].ID != packet.ServerLoginReply || int64(readInt32(t, reply[1])) != alice.UserID() {
		t.Errorf("second packet = %v", reply[1].ID)
	}

	joined := 0
	sawBob := false
	for _, p := range reply {
		switch p.ID {
		case packet.ServerChannelJoinSuccess:
			joined++
		case packet.ServerUserPresence:
			if readInt32(t, p) == int32(bob.UserID()) {
				sawBob = true
			}
		}
	}
	if joined != 2 {
		t.Errorf("joined %d channels, want 2", joined)
	}
	if !sawBob {
		t.Error("reply does not include presence of the online user")
	}
	if !alice.InChannel("#osu") || !alice.InChannel("#announce") {
		t.Error("session not joined to default channels")
	}
	if alice.Queue().Len() != 0 {
		t.Errorf("new session queue has %d packets, want 0", alice.Queue().Len())
	}

	got := ids(drained(t, bob))
	if len(got) != 2 || got[0] != packet.ServerUserPresence || got[1] != packet.ServerUserStats {
		t.Errorf("other session received %v", got)
	}
	if s := alice.Stats(); s.Position != 1 {
		t.Errorf("stats position = %d, want 1", s.Position)
	}
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)
	for _, tc := range []struct{ name, user, pass string }{
		{"wrong password", "Alice", "nope"},
		{"unknown user", "Carol", "Carol-pw"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pr, reply := h.login(t, tc.user, tc.pass)
			if len(reply) != 1 || reply[0].ID != packet.ServerLoginReply || readInt32(t, reply[0]) != packet.LoginFailed {
				t.Fatalf("reply = %v", ids(reply))
			}
			if _, ok := h.sessions.Lookup(pr.Token()); ok {
				t.Error("rejected session still registered")
			}
		})
	}
}

func TestLoginNotBoundOnceAbandoned(t *testing.T) {
	body := []byte("Alice\n" + auth.MD5Hex("Alice-pw") + "\nb20240101|2|0|hashes|0\n")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tc := range []struct {
		name    string
		ctx     context.Context
		removed bool
	}{
		{"context ended", cancelled, false},
		{"session removed", context.Background(), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			pr := h.sessions.Create(session.Identity{IP: "127.0.0.1"})
			if tc.removed {
				h.sessions.Remove(pr.Token())
			}
			reply := packet.NewWriter()
			_ = h.bus.Publish(tc.ctx, events.NewLoginRequest(events.LoginRequest{Presence: pr, Body: body, Reply: reply}))

			packets, err := packet.DecodeAll(reply.Bytes())
			if err != nil {
				t.Fatal(err)
			}
			if len(packets) != 1 || readInt32(t, packets[0]) != packet.LoginServerError {
				t.Fatalf("reply = %v", ids(packets))
			}
			if n := len(h.sessions.Snapshot()); n != 0 {
				t.Errorf("%d sessions online after an abandoned login", n)
			}
			if _, ok := h.sessions.Lookup(pr.Token()); ok {
				t.Error("abandoned session still registered")
			}
		})
	}
}

func TestSecondLoginReplacesSession(t *testing.T) {
	h := newHarness(t)
	first, _ := h.login(t, "Alice", "Alice-pw")
	second, _ := h.login(t, "Alice", "Alice-pw")

	if _, ok := h.sessions.Lookup(first.Token()); ok {
		t.Error("older session still registered")
	}
	if got, ok := h.sessions.LookupUser(second.UserID()); !ok || got != second {
		t.Error("user does not resolve to the newer session")
	}
}

func TestPublicMessageRelay(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, alice)

	h.send(t, alice, packet.PublicMessage(packet.Message{Text: "hello", Target: "#osu"}))
	got := drained(t, bob)
	if len(got) != 1 || got[0].ID != packet.ServerSendMessage {
		t.Fatalf("bob received %v", ids(got))
	}
	r, _ := got[0].Reader()
	msg, err := packet.ReadMessage(r)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender != "Alice" || msg.Text != "hello" || int64(msg.SenderID) != alice.UserID() {
		t.Errorf("message = %+v", msg)
	}
	if alice.Queue().Len() != 0 {
		t.Error("sender received its own message")
	}

	bob.LeaveChannel("#osu")
	h.send(t, alice, packet.PublicMessage(packet.Message{Text: "anyone?", Target: "#osu"}))
	h.send(t, alice, packet.PublicMessage(packet.Message{Text: "sneaky", Target: "#secret"}))
	if bob.Queue().Len() != 0 {
		t.Errorf("bob received %d packets after leaving", bob.Queue().Len())
	}
}

func TestChangeActionBroadcastsStats(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, alice)

	h.send(t, alice, packet.ChangeAction(domain.UserStatus{Action: domain.ActionPlaying, ActionText: "a map", Mode: domain.ModeTaiko}))

	if alice.Status().Mode != domain.ModeTaiko || alice.Stats().Mode != domain.ModeTaiko {
		t.Errorf("status = %+v stats = %+v", alice.Status(), alice.Stats())
	}
	for _, pr := range []*session.Presence{alice, bob} {
		got := drained(t, pr)
		if len(got) != 1 || got[0].ID != packet.ServerUserStats || int64(readInt32(t, got[0])) != alice.UserID() {
			t.Errorf("session %s received %v", pr.Username(), ids(got))
		}
	}
}

func TestStatsRequests(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, alice)

	h.send(t, alice, packet.StatsRequest([]int32{int32(bob.UserID()), 999}))
	got := drained(t, alice)
	if len(got) != 1 || int64(readInt32(t, got[0])) != bob.UserID() {
		t.Fatalf("alice received %v", ids(got))
	}
	if bob.Queue().Len() != 0 {
		t.Error("targeted stats request reached other sessions")
	}

	h.send(t, alice, packet.New(packet.ClientRequestStatusUpdate, nil))
	got = drained(t, alice)
	if len(got) != 1 || int64(readInt32(t, got[0])) != alice.UserID() {
		t.Fatalf("status update = %v", ids(got))
	}
}

func TestExitBroadcastsLogout(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, bob)

	h.send(t, alice, packet.New(packet.ClientExit, nil))
	if _, ok := h.sessions.Lookup(alice.Token()); ok {
		t.Fatal("session still registered after exit")
	}
	got := drained(t, bob)
	if len(got) != 1 || got[0].ID != packet.ServerUserLogout || int64(readInt32(t, got[0])) != alice.UserID() {
		t.Fatalf("bob received %v", ids(got))
	}
}

func TestChannelJoinAndPart(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")

	channel := func(id packet.ID, name string) packet.Packet {
		return packet.Build(id, func(w *packet.Writer) { w.WriteString(name) })
	}

	h.send(t, alice, channel(packet.ClientChannelPart, "#osu"))
	if alice.InChannel("#osu") {
		t.Fatal("still in #osu after part")
	}
	h.send(t, alice, channel(packet.ClientChannelJoin, "#osu"))
	h.send(t, alice, channel(packet.ClientChannelJoin, "#nowhere"))

	got := ids(drained(t, alice))
	want := []packet.ID{packet.ServerChannelJoinSuccess, packet.ServerChannelRevoked}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("received %v, want %v", got, want)
	}
	if !alice.InChannel("#osu") || alice.InChannel("#nowhere") {
		t.Error("channel membership wrong")
	}
}

func TestAnnounceReachesChannelAndSink(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.login(t, "Alice", "Alice-pw")
	bob, _ := h.login(t, "Bob", "Bob-pw")
	drained(t, alice)
	bob.LeaveChannel("#announce")

	err := h.bus.Publish(context.Background(), events.NewAnnounce(domain.Announcement{Channel: "#announce", Message: "hi"}))
	if err != nil {
		t.Fatal(err)
	}
	got := drained(t, alice)
	if len(got) != 1 || got[0].ID != packet.ServerSendMessage {
		t.Fatalf("alice received %v", ids(got))
	}
	if bob.Queue().Len() != 0 {
		t.Error("announcement reached a session outside the channel")
	}
	if len(h.sink.got) != 1 || h.sink.got[0].Message != "hi" {
		t.Errorf("sink = %+v", h.sink.got)
	}
}
