package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bancho-server/internal/auth"
	"github.com/bancho-server/internal/bancho"
	"github.com/bancho-server/internal/cache"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/memstore"
	"github.com/bancho-server/internal/packet"
	"github.com/bancho-server/internal/replay"
	"github.com/bancho-server/internal/scoring"
	"github.com/bancho-server/internal/service"
	"github.com/bancho-server/internal/session"
	"github.com/bancho-server/internal/websocket"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const (
	rankedMD5   = "a5b99395a42bd55bc5eb1d2411cbdf8b"
	otherMD5    = "b5b99395a42bd55bc5eb1d2411cbdf8b"
	pendingMD5  = "c5b99395a42bd55bc5eb1d2411cbdf8b"
	unknownMD5  = "d5b99395a42bd55bc5eb1d2411cbdf8b"
	password    = "secret"
	clientBuild = "b20240101"
)

type fakeBeatmaps map[string]*domain.Beatmap

func (f fakeBeatmaps) ByMD5(_ context.Context, md5 string) (*domain.Beatmap, error) {
	if bm, ok := f[md5]; ok {
		c := *bm
		return &c, nil
	}
	return nil, domain.ErrBeatmapNotFound
}

// slowAuth delays every login past the dispatch deadline
type slowAuth struct {
	next  bancho.Authenticator
	delay time.Duration
}

func (a slowAuth) Authenticate(ctx context.Context, username, passwordMD5 string) (*domain.User, error) {
	time.Sleep(a.delay)
	return a.next.Authenticate(ctx, username, passwordMD5)
}

type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	store    *memstore.Store
	sessions *session.Registry
	ranking  *service.RankingService
	replays  *replay.FSStore
	bus      *events.Bus
}

// serverOptions adjust the wiring of a test server
type serverOptions struct {
	cfg       *config.Config
	loginAuth func(bancho.Authenticator) bancho.Authenticator
}

func newTestServer(t *testing.T, opts ...func(*serverOptions)) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := serverOptions{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := o.cfg

	store := memstore.New()
	sessions := session.NewRegistry(logger)
	bus := events.NewBus(logger)
	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)
	ttl := cache.NewMemory()
	ranking := service.NewRankingService(store, store, memstore.NewIndex(), logger)
	authSvc := auth.NewService(store)
	replays, err := replay.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var loginAuth bancho.Authenticator = authSvc
	if o.loginAuth != nil {
		loginAuth = o.loginAuth(authSvc)
	}
	bancho.NewHandlers(sessions, loginAuth, ranking, bus, hub, &cfg.Bancho, logger).Register(bus)

	beatmaps := fakeBeatmaps{
		rankedMD5:  {ID: 75, SetID: 1, MD5: rankedMD5, DiffName: "Normal", StarRating: 4.5, MaxCombo: 500, Title: "DISCO PRINCE", Artist: "Kenji Ninuma", Status: domain.StatusRanked},
		otherMD5:   {ID: 76, SetID: 2, MD5: otherMD5, DiffName: "Easy", StarRating: 1.5, MaxCombo: 200, Title: "Other", Status: domain.StatusRanked},
		pendingMD5: {ID: 77, SetID: 3, MD5: pendingMD5, DiffName: "Hard", StarRating: 5, MaxCombo: 900, Title: "Pending", Status: domain.StatusPending},
	}
	submissions := service.NewSubmissionService(service.SubmissionDeps{
		Decoder:  scoring.PlainDecoder{},
		Auth:     authSvc,
		Sessions: sessions,
		Ranking:  ranking,
		Scores:   store,
		Beatmaps: beatmaps,
		Scorer:   scoring.StarScorer{},
		Replays:  replays,
		Events:   bus,
		Feed:     hub,
	}, &cfg.Bancho, logger)

	h := NewHandler(Deps{
		Sessions:    sessions,
		Events:      bus,
		Submissions: submissions,
		Scoreboard:  service.NewScoreboardService(authSvc, beatmaps, store, ttl, &cfg.Ranking, logger),
		Ranking:     ranking,
		Auth:        authSvc,
		Scores:      store,
		Replays:     replays,
		Hub:         hub,
	}, cfg, logger)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	for _, name := range []string{"Alice", "Bob"} {
		hash, err := auth.HashPasswordCost(auth.MD5Hex(password), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		if err := store.CreateUser(context.Background(), &domain.User{Username: name, PasswordHash: hash}); err != nil {
			t.Fatal(err)
		}
	}

	return &testServer{t: t, srv: srv, store: store, sessions: sessions, ranking: ranking, replays: replays, bus: bus}
}

func (s *testServer) post(token string, body []byte) *http.Response {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/", bytes.NewReader(body))
	if err != nil {
		s.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("osu-token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatal(err)
	}
	return resp
}

func readPackets(t *testing.T, resp *http.Response) []packet.Packet {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	packets, err := packet.DecodeAll(body)
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return packets
}

func (s *testServer) login(name string) *session.Presence {
	s.t.Helper()
	resp := s.post("", []byte(name+"\n"+auth.MD5Hex(password)+"\n"+clientBuild+"|0|0|x|0\n"))
	token := resp.Header.Get("cho-token")
	packets := readPackets(s.t, resp)
	if token == "" || len(packets) < 2 || packets[1].ID != packet.ServerLoginReply {
		s.t.Fatalf("login of %s failed: token=%q packets=%d", name, token, len(packets))
	}
	pr, ok := s.sessions.Lookup(token)
	if !ok {
		s.t.Fatalf("token %q not registered", token)
	}
	return pr
}

func (s *testServer) submit(d *domain.ScoreDraft, pass string, replayData []byte) string {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"score":  scoring.Encode(d),
		"iv":     "aXY=",
		"osuver": "20240101",
		"pass":   pass,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			s.t.Fatal(err)
		}
	}
	if replayData != nil {
		fw, err := mw.CreateFormFile("score", "score")
		if err != nil {
			s.t.Fatal(err)
		}
		fw.Write(replayData)
	}
	if err := mw.Close(); err != nil {
		s.t.Fatal(err)
	}

	resp, err := http.Post(s.srv.URL+"/web/osu-submit-modular-selector.php", mw.FormDataContentType(), &buf)
	if err != nil {
		s.t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func draft(user, md5 string, total int64) *domain.ScoreDraft {
	d := &domain.ScoreDraft{Username: user, Passed: true, Grade: "A", ClientChecksum: "x"}
	d.BeatmapMD5 = md5
	d.Mode = domain.ModeOsu
	d.Count300 = 450
	d.Count100 = 20
	d.Count50 = 5
	d.CountMiss = 2
	d.MaxCombo = 420
	d.TotalScore = total
	return d
}

func drainIDs(t *testing.T, pr *session.Presence) []packet.ID {
	t.Helper()
	packets, err := packet.DecodeAll(pr.Queue().Drain())
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]packet.ID, len(packets))
	for i, p := range packets {
		ids[i] = p.ID
	}
	return ids
}

func count(ids []packet.ID, id packet.ID) int {
	n := 0
	for _, got := range ids {
		if got == id {
			n++
		}
	}
	return n
}

func TestLoginWithoutToken(t *testing.T) {
	s := newTestServer(t)
	resp := s.post("", []byte("Alice\n"+auth.MD5Hex(password)+"\n"+clientBuild+"|1|0|x|0\n"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("cho-protocol") != "19" {
		t.Errorf("cho-protocol = %q", resp.Header.Get("cho-protocol"))
	}
	token := resp.Header.Get("cho-token")
	packets := readPackets(t, resp)
	if token == "" {
		t.Fatal("no session token in response")
	}
	if len(packets) == 0 || packets[0].ID != packet.ServerProtocolNegotiation {
		t.Fatalf("handshake starts with %v", packets)
	}

	pr, ok := s.sessions.Lookup(token)
	if !ok {
		t.Fatal("session not registered")
	}
	if n := pr.Queue().Len(); n != 0 {
		t.Errorf("queued packets after login = %d, want 0", n)
	}
}

func TestBadLoginRemovesSession(t *testing.T) {
	s := newTestServer(t)
	resp := s.post("", []byte("Alice\n"+auth.MD5Hex("wrong")+"\n"+clientBuild+"\n"))
	token := resp.Header.Get("cho-token")
	packets := readPackets(t, resp)
	if len(packets) != 1 || packets[0].ID != packet.ServerLoginReply {
		t.Fatalf("reply = %v", packets)
	}
	if _, ok := s.sessions.Lookup(token); ok {
		t.Error("failed login left a session behind")
	}
}

func TestUnknownTokenForbidden(t *testing.T) {
	s := newTestServer(t)
	resp := s.post("not-a-token", packet.New(packet.ClientPong, nil).Encode())
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestPacketsAnsweredInOrder(t *testing.T) {
	s := newTestServer(t)
	pr := s.login("Alice")

	w := packet.NewWriter()
	packet.New(packet.ClientRequestStatusUpdate, nil).EncodeTo(w)
	packet.Build(packet.ClientChannelJoin, func(w *packet.Writer) { w.WriteString("#nowhere") }).EncodeTo(w)
	packet.New(packet.ClientPong, nil).EncodeTo(w)
	w.Write([]byte{1, 2, 3}) // trailing partial header

	got := readPackets(t, s.post(pr.Token(), w.Bytes()))
	if len(got) != 2 || got[0].ID != packet.ServerUserStats || got[1].ID != packet.ServerChannelRevoked {
		t.Fatalf("response = %v", got)
	}
	if pr.Queue().Len() != 0 {
		t.Error("queue not drained")
	}

	if got := readPackets(t, s.post(pr.Token(), nil)); len(got) != 0 {
		t.Errorf("empty poll returned %d packets", len(got))
	}
}

func TestRankedSubmissionReachesFirstPlace(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := s.login("Alice")
	bob := s.login("Bob")

	if reply := s.submit(draft("Bob", otherMD5, 500000), auth.MD5Hex(password), []byte("bob replay")); !strings.HasPrefix(reply, "beatmapId:76|") {
		t.Fatalf("bob reply = %q", reply)
	}
	drainIDs(t, alice)
	drainIDs(t, bob)

	reply := s.submit(draft("Alice", rankedMD5, 900000), auth.MD5Hex(password), []byte("alice replay"))
	lines := strings.Split(reply, "\n")
	if len(lines) != 4 || lines[0] != "beatmapId:75|beatmapSetId:1|beatmapPlaycount:0|beatmapPasscount:0|approvedDate:" {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.HasPrefix(lines[2], "chartId:beatmap|") || !strings.HasPrefix(lines[3], "chartId:overall|") {
		t.Fatalf("charts = %q / %q", lines[2], lines[3])
	}
	overall := strings.Split(lines[3], "|")
	if overall[4] != "rankAfter:1" {
		t.Errorf("overall rank after = %q, want 1", overall[4])
	}

	entry, err := s.ranking.GetOrCreateEntry(ctx, alice.UserID())
	if err != nil {
		t.Fatal(err)
	}
	if pos, err := s.ranking.GetPosition(ctx, entry, domain.ModeOsu); err != nil || pos != 0 {
		t.Fatalf("GetPosition = %d, %v; want 0", pos, err)
	}

	aliceIDs := drainIDs(t, alice)
	if n := count(aliceIDs, packet.ServerSendMessage); n != 1 {
		t.Errorf("alice received %d announcements, want 1", n)
	}
	if n := count(drainIDs(t, bob), packet.ServerSendMessage); n != 1 {
		t.Errorf("bob received %d announcements, want 1", n)
	}
	if count(aliceIDs, packet.ServerUserStats) == 0 {
		t.Error("no stats refresh after submission")
	}
	if alice.Stats().Position != 1 || alice.Stats().PerformancePoints == 0 {
		t.Errorf("session stats = %+v", alice.Stats())
	}
}

func TestUnrankedSubmissionsOnlyCountPlays(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := s.login("Alice")

	failed := draft("Alice", rankedMD5, 1000)
	failed.Passed = false
	auto := draft("Alice", rankedMD5, 2000)
	auto.Mods = domain.ModAutoplay

	for _, d := range []*domain.ScoreDraft{
		failed,
		auto,
		draft("Alice", pendingMD5, 3000),
		draft("Alice", unknownMD5, 4000),
	} {
		if reply := s.submit(d, auth.MD5Hex(password), nil); reply != service.ReplyUnranked {
			t.Fatalf("reply = %q", reply)
		}
	}

	entry, err := s.ranking.GetOrCreateEntry(ctx, alice.UserID())
	if err != nil {
		t.Fatal(err)
	}
	st := entry.Stats(domain.ModeOsu)
	if st.PlayCount != 4 || st.TotalScore != 10000 || st.RankedScore != 0 || st.PerformancePoints != 0 {
		t.Errorf("stats = %+v", st)
	}
	if n := s.store.ScoreCount(); n != 0 {
		t.Errorf("stored %d scores for unranked plays", n)
	}
}

func TestSubmissionRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)
	s.login("Alice")

	if reply := s.submit(draft("Alice", rankedMD5, 1000), auth.MD5Hex("wrong"), nil); reply != service.ReplyBadAuth {
		t.Errorf("bad password reply = %q", reply)
	}
	if reply := s.submit(draft("Bob", rankedMD5, 1000), auth.MD5Hex(password), nil); reply != service.ReplyBadAuth {
		t.Errorf("logged out user reply = %q", reply)
	}
}

func TestSupersessionAndReplayDownload(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := s.login("Alice")
	pass := auth.MD5Hex(password)

	first, second, third := []byte("first replay"), []byte("second replay"), []byte("third replay")
	s.submit(draft("Alice", rankedMD5, 5000), pass, first)
	s.submit(draft("Alice", rankedMD5, 4000), pass, second)

	best, err := s.store.BestScore(ctx, alice.UserID(), rankedMD5, domain.ModeOsu)
	if err != nil {
		t.Fatal(err)
	}
	if best.TotalScore != 5000 || s.store.ScoreCount() != 1 {
		t.Fatalf("best = %d, stored = %d", best.TotalScore, s.store.ScoreCount())
	}
	if _, err := s.replays.Open(ctx, replay.Hash(second)); err == nil {
		t.Error("replay of the discarded play was kept")
	}

	s.submit(draft("Alice", rankedMD5, 6000), pass, third)
	best, err = s.store.BestScore(ctx, alice.UserID(), rankedMD5, domain.ModeOsu)
	if err != nil {
		t.Fatal(err)
	}
	if best.TotalScore != 6000 || s.store.ScoreCount() != 1 {
		t.Fatalf("best = %d, stored = %d", best.TotalScore, s.store.ScoreCount())
	}
	if _, err := s.replays.Open(ctx, replay.Hash(first)); err == nil {
		t.Error("replay of the superseded play was kept")
	}

	url := s.srv.URL + "/web/osu-getreplay.php?c=" + strconv.FormatInt(best.ID, 10) + "&u=Alice&h="
	resp, err := http.Get(url + pass)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, third) {
		t.Errorf("download = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(url + auth.MD5Hex("wrong"))
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != service.ReplyBadAuth {
		t.Errorf("bad password download = %q", body)
	}
}

func TestRankingsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login("Alice")
	s.submit(draft("Alice", rankedMD5, 5000), auth.MD5Hex(password), nil)

	resp, err := http.Get(s.srv.URL + "/api/v1/rankings/osu?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			Mode    string                  `json:"mode"`
			Total   int64                   `json:"total"`
			Entries []domain.RankedPosition `json:"entries"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	entries := out.Data.Entries
	if !out.Success || len(entries) != 1 || entries[0].Rank != 1 || entries[0].PerformancePoints <= 0 {
		t.Errorf("rankings = %+v", out)
	}
	if out.Data.Mode != "osu" || out.Data.Total != 1 {
		t.Errorf("mode = %q, total = %d", out.Data.Mode, out.Data.Total)
	}

	resp, err = http.Get(s.srv.URL + "/api/v1/rankings/chess")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode status = %d", resp.StatusCode)
	}
}

func TestFeedStatsCountSubscribersPerMode(t *testing.T) {
	s := newTestServer(t)
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(websocket.ClientMessage{Type: websocket.MessageTypeSubscribe, Mode: "mania"}); err != nil {
		t.Fatal(err)
	}
	var ack websocket.Message
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "subscribed" {
		t.Fatalf("ack = %+v, %v", ack, err)
	}

	var out struct {
		Data struct {
			TotalConnections int            `json:"total_connections"`
			Subscribers      map[string]int `json:"subscribers"`
		} `json:"data"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(s.srv.URL + "/api/v1/ws/stats")
		if err != nil {
			t.Fatal(err)
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if out.Data.Subscribers["mania"] == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if out.Data.TotalConnections != 1 || out.Data.Subscribers["mania"] != 1 {
		t.Fatalf("stats = %+v", out.Data)
	}
	if len(out.Data.Subscribers) != 4 || out.Data.Subscribers["osu"] != 0 {
		t.Errorf("subscribers = %v", out.Data.Subscribers)
	}
}

func TestSlowLoginLeavesNoOnlineUser(t *testing.T) {
	s := newTestServer(t, func(o *serverOptions) {
		o.cfg.Bancho.PublishTimeout = 30 * time.Millisecond
		o.loginAuth = func(next bancho.Authenticator) bancho.Authenticator {
			return slowAuth{next: next, delay: 150 * time.Millisecond}
		}
	})
	alice, err := s.store.GetUserBySafeName(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	resp := s.post("", []byte("Alice\n"+auth.MD5Hex(password)+"\n"+clientBuild+"|0|0|x|0\n"))
	token := resp.Header.Get("cho-token")
	packets := readPackets(t, resp)
	if len(packets) != 1 || packets[0].ID != packet.ServerLoginReply {
		t.Fatalf("reply = %v", packets)
	}

	if _, ok := s.sessions.Lookup(token); ok {
		t.Error("timed out login left its session registered")
	}
	if _, ok := s.sessions.LookupUser(alice.ID); ok {
		t.Error("timed out login left the user online")
	}
	if n := len(s.sessions.Snapshot()); n != 0 {
		t.Errorf("snapshot has %d sessions", n)
	}
	if n := len(s.sessions.Expired(0)); n != 0 {
		t.Errorf("reaper found %d leftover sessions", n)
	}
}

func (s *testServer) scoreboard(query string) string {
	s.t.Helper()
	resp, err := http.Get(s.srv.URL + "/web/osu-osz2-getscores.php?" + query)
	if err != nil {
		s.t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatal(err)
	}
	return string(body)
}

func TestScoreboard(t *testing.T) {
	s := newTestServer(t)
	pass := auth.MD5Hex(password)
	s.login("Alice")
	s.login("Bob")
	s.submit(draft("Bob", rankedMD5, 700000), pass, []byte("bob replay"))
	s.submit(draft("Alice", rankedMD5, 500000), pass, nil)

	if got := s.scoreboard("v=1&c=" + rankedMD5 + "&m=0&mods=0&us=Alice&ha=" + auth.MD5Hex("wrong")); got != service.ReplyBadAuth {
		t.Fatalf("bad password reply = %q", got)
	}

	lines := strings.Split(s.scoreboard("v=1&c="+rankedMD5+"&m=0&mods=0&us=Alice&ha="+pass), "\n")
	if len(lines) != 8 {
		t.Fatalf("scoreboard = %q", lines)
	}
	if lines[0] != "2|false|75|1|2" || lines[2] != "Kenji Ninuma - DISCO PRINCE [Normal]" {
		t.Errorf("header = %q / %q", lines[0], lines[2])
	}
	own := strings.Split(lines[4], "|")
	if len(own) != 16 || own[1] != "Alice" || own[2] != "500000" || own[13] != "2" || own[15] != "0" {
		t.Errorf("own score = %q", lines[4])
	}
	first := strings.Split(lines[5], "|")
	if len(first) != 16 || first[1] != "Bob" || first[2] != "700000" || first[13] != "1" || first[15] != "1" {
		t.Errorf("first row = %q", lines[5])
	}
	if second := strings.Split(lines[6], "|"); second[1] != "Alice" || second[13] != "2" {
		t.Errorf("second row = %q", lines[6])
	}

	if got := s.scoreboard("v=1&c=" + unknownMD5 + "&m=0&mods=0&us=Alice&ha=" + pass); got != "-1|false" {
		t.Errorf("unknown beatmap = %q", got)
	}
	if got := s.scoreboard("v=1&c=" + pendingMD5 + "&m=0&mods=0&us=Bob&ha=" + pass); !strings.HasPrefix(got, "0|false|77|3|0\n") {
		t.Errorf("pending beatmap = %q", got)
	}
}

func TestScoreboardIsCached(t *testing.T) {
	s := newTestServer(t)
	pass := auth.MD5Hex(password)
	s.login("Alice")
	query := "v=1&c=" + rankedMD5 + "&m=0&mods=0&us=Alice&ha=" + pass

	before := s.scoreboard(query)
	if !strings.HasPrefix(before, "2|false|75|1|0\n") {
		t.Fatalf("empty scoreboard = %q", before)
	}
	s.submit(draft("Alice", rankedMD5, 500000), pass, nil)
	if got := s.scoreboard(query); got != before {
		t.Errorf("cached scoreboard changed within its ttl: %q", got)
	}

	if got := s.scoreboard("v=2&c=" + rankedMD5 + "&m=0&mods=0&us=Alice&ha=" + pass); !strings.HasPrefix(got, "2|false|75|1|1\n") {
		t.Errorf("mods scoreboard = %q", got)
	}
}

func TestRelaxPlayCountsScoreButNotPerformance(t *testing.T) {
	s := newTestServer(t)
	alice := s.login("Alice")

	d := draft("Alice", rankedMD5, 800000)
	d.Mods = domain.ModRelax
	if reply := s.submit(d, auth.MD5Hex(password), nil); !strings.HasPrefix(reply, "beatmapId:75|") {
		t.Fatalf("reply = %q", reply)
	}

	entry, err := s.ranking.GetOrCreateEntry(context.Background(), alice.UserID())
	if err != nil {
		t.Fatal(err)
	}
	st := entry.Stats(domain.ModeOsu)
	if st.RankedScore != 800000 || st.PlayCount != 1 || st.PerformancePoints != 0 {
		t.Errorf("stats = %+v", st)
	}
	if n := count(drainIDs(t, alice), packet.ServerSendMessage); n != 0 {
		t.Errorf("relax play announced %d times", n)
	}
}
