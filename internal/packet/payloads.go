package packet

import (
	"github.com/bancho-server/internal/domain"
)

// Login reply codes below zero are failures
const (
	LoginFailed          int32 = -1
	LoginOutdatedClient  int32 = -2
	LoginBanned          int32 = -3
	LoginServerError     int32 = -5
	LoginRequiresSupport int32 = -6
)

// Message is a chat message as carried on the wire
type Message struct {
	Sender   string
	Text     string
	Target   string
	SenderID int32
}

// Presence is the identity card of a connected user
type Presence struct {
	UserID     int32
	Username   string
	Timezone   int8
	Country    uint8
	Privileges uint8
	Mode       domain.PlayMode
	Longitude  float32
	Latitude   float32
	Rank       int32
}

func LoginReply(code int32) Packet {
	return Build(ServerLoginReply, func(w *Writer) { w.WriteInt32(code) })
}

func ProtocolNegotiation(version int32) Packet {
	return Build(ServerProtocolNegotiation, func(w *Writer) { w.WriteInt32(version) })
}

func LoginPermissions(perms int32) Packet {
	return Build(ServerLoginPermissions, func(w *Writer) { w.WriteInt32(perms) })
}

func Ping() Packet {
	return New(ServerPing, nil)
}

func Announce(text string) Packet {
	return Build(ServerAnnounce, func(w *Writer) { w.WriteString(text) })
}

func ChannelJoinSuccess(channel string) Packet {
	return Build(ServerChannelJoinSuccess, func(w *Writer) { w.WriteString(channel) })
}

func ChannelAvailable(channel, topic string, users int16) Packet {
	return Build(ServerChannelAvailable, func(w *Writer) {
		w.WriteString(channel)
		w.WriteString(topic)
		w.WriteInt16(users)
	})
}

func ChannelRevoked(channel string) Packet {
	return Build(ServerChannelRevoked, func(w *Writer) { w.WriteString(channel) })
}

func ChannelListingDone() Packet {
	return New(ServerChannelListingDone, nil)
}

func UserLogout(userID int32) Packet {
	return Build(ServerUserLogout, func(w *Writer) {
		w.WriteInt32(userID)
		w.WriteUint8(0)
	})
}

func SendMessage(m Message) Packet {
	return Build(ServerSendMessage, func(w *Writer) { writeMessage(w, m) })
}

func UserPresence(p Presence) Packet {
	return Build(ServerUserPresence, func(w *Writer) {
		w.WriteInt32(p.UserID)
		w.WriteString(p.Username)
		w.WriteUint8(uint8(p.Timezone + 24))
		w.WriteUint8(p.Country)
		w.WriteUint8(p.Privileges&0x1f | uint8(p.Mode)<<5)
		w.WriteFloat32(p.Longitude)
		w.WriteFloat32(p.Latitude)
		w.WriteInt32(p.Rank)
	})
}

// UserStats carries a user's status and the stats of the mode they are playing
func UserStats(userID int32, status domain.UserStatus, stats domain.UserStats) Packet {
	return Build(ServerUserStats, func(w *Writer) {
		w.WriteInt32(userID)
		writeStatus(w, status)
		w.WriteInt64(int64(stats.RankedScore))
		w.WriteFloat32(stats.Accuracy)
		w.WriteInt32(int32(stats.PlayCount))
		w.WriteInt64(int64(stats.TotalScore))
		w.WriteInt32(int32(stats.Position))
		w.WriteInt16(int16(stats.PerformancePoints))
	})
}

// ChangeAction builds the client status update packet
func ChangeAction(status domain.UserStatus) Packet {
	return Build(ClientChangeAction, func(w *Writer) { writeStatus(w, status) })
}

// PublicMessage builds the client chat packet
func PublicMessage(m Message) Packet {
	return Build(ClientSendPublicMessage, func(w *Writer) { writeMessage(w, m) })
}

// StatsRequest builds the client request for other users' stats
func StatsRequest(userIDs []int32) Packet {
	return Build(ClientUserStatsRequest, func(w *Writer) { w.WriteInt32List(userIDs) })
}

// ReadStatus decodes a ChangeAction payload
func ReadStatus(r *Reader) (domain.UserStatus, error) {
	var s domain.UserStatus
	action, err := r.ReadUint8()
	if err != nil {
		return s, err
	}
	s.Action = domain.Action(action)
	if s.ActionText, err = r.ReadString(); err != nil {
		return s, err
	}
	if s.BeatmapMD5, err = r.ReadString(); err != nil {
		return s, err
	}
	mods, err := r.ReadUint32()
	if err != nil {
		return s, err
	}
	s.Mods = domain.Mods(mods)
	mode, err := r.ReadUint8()
	if err != nil {
		return s, err
	}
	s.Mode = domain.PlayMode(mode)
	if !s.Mode.Valid() {
		return s, domain.ErrInvalidMode
	}
	s.BeatmapID, err = r.ReadInt32()
	return s, err
}

// ReadMessage decodes a chat message payload
func ReadMessage(r *Reader) (Message, error) {
	var m Message
	var err error
	if m.Sender, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Text, err = r.ReadString(); err != nil {
		return m, err
	}
	if m.Target, err = r.ReadString(); err != nil {
		return m, err
	}
	m.SenderID, err = r.ReadInt32()
	return m, err
}

func writeStatus(w *Writer, s domain.UserStatus) {
	w.WriteUint8(uint8(s.Action))
	w.WriteString(s.ActionText)
	w.WriteString(s.BeatmapMD5)
	w.WriteUint32(uint32(s.Mods))
	w.WriteUint8(uint8(s.Mode))
	w.WriteInt32(s.BeatmapID)
}

func writeMessage(w *Writer, m Message) {
	w.WriteString(m.Sender)
	w.WriteString(m.Text)
	w.WriteString(m.Target)
	w.WriteInt32(m.SenderID)
}
