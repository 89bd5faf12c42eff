package packet

import "strconv"

// ID is a packet opcode
type ID int16

// Client to server
const (
	ClientChangeAction        ID = 0
	ClientSendPublicMessage   ID = 1
	ClientExit                ID = 2
	ClientRequestStatusUpdate ID = 3
	ClientPong                ID = 4
	ClientSendPrivateMessage  ID = 25
	ClientChannelJoin         ID = 63
	ClientChannelPart         ID = 78
	ClientUserStatsRequest    ID = 85
	ClientUserPresenceRequest ID = 97
)

// Server to client
const (
	ServerLoginReply          ID = 5
	ServerSendMessage         ID = 7
	ServerPing                ID = 8
	ServerUserStats           ID = 11
	ServerUserLogout          ID = 12
	ServerAnnounce            ID = 24
	ServerChannelJoinSuccess  ID = 64
	ServerChannelAvailable    ID = 65
	ServerChannelRevoked      ID = 66
	ServerLoginPermissions    ID = 71
	ServerProtocolNegotiation ID = 75
	ServerUserPresence        ID = 83
	ServerChannelListingDone  ID = 89
)

var names = map[ID]string{
	ClientChangeAction:        "ChangeAction",
	ClientSendPublicMessage:   "SendPublicMessage",
	ClientExit:                "Exit",
	ClientRequestStatusUpdate: "RequestStatusUpdate",
	ClientPong:                "Pong",
	ClientSendPrivateMessage:  "SendPrivateMessage",
	ClientChannelJoin:         "ChannelJoin",
	ClientChannelPart:         "ChannelPart",
	ClientUserStatsRequest:    "UserStatsRequest",
	ClientUserPresenceRequest: "UserPresenceRequest",
	ServerLoginReply:          "LoginReply",
	ServerSendMessage:         "SendMessage",
	ServerPing:                "Ping",
	ServerUserStats:           "UserStats",
	ServerUserLogout:          "UserLogout",
	ServerAnnounce:            "Announce",
	ServerChannelJoinSuccess:  "ChannelJoinSuccess",
	ServerChannelAvailable:    "ChannelAvailable",
	ServerChannelRevoked:      "ChannelRevoked",
	ServerLoginPermissions:    "LoginPermissions",
	ServerProtocolNegotiation: "ProtocolNegotiation",
	ServerUserPresence:        "UserPresence",
	ServerChannelListingDone:  "ChannelListingDone",
}

func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	return "Packet(" + strconv.Itoa(int(id)) + ")"
}
