package bancho

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bancho-server/internal/domain"
)

// LoginForm is the parsed plaintext body of a login request
type LoginForm struct {
	Username         string
	PasswordMD5      string
	ClientVersion    string
	UTCOffset        int8
	DisplayCity      bool
	ClientHashes     string
	BlockNonFriendPM bool
}

// ParseLogin parses "username\npasswordMD5\nversion|utcOffset|city|hashes|blockPM\n"
func ParseLogin(body []byte) (LoginForm, error) {
	var f LoginForm
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	if len(lines) < 3 {
		return f, fmt.Errorf("%w: login body has %d lines", domain.ErrInvalidRequest, len(lines))
	}
	f.Username = strings.TrimSpace(lines[0])
	f.PasswordMD5 = strings.TrimSpace(lines[1])
	if f.Username == "" || f.PasswordMD5 == "" {
		return f, fmt.Errorf("%w: empty credentials", domain.ErrInvalidRequest)
	}

	info := strings.Split(strings.TrimSpace(lines[2]), "|")
	f.ClientVersion = info[0]
	if len(info) > 1 {
		offset, err := strconv.Atoi(info[1])
		if err == nil && offset >= -24 && offset <= 24 {
			f.UTCOffset = int8(offset)
		}
	}
	if len(info) > 2 {
		f.DisplayCity = info[2] == "1"
	}
	if len(info) > 3 {
		f.ClientHashes = info[3]
	}
	if len(info) > 4 {
		f.BlockNonFriendPM = info[4] == "1"
	}
	return f, nil
}
