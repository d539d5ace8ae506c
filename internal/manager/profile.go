package manager

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Field capacities of the persisted profile, each including the terminating NUL.
const (
	URICapacity      = 64
	UsernameCapacity = 32
	PasswordCapacity = 32

	// ProfileBlobSize is the size of the encoded profile.
	ProfileBlobSize = URICapacity + UsernameCapacity + PasswordCapacity + 1
)

// Profile is the persisted connection profile. An empty URI means the
// device is unconfigured.
type Profile struct {
	URI           string
	Username      string
	Password      string
	AutoReconnect bool
}

// IsConfigured reports whether a broker URI is set.
func (p Profile) IsConfigured() bool {
	return p.URI != ""
}

// fitted returns p with every string cut to its field capacity.
func (p Profile) fitted() Profile {
	p.URI = fitField(p.URI, URICapacity)
	p.Username = fitField(p.Username, UsernameCapacity)
	p.Password = fitField(p.Password, PasswordCapacity)
	return p
}

// MarshalBinary encodes the profile as a fixed-size blob of NUL-terminated
// fields followed by the auto-reconnect byte. Unused bytes are zero, so two
// equal profiles always encode to identical blobs.
func (p Profile) MarshalBinary() ([]byte, error) {
	p = p.fitted()
	blob := make([]byte, ProfileBlobSize)
	copy(blob[0:URICapacity], p.URI)
	copy(blob[URICapacity:URICapacity+UsernameCapacity], p.Username)
	copy(blob[URICapacity+UsernameCapacity:ProfileBlobSize-1], p.Password)
	if p.AutoReconnect {
		blob[ProfileBlobSize-1] = 1
	}
	return blob, nil
}

// UnmarshalBinary decodes a blob produced by MarshalBinary.
func (p *Profile) UnmarshalBinary(blob []byte) error {
	if len(blob) != ProfileBlobSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidProfile, len(blob), ProfileBlobSize)
	}
	*p = Profile{
		URI:           cString(blob[0:URICapacity]),
		Username:      cString(blob[URICapacity : URICapacity+UsernameCapacity]),
		Password:      cString(blob[URICapacity+UsernameCapacity : ProfileBlobSize-1]),
		AutoReconnect: blob[ProfileBlobSize-1] != 0,
	}
	return nil
}

// LogValue implements slog.LogValuer. The password is never logged.
func (p Profile) LogValue() slog.Value {
	password := ""
	if p.Password != "" {
		password = "[REDACTED]"
	}
	return slog.GroupValue(
		slog.String("uri", p.URI),
		slog.String("username", p.Username),
		slog.String("password", password),
		slog.Bool("auto_reconnect", p.AutoReconnect),
	)
}

// fitField cuts s at the first NUL and then to capacity-1 bytes without
// splitting a UTF-8 sequence.
func fitField(s string, capacity int) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return truncateUTF8(s, capacity-1)
}

// truncateUTF8 returns the longest prefix of s that is at most n bytes
// and ends on a rune boundary.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
