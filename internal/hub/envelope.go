package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// Envelope types pushed to clients.
const (
	TypeMessage        = "message"
	TypeRoomClosed     = "room_closed"
	TypeServerShutdown = "server_shutdown"
	TypeError          = "error"
)

// AnonymousName replaces the requester's name on anonymous tickets.
const AnonymousName = "Anonymous"

// UserView is the public author of a message.
type UserView struct {
	ID   int64  `json:"user_id"`
	Name string `json:"name"`
}

// MessageView is a message as clients see it.
type MessageView struct {
	ID        int64     `json:"message_id"`
	Text      string    `json:"message_text"`
	CreatedAt time.Time `json:"created_at"`
	User      UserView  `json:"user"`
}

// Envelope is the single frame format written to every connection.
type Envelope struct {
	Type    string       `json:"type"`
	Room    string       `json:"room"`
	Message *MessageView `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ViewOf renders m with the given author name.
func ViewOf(m *domain.Message, name string) MessageView {
	return MessageView{
		ID:        m.ID,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		User:      UserView{ID: m.UserID, Name: name},
	}
}

// encode cannot fail: Envelope holds only strings, ints and times.
func encode(env Envelope) []byte {
	b, _ := json.Marshal(env)
	return b
}

// ErrorFrame tells a single connection that its last frame for room was
// rejected.
func ErrorFrame(room string, err error) []byte {
	return encode(Envelope{Type: TypeError, Room: room, Error: err.Error()})
}

// sanitize normalizes text to NFC, drops control characters other than
// newline and tab, and trims surrounding space.
func sanitize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// MapLink is the location link embedded in SOS alerts.
func MapLink(lat, long float64) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%v,%v", lat, long)
}

func alertText(u *domain.User, lat, long float64) string {
	return fmt.Sprintf(`Urgent! Need Help Now 🆘

Hey everyone,

I'm in a tough spot and need assistance ASAP.

📍 Location: %s

If anyone's nearby, please come to help.

Thanks,
%s
%s`, MapLink(lat, long), u.Name, u.Phone)
}

func resolvedText(u *domain.User) string {
	return fmt.Sprintf("✅ %s is safe now. SOS resolved, thank you all.", u.Name)
}
