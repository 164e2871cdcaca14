package chat

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Color is one of the six fixed ANSI foreground colors assigned to a
// client on join. The palette is fixed; do not extend it at runtime.
type Color int

const (
	ColorRed Color = iota
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
)

var palette = [...]Color{ColorRed, ColorGreen, ColorYellow, ColorBlue, ColorMagenta, ColorCyan}

// ANSI returns the SGR foreground code for the color, 31..36.
func (c Color) ANSI() int {
	return 31 + int(c)
}

// RandomColor picks uniformly from the six-color palette.
func RandomColor() Color {
	return palette[randIntn(len(palette))]
}

// Client is a connected chat participant.
type Client struct {
	ID          uuid.UUID
	Nickname    string
	IP          net.IP
	Color       Color
	ConnectedAt time.Time
}

// Stats are monotonic server-wide counters.
type Stats struct {
	Messages    uint64
	Connections uint64
	Kicks       uint64
	Bans        uint64
}

// NoticeKind distinguishes join/leave notices.
type NoticeKind int

const (
	NoticeJoined NoticeKind = iota
	NoticeLeft
)

// LogLevel is the severity of a System event.
type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarning
	LogError
)

// AdminAction is attached to System events produced by operator commands.
type AdminAction interface{ isAdminAction() }

type BanAction struct {
	IP     net.IP
	Reason string
}

type TempBanAction struct {
	IP       net.IP
	Duration time.Duration
	Reason   string
}

type UnbanAction struct{ IP net.IP }

type KickAction struct {
	Nickname string
	IP       net.IP
}

func (BanAction) isAdminAction()     {}
func (TempBanAction) isAdminAction() {}
func (UnbanAction) isAdminAction()   {}
func (KickAction) isAdminAction()    {}

// ChatMessage is a user chat line, visible to every SSH client.
type ChatMessage struct {
	Timestamp time.Time
	Nickname  string
	Text      string
	Color     Color
	IP        net.IP
}

// NoticeMessage is a join/leave announcement, visible to every SSH client.
type NoticeMessage struct {
	Timestamp time.Time
	Kind      NoticeKind
	Nickname  string
	IP        net.IP
}

// SystemLog is an operator-only record. It must never reach an SSH writer.
type SystemLog struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	IP        net.IP // nil if not applicable
	Action    AdminAction
}

// MessageEvent is the tagged union fanned out by the Hub. Exactly one of
// Chat, Notice, System is non-nil.
type MessageEvent struct {
	Chat   *ChatMessage
	Notice *NoticeMessage
	System *SystemLog
}
