package sshsrv

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/sshchat/sshchatd/chat"
	"github.com/sshchat/sshchatd/chaterr"
	"github.com/sshchat/sshchatd/logging"
	"github.com/sshchat/sshchatd/ratelimit"
)

const (
	charCR        = '\r'
	charLF        = '\n'
	charCtrlC     = 0x03
	charBackspace = 0x7f
	charDelete    = 0x08
)

// sessionHandler drives one SSH "session" channel by hand: it answers
// pty-req/shell/window-change out-of-band requests, joins the chat room
// once a pty is requested, and implements a minimal line editor over the
// raw channel byte stream (not a real pty) so every client sees the same
// behavior regardless of their terminal emulator.
type sessionHandler struct {
	hub       *chat.Hub
	rateLimit *ratelimit.Limiter
	log       *logging.Manager
	channel   ssh.Channel
	ip        net.IP
	nickname  string

	id   uuid.UUID
	line []rune
}

func newSessionHandler(hub *chat.Hub, rl *ratelimit.Limiter, log *logging.Manager, channel ssh.Channel, ip net.IP, nickname string) *sessionHandler {
	return &sessionHandler{
		hub:       hub,
		rateLimit: rl,
		log:       log,
		channel:   channel,
		ip:        ip,
		nickname:  nickname,
		id:        uuid.New(),
	}
}

// serveRequests answers the channel's out-of-band requests. pty-req is
// where the client actually joins the room, mirroring the reference
// implementation's choice to defer registration until a pty is requested
// rather than at channel-open time.
func (h *sessionHandler) serveRequests(requests <-chan *ssh.Request) {
	joined := false
	for req := range requests {
		switch req.Type {
		case "pty-req", "shell", "window-change", "env":
			if req.WantReply {
				req.Reply(true, nil)
			}
			if req.Type == "pty-req" && !joined {
				joined = true
				h.join()
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// join registers the session's nickname with the hub, sends the welcome
// banner, and starts the writer goroutine that fans hub events out to
// this channel. If the nickname is unavailable, a disambiguated one is
// not invented — the connection is told why and closed, matching the
// reference behavior of rejecting outright rather than silently renaming.
func (h *sessionHandler) join() {
	client := chat.Client{
		ID:          h.id,
		Nickname:    h.nickname,
		IP:          h.ip,
		Color:       chat.RandomColor(),
		ConnectedAt: time.Now(),
	}

	events, err := h.hub.AddClient(client)
	if err != nil {
		fmt.Fprintf(h.channel, "\r\n\x1b[1;31mCould not join: %s\x1b[0m\r\n", err)
		h.channel.Close()
		return
	}

	if h.rateLimit != nil {
		if err := h.rateLimit.RegisterClient(h.id, h.ip); err != nil {
			fmt.Fprintf(h.channel, "\r\n\x1b[1;31m%s\x1b[0m\r\n", err)
			h.hub.RemoveClient(h.id)
			h.channel.Close()
			return
		}
	}

	fmt.Fprintf(h.channel, "\r\n\x1b[1;32mWelcome to SSH Chat, %s!\x1b[0m\r\n", h.nickname)
	go h.writeEvents(events)
}

// writeEvents renders each hub event to ANSI-colored text on the raw
// channel. System events are never rendered here: they are operator-only
// and only the dashboard subscribes to them.
func (h *sessionHandler) writeEvents(events <-chan chat.MessageEvent) {
	for ev := range events {
		switch {
		case ev.Chat != nil:
			fmt.Fprintf(h.channel, "\r\n\x1b[%dm[%s]\x1b[0m %s\r\n", ev.Chat.Color.ANSI(), ev.Chat.Nickname, ev.Chat.Text)
		case ev.Notice != nil:
			verb := "joined"
			if ev.Notice.Kind == chat.NoticeLeft {
				verb = "left"
			}
			fmt.Fprintf(h.channel, "\r\n\x1b[90m* %s %s\x1b[0m\r\n", ev.Notice.Nickname, verb)
		}
	}
}

// run reads the raw byte stream and implements the line editor: CR/LF
// submits the buffered line, Ctrl-C closes the channel, backspace/delete
// erases the last rune (echoing the terminal's erase sequence), printable
// ASCII is buffered and echoed, everything else is ignored.
func (h *sessionHandler) run() {
	defer h.leave()

	buf := make([]byte, 256)
	for {
		n, err := h.channel.Read(buf)
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			switch b {
			case charCR, charLF:
				h.submitLine()
			case charCtrlC:
				h.channel.Close()
				return
			case charBackspace, charDelete:
				h.eraseRune()
			default:
				if b >= 0x20 && b < 0x7f {
					h.appendRune(rune(b))
				}
			}
		}
	}
}

func (h *sessionHandler) appendRune(r rune) {
	h.line = append(h.line, r)
	h.channel.Write([]byte(string(r)))
}

func (h *sessionHandler) eraseRune() {
	if len(h.line) == 0 {
		return
	}
	h.line = h.line[:len(h.line)-1]
	h.channel.Write([]byte("\x08 \x08"))
}

func (h *sessionHandler) submitLine() {
	text := strings.TrimSpace(string(h.line))
	h.line = h.line[:0]
	h.channel.Write([]byte("\r\n"))

	if text == "" {
		return
	}

	if h.rateLimit != nil {
		if err := h.rateLimit.CheckRateLimit(h.id); err != nil {
			h.warn(err)
			return
		}
		if err := h.rateLimit.CheckFlood(h.id); err != nil {
			h.warn(err)
			return
		}
	}

	if err := h.hub.BroadcastChat(h.id, text); err != nil {
		h.warn(err)
	}
}

func (h *sessionHandler) warn(err error) {
	if errors.Is(err, chaterr.ErrEmpty) {
		return
	}
	fmt.Fprintf(h.channel, "\r\n\x1b[33m! %s\x1b[0m\r\n", err)
}

func (h *sessionHandler) leave() {
	if h.rateLimit != nil {
		h.rateLimit.UnregisterClient(h.id, h.ip)
	}
	h.hub.RemoveClient(h.id)
	h.channel.Close()
}
