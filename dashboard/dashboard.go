// Package dashboard implements the operator's terminal UI: a live view of
// connected clients and system log lines, plus a colon-command line for
// kick/ban/unban, drawn directly onto a tcell.Screen without any widget
// framework.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/sshchat/sshchatd/chat"
)

// Config mirrors the server config's [tui] table.
type Config struct {
	RefreshRateFPS  int
	MaxLogLines     int
	ShowIPAddresses bool
}

// mode distinguishes the dashboard's two input modes: normal (any key
// besides ':', 'q' and Ctrl-C is ignored) and command (building a colon
// command).
type mode int

const (
	modeNormal mode = iota
	modeCommand
)

// Dashboard is the operator TUI. One Dashboard serves the whole process;
// it is not safe to run two concurrently against the same screen.
type Dashboard struct {
	cfg Config
	hub *chat.Hub

	screen tcell.Screen

	mode     mode
	cmdLine  []rune
	status   string
	statusOK bool
	statusAt time.Time

	cmdHistory []string
	historyPos int

	logs []chat.SystemLog
}

// statusExpiry is how long a transient command result stays on the footer
// before it's cleared back to the default help text.
const statusExpiry = 5 * time.Second

// New builds a Dashboard. It does not touch the terminal until Run is
// called.
func New(cfg Config, hub *chat.Hub) *Dashboard {
	return &Dashboard{cfg: cfg, hub: hub}
}

// Run takes over the terminal (raw mode, alternate screen), drains
// events and log lines until the operator quits, events is closed, or
// ctx is cancelled (an OS signal arrived), then restores the terminal.
func (d *Dashboard) Run(ctx context.Context, events <-chan chat.MessageEvent) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("dashboard: new screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("dashboard: init screen: %w", err)
	}
	d.screen = screen
	defer screen.Fini()

	fps := d.cfg.RefreshRateFPS
	if fps <= 0 {
		fps = 10
	}
	tick := time.NewTicker(time.Second / time.Duration(fps))
	defer tick.Stop()

	tcellEvents := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(tcellEvents)
				return
			}
			tcellEvents <- ev
		}
	}()

	d.draw()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.System != nil {
				d.logs = append(d.logs, *ev.System)
				if len(d.logs) > d.cfg.MaxLogLines {
					d.logs = d.logs[len(d.logs)-d.cfg.MaxLogLines:]
				}
			}

		case tev, ok := <-tcellEvents:
			if !ok {
				return nil
			}
			switch e := tev.(type) {
			case *tcell.EventKey:
				if quit := d.handleKey(e); quit {
					return nil
				}
			case *tcell.EventResize:
				screen.Sync()
			}

		case <-tick.C:
		}
		if d.status != "" && time.Since(d.statusAt) > statusExpiry {
			d.status = ""
		}
		d.draw()
	}
}

// handleKey dispatches a key event for the current mode, returning true
// if the operator asked to quit.
func (d *Dashboard) handleKey(e *tcell.EventKey) bool {
	if e.Key() == tcell.KeyCtrlC {
		return true
	}

	switch d.mode {
	case modeNormal:
		switch {
		case e.Rune() == 'q':
			return true
		case e.Rune() == ':':
			d.mode = modeCommand
			d.cmdLine = nil
			d.status = ""
			d.historyPos = len(d.cmdHistory)
		}

	case modeCommand:
		switch e.Key() {
		case tcell.KeyEnter:
			line := string(d.cmdLine)
			if strings.TrimSpace(line) != "" {
				d.cmdHistory = append(d.cmdHistory, line)
			}
			d.historyPos = len(d.cmdHistory)
			d.status, d.statusOK = d.runCommand(line)
			d.statusAt = time.Now()
			d.cmdLine = nil
			d.mode = modeNormal
		case tcell.KeyEsc:
			d.cmdLine = nil
			d.mode = modeNormal
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(d.cmdLine) > 0 {
				d.cmdLine = d.cmdLine[:len(d.cmdLine)-1]
			}
		case tcell.KeyUp:
			if d.historyPos > 0 {
				d.historyPos--
				d.cmdLine = []rune(d.cmdHistory[d.historyPos])
			}
		case tcell.KeyDown:
			if d.historyPos < len(d.cmdHistory)-1 {
				d.historyPos++
				d.cmdLine = []rune(d.cmdHistory[d.historyPos])
			} else {
				d.historyPos = len(d.cmdHistory)
				d.cmdLine = nil
			}
		default:
			if e.Rune() != 0 {
				d.cmdLine = append(d.cmdLine, e.Rune())
			}
		}
	}
	return false
}

// runCommand parses and executes one colon command: "kick <target>
// [reason]", "ban <target> <duration> [reason]", or "unban <ip>".
// It reports the outcome and whether the command succeeded, so the caller
// can color the footer accordingly. Anything that doesn't match this
// grammar, including a ban with a missing or malformed duration, is a
// parse error.
func (d *Dashboard) runCommand(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", true
	}

	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "kick":
		if len(args) == 0 {
			return "usage: kick <target> [reason]", false
		}
		reason := strings.Join(args[1:], " ")
		if reason == "" {
			reason = "kicked by operator"
		}
		if _, err := d.hub.Kick(args[0], reason); err != nil {
			return fmt.Sprintf("kick failed: %s", err), false
		}
		return fmt.Sprintf("kicked %s", args[0]), true

	case "ban":
		if len(args) < 2 {
			return "usage: ban <target> <duration> [reason]", false
		}
		target := args[0]
		rest := args[1:]

		duration, consumed := parseDuration(rest)
		if consumed == 0 {
			return "usage: ban <target> <duration> [reason]", false
		}
		reason := strings.Join(rest[consumed:], " ")
		if reason == "" {
			reason = "banned by operator"
		}

		var err error
		if duration > 0 {
			_, err = d.hub.TempBan(target, reason, duration)
		} else {
			_, err = d.hub.Ban(target, reason)
		}
		if err != nil {
			return fmt.Sprintf("ban failed: %s", err), false
		}
		return fmt.Sprintf("banned %s", target), true

	case "unban":
		if len(args) == 0 {
			return "usage: unban <ip>", false
		}
		if err := d.hub.Unban(args[0]); err != nil {
			return fmt.Sprintf("unban failed: %s", err), false
		}
		return fmt.Sprintf("unbanned %s", args[0]), true

	default:
		return fmt.Sprintf("unknown command: %s", cmd), false
	}
}

// parseDuration reads an optional duration token from the front of args:
// "permanent"/"perm" (0, meaning permanent), or "<n>m"/"<n>h"/"<n>d". It
// returns the parsed duration (0 for permanent or absent) and how many
// leading tokens it consumed.
func parseDuration(args []string) (time.Duration, int) {
	if len(args) == 0 {
		return 0, 0
	}
	tok := args[0]
	switch tok {
	case "permanent", "perm":
		return 0, 1
	}
	if len(tok) < 2 {
		return 0, 0
	}
	unit := tok[len(tok)-1]
	var mult time.Duration
	switch unit {
	case 'm':
		mult = time.Minute
	case 'h':
		mult = time.Hour
	case 'd':
		mult = 24 * time.Hour
	default:
		return 0, 0
	}
	var n int
	if _, err := fmt.Sscanf(tok[:len(tok)-1], "%d", &n); err != nil || n <= 0 {
		return 0, 0
	}
	return time.Duration(n) * mult, 1
}
