package dashboard

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/sshchat/sshchatd/chat"
)

// tcellColor maps the six-color chat palette onto tcell's named colors,
// the same mapping the reference TUI does for its own color enum.
func tcellColor(c chat.Color) tcell.Color {
	switch c {
	case chat.ColorRed:
		return tcell.ColorRed
	case chat.ColorGreen:
		return tcell.ColorGreen
	case chat.ColorYellow:
		return tcell.ColorYellow
	case chat.ColorBlue:
		return tcell.ColorBlue
	case chat.ColorMagenta:
		return tcell.ColorDarkMagenta
	case chat.ColorCyan:
		return tcell.ColorDarkCyan
	default:
		return tcell.ColorWhite
	}
}

var (
	styleHeader  = tcell.StyleDefault.Foreground(tcell.ColorTeal).Bold(true)
	styleBorder  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleFooter  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleCommand   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleStatusOK  = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleStatusErr = tcell.StyleDefault.Foreground(tcell.ColorRed)

	styleLogInfo  = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleLogWarn  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleLogError = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// draw renders the whole screen: a fixed 3-row header, a log pane filling
// the middle, a 10-row client list, and a 3-row footer that becomes the
// command bar while in command mode. Layout mirrors a Header/Logs/Clients
///Footer vertical stack rather than anything dynamically sized.
func (d *Dashboard) draw() {
	width, height := d.screen.Size()
	d.screen.Clear()

	const headerHeight = 3
	const clientsHeight = 10
	const footerHeight = 3

	logsTop := headerHeight
	logsHeight := height - headerHeight - clientsHeight - footerHeight
	if logsHeight < 0 {
		logsHeight = 0
	}
	clientsTop := logsTop + logsHeight
	footerTop := clientsTop + clientsHeight

	d.renderHeader(width, 0, headerHeight)
	d.renderLogs(width, logsTop, logsHeight)
	d.renderClients(width, clientsTop, clientsHeight)
	d.renderFooter(width, footerTop, footerHeight)

	d.screen.Show()
}

func (d *Dashboard) renderHeader(width, top, height int) {
	drawBox(d.screen, 0, top, width, height, "Status", styleBorder)

	stats := d.hub.GetStats()
	count := d.hub.ClientCount()
	line := fmt.Sprintf("SSH Chat Server | Clients: %d | Messages: %d | Connections: %d | Bans: %d | Kicks: %d",
		count, stats.Messages, stats.Connections, stats.Bans, stats.Kicks)
	drawText(d.screen, 1, top+1, width-2, line, styleHeader)
}

func (d *Dashboard) renderLogs(width, top, height int) {
	drawBox(d.screen, 0, top, width, height, "System Logs", styleBorder)

	innerHeight := height - 2
	if innerHeight <= 0 {
		return
	}

	start := len(d.logs) - innerHeight
	if start < 0 {
		start = 0
	}
	visible := d.logs[start:]

	for i, entry := range visible {
		row := top + 1 + i
		style := styleLogInfo
		levelStr := "INFO"
		switch entry.Level {
		case chat.LogWarning:
			style = styleLogWarn
			levelStr = "WARN"
		case chat.LogError:
			style = styleLogError
			levelStr = "ERROR"
		}

		ipStr := ""
		if d.cfg.ShowIPAddresses && entry.IP != nil {
			ipStr = fmt.Sprintf(" [%s]", entry.IP)
		}

		line := fmt.Sprintf("[%s]%s %s", levelStr, ipStr, entry.Message)
		drawText(d.screen, 1, row, width-2, line, style)
	}
}

func (d *Dashboard) renderClients(width, top, height int) {
	clients := d.hub.GetClients()
	title := fmt.Sprintf("Connected Clients (%d)", len(clients))
	drawBox(d.screen, 0, top, width, height, title, styleBorder)

	innerHeight := height - 2
	if innerHeight <= 0 {
		return
	}
	if len(clients) > innerHeight {
		clients = clients[:innerHeight]
	}

	now := time.Now()
	for i, c := range clients {
		row := top + 1 + i
		ipStr := ""
		if d.cfg.ShowIPAddresses {
			ipStr = fmt.Sprintf(" (%s)", c.IP)
		}
		elapsed := int(now.Sub(c.ConnectedAt).Seconds())
		line := fmt.Sprintf("%s%s - %ds", c.Nickname, ipStr, elapsed)
		style := tcell.StyleDefault.Foreground(tcellColor(c.Color)).Bold(true)
		drawText(d.screen, 1, row, width-2, line, style)
	}
}

func (d *Dashboard) renderFooter(width, top, height int) {
	if d.mode == modeCommand {
		drawBox(d.screen, 0, top, width, height, "Command", styleBorder)
		drawText(d.screen, 1, top+1, width-2, ":"+string(d.cmdLine), styleCommand)
		return
	}

	drawBox(d.screen, 0, top, width, height, "", styleBorder)
	line := "Press 'q' or Ctrl+C to quit, ':' to enter a command"
	style := styleFooter
	if d.status != "" {
		line = d.status
		if d.statusOK {
			style = styleStatusOK
		} else {
			style = styleStatusErr
		}
	}
	drawText(d.screen, 1, top+1, width-2, line, style)
}

// drawBox draws a single-line border with an optional title, the closest
// tcell equivalent of a bordered ratatui Block.
func drawBox(s tcell.Screen, x, y, w, h int, title string, style tcell.Style) {
	if w <= 0 || h <= 0 {
		return
	}
	for i := 0; i < w; i++ {
		s.SetContent(x+i, y, tcell.RuneHLine, nil, style)
		if h > 1 {
			s.SetContent(x+i, y+h-1, tcell.RuneHLine, nil, style)
		}
	}
	for i := 0; i < h; i++ {
		s.SetContent(x, y+i, tcell.RuneVLine, nil, style)
		if w > 1 {
			s.SetContent(x+w-1, y+i, tcell.RuneVLine, nil, style)
		}
	}
	s.SetContent(x, y, tcell.RuneULCorner, nil, style)
	s.SetContent(x+w-1, y, tcell.RuneURCorner, nil, style)
	s.SetContent(x, y+h-1, tcell.RuneLLCorner, nil, style)
	s.SetContent(x+w-1, y+h-1, tcell.RuneLRCorner, nil, style)

	if title != "" {
		drawText(s, x+2, y, w-4, " "+title+" ", style)
	}
}

func drawText(s tcell.Screen, x, y, maxWidth int, text string, style tcell.Style) {
	col := x
	for _, r := range text {
		if col >= x+maxWidth {
			break
		}
		s.SetContent(col, y, r, nil, style)
		col++
	}
}
