package client

import (
	"chat-relay/domain"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Command is one line typed by the user.
type Command struct {
	Message domain.Message
	Who     bool
	Quit    bool
}

// ParseCommand understands "/w <user> <text>", "/who", "/quit"; anything else
// is a broadcast.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Command{}, fmt.Errorf("nothing to send")
	case line == "/who":
		return Command{Who: true}, nil
	case line == "/quit":
		return Command{Quit: true, Message: domain.Message{Kind: domain.KindLeave}}, nil
	case strings.HasPrefix(line, "/w "):
		to, text, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "/w ")), " ")
		text = strings.TrimSpace(text)
		if !ok || to == "" || text == "" {
			return Command{}, fmt.Errorf("usage: /w <user> <text>")
		}
		return Command{Message: domain.Message{Kind: domain.KindPM, To: to, Text: text}}, nil
	case strings.HasPrefix(line, "/"):
		return Command{}, fmt.Errorf("unknown command %q", strings.Fields(line)[0])
	default:
		return Command{Message: domain.Message{Kind: domain.KindMsg, Text: line}}, nil
	}
}

// Renderer prints incoming frames as log lines and keeps the latest roster.
type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
	roster  []string
}

func NewRenderer(out io.Writer, colours bool) *Renderer {
	return &Renderer{out: out, colours: colours}
}

func (r *Renderer) Render(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := time.Unix(m.Timestamp, 0).Format(time.TimeOnly)
	switch m.Kind {
	case domain.KindMsg:
		r.printf(color.FgDefault, "[%s] %s: %s", at, m.From, m.Text)
	case domain.KindPM:
		r.printf(color.Magenta, "[%s] %s -> %s: %s", at, m.From, m.To, m.Text)
	case domain.KindJoin:
		r.printf(color.Green, "[%s] * %s joined", at, m.From)
	case domain.KindLeave:
		r.printf(color.Yellow, "[%s] * %s left", at, m.From)
	case domain.KindSys:
		r.printf(color.Red, "[%s] ! %s", at, m.Text)
	case domain.KindUserList:
		r.roster = append([]string(nil), m.Users...)
	}
}

// Roster prints the last received userlist as a table.
func (r *Renderer) Roster() {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"#", "Username"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, name := range r.roster {
		table.Append([]string{strconv.Itoa(i + 1), name})
	}
	table.Render()
}

// Users returns a copy of the last received roster.
func (r *Renderer) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.roster...)
}

func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf(color.Cyan, format, args...)
}

func (r *Renderer) printf(c color.Color, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if r.colours {
		line = c.Sprint(line)
	}
	_, _ = fmt.Fprintln(r.out, line)
}
