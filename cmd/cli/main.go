// Command cli is a terminal monitor for a running dispatch daemon. It lists
// live conversations, follows updates over the daemon's websocket, and can
// start, cancel, and delete conversations.
//
// Usage:
//
//	cli -addr localhost:8080
//	cli -addr localhost:8080 -goal "Summarize the README" -model models/gemini-2.5-flash
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/server"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	statusStyles = map[domain.Status]lipgloss.Style{
		domain.StatusWorking:         lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		domain.StatusTaskComplete:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		domain.StatusError:           lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		domain.StatusCancelled:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		domain.StatusMaxTurnsReached: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
)

// client talks to the daemon's REST API.
type client struct {
	base string
	http *http.Client
}

func newClient(addr string) *client {
	return &client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) list() ([]domain.Conversation, error) {
	resp, err := c.http.Get(c.base + "/api/conversations")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var convs []domain.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *client) get(id string) (*server.ConversationDetail, error) {
	resp, err := c.http.Get(c.base + "/api/conversations/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var detail server.ConversationDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *client) start(req server.StartRequest) (*domain.Conversation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.base+"/api/conversations", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp)
	}

	var conv domain.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *client) cancel(id string) error {
	resp, err := c.http.Post(c.base+"/api/conversations/"+id+"/cancel", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *client) delete(id string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/api/conversations/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("%s", e.Error)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}

// watchEvent mirrors the daemon's websocket payload.
type watchEvent struct {
	Type          string                `json:"type"`
	Conversation  *domain.Conversation  `json:"conversation,omitempty"`
	Conversations []domain.Conversation `json:"conversations,omitempty"`
}

type state int

const (
	stateList state = iota
	stateDetail
)

type (
	errMsg      struct{ err error }
	convsMsg    []domain.Conversation
	detailMsg   *server.ConversationDetail
	wsEventMsg  watchEvent
	wsClosedMsg struct{}
)

type model struct {
	client *client
	addr   string

	state    state
	convs    []domain.Conversation
	cursor   int
	detail   *server.ConversationDetail
	viewport viewport.Model
	width    int
	height   int
	events   chan watchEvent
	lastErr  error
}

func initialModel(addr string) model {
	vp := viewport.New(80, 20)
	return model{
		client:   newClient(addr),
		addr:     addr,
		viewport: vp,
		events:   make(chan watchEvent, 64),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchList(), m.connectWatch(), waitForEvent(m.events))
}

func (m model) fetchList() tea.Cmd {
	return func() tea.Msg {
		convs, err := m.client.list()
		if err != nil {
			return errMsg{err}
		}
		return convsMsg(convs)
	}
}

func (m model) fetchDetail(id string) tea.Cmd {
	return func() tea.Msg {
		detail, err := m.client.get(id)
		if err != nil {
			return errMsg{err}
		}
		return detailMsg(detail)
	}
}

// connectWatch feeds daemon websocket events into m.events until the
// connection drops.
func (m model) connectWatch() tea.Cmd {
	events := m.events
	addr := m.addr
	return func() tea.Msg {
		u := url.URL{Scheme: "ws", Host: addr, Path: "/api/watch"}
		ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return errMsg{fmt.Errorf("watch connection failed: %w", err)}
		}
		go func() {
			defer ws.Close()
			for {
				var ev watchEvent
				if err := ws.ReadJSON(&ev); err != nil {
					close(events)
					return
				}
				events <- ev
			}
		}()
		return nil
	}
}

func waitForEvent(events chan watchEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return wsClosedMsg{}
		}
		return wsEventMsg(ev)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil

	case convsMsg:
		m.convs = msg
		if m.cursor >= len(m.convs) && m.cursor > 0 {
			m.cursor = len(m.convs) - 1
		}
		return m, nil

	case detailMsg:
		m.detail = msg
		m.state = stateDetail
		m.viewport.SetContent(renderDetail(msg))
		m.viewport.GotoBottom()
		return m, nil

	case wsEventMsg:
		m.applyEvent(watchEvent(msg))
		cmds := []tea.Cmd{waitForEvent(m.events)}
		if m.state == stateDetail && m.detail != nil {
			cmds = append(cmds, m.fetchDetail(m.detail.Conversation.ID))
		}
		return m, tea.Batch(cmds...)

	case wsClosedMsg:
		m.lastErr = fmt.Errorf("watch connection closed")
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) applyEvent(ev watchEvent) {
	switch ev.Type {
	case "snapshot":
		m.convs = ev.Conversations
	case "update":
		if ev.Conversation == nil {
			return
		}
		for i := range m.convs {
			if m.convs[i].ID == ev.Conversation.ID {
				m.convs[i] = *ev.Conversation
				return
			}
		}
		m.convs = append(m.convs, *ev.Conversation)
	}
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.lastErr = nil

	switch msg.String() {
	case "ctrl+c", "q":
		if m.state == stateDetail {
			m.state = stateList
			return m, nil
		}
		return m, tea.Quit

	case "esc":
		if m.state == stateDetail {
			m.state = stateList
		}
		return m, nil

	case "up", "k":
		if m.state == stateList && m.cursor > 0 {
			m.cursor--
		} else if m.state == stateDetail {
			m.viewport.ScrollUp(1)
		}
		return m, nil

	case "down", "j":
		if m.state == stateList && m.cursor < len(m.convs)-1 {
			m.cursor++
		} else if m.state == stateDetail {
			m.viewport.ScrollDown(1)
		}
		return m, nil

	case "enter":
		if m.state == stateList && m.cursor < len(m.convs) {
			return m, m.fetchDetail(m.convs[m.cursor].ID)
		}
		return m, nil

	case "r":
		return m, m.fetchList()

	case "c":
		if conv, ok := m.selected(); ok {
			id := conv.ID
			return m, func() tea.Msg {
				if err := m.client.cancel(id); err != nil {
					return errMsg{err}
				}
				return nil
			}
		}
		return m, nil

	case "d":
		if conv, ok := m.selected(); ok && conv.Status.Terminal() {
			id := conv.ID
			return m, tea.Sequence(
				func() tea.Msg {
					if err := m.client.delete(id); err != nil {
						return errMsg{err}
					}
					return nil
				},
				m.fetchList(),
			)
		}
		return m, nil
	}

	if m.state == stateDetail {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) selected() (domain.Conversation, bool) {
	if m.state == stateDetail && m.detail != nil {
		return m.detail.Conversation, true
	}
	if m.cursor < len(m.convs) {
		return m.convs[m.cursor], true
	}
	return domain.Conversation{}, false
}

func (m model) View() string {
	header := titleStyle.Render("dispatch @ " + m.addr)

	var errLine string
	if m.lastErr != nil {
		errLine = errorStyle.Render(m.lastErr.Error())
	}

	if m.state == stateDetail && m.detail != nil {
		footer := dimStyle.Render("esc: back  c: cancel  ↑/↓: scroll")
		return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), footer, errLine)
	}

	var rows []string
	if len(m.convs) == 0 {
		rows = append(rows, dimStyle.Render("no conversations"))
	}
	for i, conv := range m.convs {
		line := fmt.Sprintf("%-28s %-18s turn %2d/%-2d %8d tok  %s",
			truncate(conv.ID, 28), statusCell(conv.Status), conv.Turn, conv.MaxTurns,
			conv.TokensUsed, truncate(conv.Goal, 40))
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}

	footer := dimStyle.Render("enter: detail  c: cancel  d: delete  r: refresh  q: quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, "",
		lipgloss.JoinVertical(lipgloss.Left, rows...), "", footer, errLine)
}

func statusCell(s domain.Status) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func renderDetail(d *server.ConversationDetail) string {
	var sb strings.Builder
	conv := d.Conversation

	fmt.Fprintf(&sb, "%s\n", selectedStyle.Render(conv.ID))
	fmt.Fprintf(&sb, "goal:   %s\n", conv.Goal)
	fmt.Fprintf(&sb, "model:  %s\n", conv.Model)
	fmt.Fprintf(&sb, "status: %s  turn %d/%d  %d tokens\n",
		statusCell(conv.Status), conv.Turn, conv.MaxTurns, conv.TokensUsed)
	if conv.Error != "" {
		fmt.Fprintf(&sb, "error:  %s\n", errorStyle.Render(conv.Error))
	}
	sb.WriteString("\n")

	for _, entry := range d.History {
		switch entry.Kind {
		case domain.EntryAssistant:
			fmt.Fprintf(&sb, "%s\n", dimStyle.Render(fmt.Sprintf("-- turn %d --", entry.Turn)))
			if entry.Assistant != nil {
				if entry.Assistant.Text != "" {
					sb.WriteString(entry.Assistant.Text + "\n")
				}
				for _, tc := range entry.Assistant.ToolCalls {
					fmt.Fprintf(&sb, "%s\n", dimStyle.Render("tool call: "+tc.Name))
				}
			}
		case domain.EntryToolResults:
			if entry.ToolResults != nil {
				for _, tr := range entry.ToolResults.Results {
					label := "tool result"
					if tr.IsError {
						label = "tool error"
					}
					fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render(label+":"), truncate(tr.Content, 200))
				}
			}
		}
		sb.WriteString("\n")
	}

	if conv.FinalResponse != "" {
		fmt.Fprintf(&sb, "%s\n%s\n", dimStyle.Render("-- final --"), conv.FinalResponse)
	}
	return sb.String()
}

func main() {
	addr := flag.String("addr", "localhost:8080", "daemon address")
	goal := flag.String("goal", "", "start a conversation with this goal and exit")
	modelID := flag.String("model", "", "model for -goal")
	maxTurns := flag.Int("max-turns", 10, "turn limit for -goal")
	unsafe := flag.Bool("unsafe", false, "allow write-capable tools for -goal")
	flag.Parse()

	if *goal != "" {
		c := newClient(*addr)
		conv, err := c.start(server.StartRequest{
			Goal:             *goal,
			Model:            *modelID,
			MaxTurns:         *maxTurns,
			AllowUnsafeTools: *unsafe,
			Caller:           "cli",
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		fmt.Println(conv.ID)
		return
	}

	p := tea.NewProgram(initialModel(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
