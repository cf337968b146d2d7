package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// maxChatLines is how many chat lines the session view keeps on screen.
const maxChatLines = 15

// Messages fed to the session view from the controller and handler.
type (
	StateMsg       client.Update
	JoinedMsg      protocol.Joined
	ViewerCountMsg int
	HistoryMsg     []protocol.ChatMessage
	ChatMsg        protocol.ChatMessage
	PeerJoinedMsg  protocol.PeerInfo
	PeerLeftMsg    protocol.PeerLeft
	ServerErrorMsg protocol.ErrorPayload

	// PeerStateMsg reports the WebRTC connection state with a peer.
	PeerStateMsg struct {
		ID    string
		State string
	}
)

type peerEntry struct {
	info  protocol.PeerInfo
	state string
}

// SessionModel is the Bubble Tea model for a live tasting session.
type SessionModel struct {
	room   string
	onChat func(string) error

	state     client.State
	transport string
	err       error
	notice    string
	viewers   int
	isHost    bool
	messages  []protocol.ChatMessage
	peers     map[string]*peerEntry
	input     []rune
	spinner   spinner.Model
	quitting  bool
}

// NewSessionModel creates the view for room. onChat is called with every
// line the user submits.
func NewSessionModel(room string, onChat func(string) error) *SessionModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &SessionModel{
		room:    room,
		onChat:  onChat,
		state:   client.Connecting,
		peers:   make(map[string]*peerEntry),
		spinner: s,
	}
}

func (m *SessionModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StateMsg:
		m.state = msg.State
		if msg.Transport != "" {
			m.transport = msg.Transport
		}
		m.err = msg.Err
		if msg.State == client.Failed {
			m.quitting = true
			return m, tea.Quit
		}

	case JoinedMsg:
		m.viewers = msg.Count
		m.isHost = msg.IsHost
		m.notice = fmt.Sprintf("Joined %s as %s", msg.StreamID, msg.UserName)

	case ViewerCountMsg:
		m.viewers = int(msg)

	case HistoryMsg:
		// A rejoin replays history, so it replaces rather than extends.
		m.messages = append(m.messages[:0], msg...)
		m.trim()

	case ChatMsg:
		m.messages = append(m.messages, protocol.ChatMessage(msg))
		m.trim()

	case PeerJoinedMsg:
		m.peers[msg.ID] = &peerEntry{info: protocol.PeerInfo(msg), state: "new"}

	case PeerLeftMsg:
		delete(m.peers, msg.ID)

	case PeerStateMsg:
		if p, ok := m.peers[msg.ID]; ok {
			p.state = msg.State
		}

	case ServerErrorMsg:
		m.notice = "Server rejected " + msg.Event + ": " + msg.Message
	}
	return m, nil
}

func (m *SessionModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return tea.Quit
	case tea.KeyEnter:
		line := strings.TrimSpace(string(m.input))
		m.input = m.input[:0]
		if line == "" || m.onChat == nil {
			return nil
		}
		if err := m.onChat(line); err != nil {
			m.notice = "Not sent: " + err.Error()
		}
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return nil
}

func (m *SessionModel) trim() {
	if over := len(m.messages) - maxChatLines; over > 0 {
		m.messages = append(m.messages[:0], m.messages[over:]...)
	}
}

func (m *SessionModel) View() string {
	if m.quitting && m.state != client.Failed {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(IconGlass + " " + m.room))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if len(m.messages) == 0 {
		b.WriteString(MutedStyle.Render("No tasting notes yet"))
		b.WriteString("\n")
	}
	for _, msg := range m.messages {
		name := msg.UserName
		if msg.IsHost {
			name = HostStyle.Render(IconHost + " " + name)
		} else {
			name = BoldStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s %s: %s\n", MutedStyle.Render(msg.Timestamp.Local().Format("15:04")), name, msg.Content)
	}

	if peers := m.peerLine(); peers != "" {
		b.WriteString("\n" + peers + "\n")
	}
	if m.notice != "" {
		b.WriteString("\n" + WarningStyle.Render(m.notice) + "\n")
	}
	if m.state == client.Failed && m.err != nil {
		b.WriteString("\n" + ErrorBoxStyle.Render(FormatError(m.err)) + "\n")
		return b.String()
	}

	b.WriteString("\n" + BoxStyle.Render(IconChat+" "+string(m.input)+"█"))
	b.WriteString("\n" + FooterStyle.Render("enter to send • esc to leave"))
	return b.String()
}

func (m *SessionModel) statusLine() string {
	var status string
	switch m.state {
	case client.Connected:
		status = SuccessStyle.Render(IconConnect+" connected") + MutedStyle.Render(" via "+m.transport)
	case client.Failed:
		status = ErrorStyle.Render(IconError + " failed")
	case client.Disconnected:
		status = MutedStyle.Render("disconnected")
	default:
		status = m.spinner.View() + " " + WarningStyle.Render(m.state.String()+"...")
		if m.err != nil {
			status += MutedStyle.Render(" (" + m.err.Error() + ")")
		}
	}
	role := ""
	if m.isHost {
		role = StatusStyle.Render("HOST") + " "
	}
	return fmt.Sprintf("%s%s  %s %d watching", role, status, IconPeer, m.viewers)
}

func (m *SessionModel) peerLine() string {
	if len(m.peers) == 0 {
		return ""
	}
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		p := m.peers[id]
		name := p.info.UserName
		if name == "" {
			name = id
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, p.state))
	}
	return MutedStyle.Render("Peers: " + strings.Join(parts, ", "))
}

// Session runs a SessionModel in a Bubble Tea program.
type Session struct {
	program *tea.Program
	model   *SessionModel
	once    sync.Once
}

func NewSession(model *SessionModel, opts ...tea.ProgramOption) *Session {
	return &Session{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Send delivers msg to the running view.
func (s *Session) Send(msg tea.Msg) {
	s.program.Send(msg)
}

// Run blocks until the user leaves or the controller fails.
func (s *Session) Run() error {
	_, err := s.program.Run()
	return err
}

func (s *Session) Quit() {
	s.once.Do(s.program.Quit)
}
