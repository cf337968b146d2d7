package ui

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
)

func TestRoomTable(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	view := NewRoomTable([]room.Stats{
		{ID: "tasting-42", Viewers: 3, Messages: 12, CreatedAt: now.Add(-90 * time.Minute)},
		{ID: "rye-night", Viewers: 1, CreatedAt: now.Add(-10 * time.Second)},
	}, now).View()

	require.Contains(t, view, "tasting-42")
	require.Contains(t, view, "rye-night")
	require.Contains(t, view, "1h30m")
	require.Contains(t, view, "just now")

	require.Contains(t, NewRoomTable(nil, now).View(), "No active tastings")
}

func TestFormatAgeAndTruncate(t *testing.T) {
	require.Equal(t, "just now", formatAge(30*time.Second))
	require.Equal(t, "5m", formatAge(5*time.Minute))
	require.Equal(t, "2h05m", formatAge(125*time.Minute))

	require.Equal(t, "short", truncateString("short", 10))
	require.Equal(t, "abcd...", truncateString("abcdefghij", 7))
}

func TestSessionModel_TracksRoom(t *testing.T) {
	req := require.New(t)
	m := NewSessionModel("tasting-42", nil)

	m.Update(StateMsg{State: client.Connected, Transport: protocol.TransportWebSocket})
	m.Update(JoinedMsg{StreamID: "tasting-42", Count: 2, UserName: "Host", IsHost: true})
	m.Update(HistoryMsg{{UserName: "Sam", Content: "Caramel on the nose"}})
	m.Update(ChatMsg{UserName: "Host", IsHost: true, Content: "Welcome"})
	m.Update(PeerJoinedMsg{ID: "c2", UserName: "Sam"})
	m.Update(PeerStateMsg{ID: "c2", State: "connected"})

	view := m.View()
	req.Contains(view, "tasting-42")
	req.Contains(view, "connected")
	req.Contains(view, "HOST")
	req.Contains(view, "2 watching")
	req.Contains(view, "Caramel on the nose")
	req.Contains(view, "Welcome")
	req.Contains(view, "Sam (connected)")

	m.Update(PeerLeftMsg{ID: "c2"})
	m.Update(ViewerCountMsg(1))
	view = m.View()
	req.NotContains(view, "Sam (connected)")
	req.Contains(view, "1 watching")

	// A replayed history replaces what is on screen.
	m.Update(HistoryMsg{})
	req.Contains(m.View(), "No tasting notes yet")
}

func TestSessionModel_KeepsRecentChat(t *testing.T) {
	m := NewSessionModel("tasting-42", nil)
	for i := 0; i < maxChatLines+5; i++ {
		m.Update(ChatMsg{UserName: "Sam", Content: fmt.Sprintf("note %d", i)})
	}
	require.Len(t, m.messages, maxChatLines)
	require.Equal(t, "note 5", m.messages[0].Content)
}

func TestSessionModel_SubmitsChat(t *testing.T) {
	req := require.New(t)
	var sent []string
	fail := false
	m := NewSessionModel("tasting-42", func(line string) error {
		if fail {
			return errors.New("not connected")
		}
		sent = append(sent, line)
		return nil
	})

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("oaky")})
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("finishx")})
	m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	req.Equal([]string{"oaky finish"}, sent)
	req.Empty(m.input)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	req.Len(sent, 1)

	fail = true
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("lost")})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	req.Contains(m.View(), "Not sent: not connected")
}

func TestSessionModel_QuitsWhenControllerFails(t *testing.T) {
	m := NewSessionModel("tasting-42", nil)
	_, cmd := m.Update(StateMsg{State: client.Failed, Err: client.ErrReconnectFailed})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Contains(t, m.View(), client.ErrReconnectFailed.Error())

	m = NewSessionModel("tasting-42", nil)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Empty(t, m.View())
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	prev := Output
	Output = &buf
	t.Cleanup(func() { Output = prev })

	PrintSuccessf("joined %s", "tasting-42")
	PrintError("boom")
	require.Contains(t, buf.String(), "joined tasting-42")
	require.Contains(t, buf.String(), "boom")

	buf.Reset()
	sp := NewSimpleSpinner("Connecting")
	sp.Start()
	sp.Stop()
	sp.Stop()
	require.Contains(t, buf.String(), "Connecting")

	buf.Reset()
	stop := RunSpinner("Picking a room name...")
	stop()
	PrintInfof("Left %s", "tasting-42")
	PrintWarning("Left early")
	require.Contains(t, buf.String(), "Left tasting-42")
	require.Contains(t, buf.String(), "Left early")

	buf.Reset()
	sp = NewConnectionSpinner("Fetching rooms")
	sp.Start()
	sp.Success("2 live tasting rooms")
	require.Contains(t, buf.String(), "2 live tasting rooms")
}
