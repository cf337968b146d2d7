package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
)

// RoomTable renders live room statistics using lipgloss/table
type RoomTable struct {
	rooms []room.Stats
	now   time.Time
}

// NewRoomTable creates a table of rooms; ages are measured against now.
func NewRoomTable(rooms []room.Stats, now time.Time) *RoomTable {
	return &RoomTable{rooms: rooms, now: now}
}

// View renders the table as a string
func (t *RoomTable) View() string {
	if len(t.rooms) == 0 {
		return MutedStyle.Render("No active tastings")
	}

	headers := []string{"Room", "Viewers", "Messages", "Open for"}
	rows := make([][]string, 0, len(t.rooms))
	for _, r := range t.rooms {
		rows = append(rows, []string{
			truncateString(r.ID, 40),
			strconv.Itoa(r.Viewers),
			strconv.Itoa(r.Messages),
			formatAge(t.now.Sub(r.CreatedAt)),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// Render outputs the table to Output
func (t *RoomTable) Render() {
	fmt.Fprintln(Output, t.View())
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
