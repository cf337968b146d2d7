package room

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

func TestHistory_EmptySnapshotIsNotNil(t *testing.T) {
	h := NewHistory(DefaultHistoryLimit)

	snap := h.Snapshot()
	require.NotNil(t, snap)
	require.Empty(t, snap)
}

func TestHistory_EvictsOldestAfterLimit(t *testing.T) {
	req := require.New(t)
	h := NewHistory(DefaultHistoryLimit)

	for i := 1; i <= 101; i++ {
		h.Append(protocol.ChatMessage{ID: fmt.Sprintf("m-%d", i), Content: fmt.Sprintf("%d", i)})
		req.LessOrEqual(h.Len(), DefaultHistoryLimit)
	}

	snap := h.Snapshot()
	req.Len(snap, 100)
	for i, msg := range snap {
		req.Equal(fmt.Sprintf("m-%d", i+2), msg.ID)
	}
}

func TestHistory_KeepsDuplicateIDs(t *testing.T) {
	h := NewHistory(3)
	h.Append(protocol.ChatMessage{ID: "same", Content: "a"})
	h.Append(protocol.ChatMessage{ID: "same", Content: "b"})

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "a", snap[0].Content)
	require.Equal(t, "b", snap[1].Content)
}

func TestHistory_SnapshotIsACopy(t *testing.T) {
	h := NewHistory(2)
	h.Append(protocol.ChatMessage{ID: "1"})

	snap := h.Snapshot()
	snap[0].ID = "changed"

	require.Equal(t, "1", h.Snapshot()[0].ID)
}

func TestHistory_NonPositiveLimitFallsBackToDefault(t *testing.T) {
	require.Equal(t, DefaultHistoryLimit, NewHistory(0).Cap())
}

func TestHistory_LimitIsClampedToMax(t *testing.T) {
	h := NewHistory(MaxHistoryLimit + 1)
	require.Equal(t, MaxHistoryLimit, h.Cap())

	for i := 0; i < 2*MaxHistoryLimit; i++ {
		h.Append(protocol.ChatMessage{ID: strconv.Itoa(i)})
	}
	require.Equal(t, MaxHistoryLimit, h.Len())
	require.Equal(t, strconv.Itoa(MaxHistoryLimit), h.Snapshot()[0].ID)
}
