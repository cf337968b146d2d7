package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

func frame(t *testing.T, event, payload string) protocol.Inbound {
	t.Helper()
	in, err := protocol.JSON.Decode([]byte(`{"type":"` + event + `","payload":` + payload + `}`))
	require.NoError(t, err)
	return in
}

func TestHandler_RoutesTypedPayloads(t *testing.T) {
	req := require.New(t)
	h := client.NewHandler(quietLogger())
	frames := make(chan protocol.Inbound, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx, frames, nil)

	frames <- frame(t, protocol.EventJoinedStream, `{"streamId":"tasting-42","count":2,"userName":"Ann","isHost":false}`)
	frames <- frame(t, protocol.EventViewerCount, `2`)
	frames <- frame(t, protocol.EventChatHistory, `[]`)
	frames <- frame(t, protocol.EventAck, `{"time":1}`)
	frames <- frame(t, protocol.EventChatMessage, `{"id":"m1","streamId":"tasting-42","userName":"Host","isHost":true,"content":"Welcome","timestamp":"2024-01-01T00:00:00Z"}`)
	frames <- frame(t, protocol.EventSignal, `{"from":"b","type":"offer","signal":{"sdp":"v=0"}}`)
	frames <- frame(t, protocol.EventPeerLeft, `{"id":"b"}`)
	frames <- frame(t, protocol.EventError, `{"event":"join-stream","message":"malformed join"}`)

	wait := func() <-chan time.Time { return time.After(2 * time.Second) }

	select {
	case joined := <-h.Joined:
		req.Equal(protocol.Joined{StreamID: "tasting-42", Count: 2, UserName: "Ann"}, joined)
	case <-wait():
		req.Fail("no joined")
	}
	req.Equal(2, <-h.ViewerCount)
	req.Empty(<-h.History)

	msg := <-h.Chat
	req.Equal("Welcome", msg.Content)
	req.True(msg.IsHost)

	signal := <-h.Signal
	req.Equal("b", signal.From)
	req.Equal(protocol.SignalOffer, signal.Type)
	req.JSONEq(`{"sdp":"v=0"}`, string(signal.Signal.Bytes()))

	req.Equal(protocol.PeerLeft{ID: "b"}, <-h.PeerLeft)
	req.Equal("malformed join", (<-h.Error).Message)
}
