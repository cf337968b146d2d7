package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/peer"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/ui"
)

var (
	flagWatchName string
	flagWatchHost bool
	flagWatchSTUN string
)

var watchCmd = &cobra.Command{
	Use:     "watch [room]",
	Aliases: []string{"w", "join"},
	Short:   "Join a tasting room and follow the live chat",
	Long: `Join a tasting room, replay its recent chat and post your own notes.

As host, every viewer that joins is offered a WebRTC connection over the
server's signaling relay. A host may leave out the room to open a fresh one
under a generated name.

Examples:
  tasting watch tasting-42 --name Sam
  tasting watch tasting-42 --host --name "Master Distiller"
  tasting watch --host
  tasting watch tasting-42 --transports polling`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return watchRoom(cmd.Context(), args[0])
		}
		if !flagWatchHost {
			return errors.New("a room is required unless joining as --host")
		}
		roomID, err := freshRoom(cmd.Context())
		if err != nil {
			return err
		}
		ui.PrintSuccessf("Opening room %s", ui.BoldStyle.Render(roomID))
		return watchRoom(cmd.Context(), roomID)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&flagWatchName, "name", "n", "", "Display name in the room (default Anonymous)")
	watchCmd.Flags().BoolVar(&flagWatchHost, "host", false, "Join as the host of the tasting")
	watchCmd.Flags().StringVar(&flagWatchSTUN, "stun", "", "STUN server for peer connections")
	rootCmd.AddCommand(watchCmd)
}

// freshRoom picks a generated room name that no live room on the server uses.
func freshRoom(ctx context.Context) (string, error) {
	cfg, err := LoadConfig(flagWatchSTUN)
	if err != nil {
		return "", err
	}
	stopSpinner := ui.RunSpinner("Picking a room name...")
	defer stopSpinner()
	stats, err := fetchRooms(ctx, cfg.RoomsURL())
	if err != nil {
		return "", err
	}
	live := make(map[string]bool, len(stats))
	for _, s := range stats {
		live[s.ID] = true
	}
	return room.NewName(func(name string) bool { return live[name] }), nil
}

func watchRoom(ctx context.Context, roomID string) error {
	cfg, err := LoadConfig(flagWatchSTUN)
	if err != nil {
		return err
	}
	logger := slog.Default()

	ctrl, err := NewController(cfg, logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	// Remembered before Start so the first connection joins too.
	if err := ctrl.Join(protocol.JoinObject{StreamID: roomID, UserName: flagWatchName, IsHost: flagWatchHost}); err != nil {
		return err
	}

	session := ui.NewSession(ui.NewSessionModel(roomID, ctrl.Chat))
	negotiator := peer.NewNegotiator(cfg.GetSTUNServers(), ctrl, logger.With("component", "peer"))
	negotiator.OnState = func(remoteID string, state pion.PeerConnectionState) {
		session.Send(ui.PeerStateMsg{ID: remoteID, State: state.String()})
	}
	defer negotiator.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := client.NewHandler(logger)
	go handler.Run(ctx, ctrl.Frames(), ctrl.Done())
	go pump(ctx, ctrl, handler, negotiator, session, logger)
	go func() {
		<-ctx.Done()
		session.Quit()
	}()

	if err := ctrl.Start(); err != nil {
		return err
	}
	if err := session.Run(); err != nil {
		return fmt.Errorf("session view: %w", err)
	}

	switch ctrl.State() {
	case client.Failed:
		return ctrl.Err()
	case client.Connected:
		ui.PrintInfof("Left %s", roomID)
	default:
		ui.PrintWarning("Left " + roomID + " before the connection was established")
	}
	return nil
}

// pump feeds controller and handler events to the negotiator and the view.
func pump(ctx context.Context, ctrl *client.Controller, h *client.Handler, n *peer.Negotiator, session *ui.Session, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-ctrl.Updates():
			if !ok {
				return
			}
			session.Send(ui.StateMsg(u))

		case joined := <-h.Joined:
			session.Send(ui.JoinedMsg(joined))

		case count := <-h.ViewerCount:
			session.Send(ui.ViewerCountMsg(count))

		case history := <-h.History:
			session.Send(ui.HistoryMsg(history))

		case msg := <-h.Chat:
			session.Send(ui.ChatMsg(msg))

		case info := <-h.PeerJoined:
			session.Send(ui.PeerJoinedMsg(info))
			if flagWatchHost {
				go func(id string) {
					if err := n.Offer(id); err != nil {
						logger.Warn("failed to offer peer connection", "peer", id, "error", err)
					}
				}(info.ID)
			}

		case left := <-h.PeerLeft:
			n.Remove(left.ID)
			session.Send(ui.PeerLeftMsg(left))

		case signal := <-h.Signal:
			if err := n.HandleSignal(signal); err != nil {
				logger.Debug("failed to apply signal", "from", signal.From, "type", signal.Type, "error", err)
			}

		case e := <-h.Error:
			session.Send(ui.ServerErrorMsg(e))
		}
	}
}
