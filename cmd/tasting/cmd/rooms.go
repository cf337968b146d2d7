package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the live tasting rooms on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig("")
		if err != nil {
			return err
		}

		sp := ui.NewConnectionSpinner("Fetching rooms from " + cfg.ServerURL.Host + "...")
		sp.Start()
		stats, err := fetchRooms(cmd.Context(), cfg.RoomsURL())
		if err != nil {
			sp.Stop()
			return err
		}
		sp.Success(fmt.Sprintf("%d live tasting rooms on %s", len(stats), cfg.ServerURL.Host))

		ui.NewRoomTable(stats, time.Now()).Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}

func fetchRooms(ctx context.Context, target string) ([]room.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: &http.Transport{DialContext: client.DialContext}}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: unexpected status %s", resp.Status)
	}
	var stats []room.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	return stats, nil
}
