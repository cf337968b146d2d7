package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/logging"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/ui"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/version"
)

var (
	flagServer      string
	flagTransports  string
	flagCodec       string
	flagMaxAttempts int
	flagRetryDelay  time.Duration
	flagLogLevel    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tasting",
	Short: "Join live tasting sessions from the terminal",
	Long: `tasting connects to a tasting server, joins a room and follows the live chat.
It reconnects on its own when the server drops the connection, falling back from
websocket to long-polling when the stream cannot be established.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(flagLogLevel, slog.LevelWarn))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagServer, "server", "s", "", "Tasting server URL (default http://localhost:8080)")
	pf.StringVar(&flagTransports, "transports", "", "Comma-separated transports in preference order (websocket,polling)")
	pf.StringVar(&flagCodec, "codec", "", "Websocket codec: json or msgpack")
	pf.IntVar(&flagMaxAttempts, "max-attempts", 0, "Consecutive failed connection attempts before giving up")
	pf.DurationVar(&flagRetryDelay, "retry-delay", 0, "Delay between connection attempts")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
