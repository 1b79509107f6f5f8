// Command psych is a headless client for the party game server: it keeps a
// local mirror of the room state, persists the session for reconnects, and
// optionally serves the mirror on a local debug endpoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/psychgame/client/internal/client"
	"github.com/psychgame/client/internal/config"
	"github.com/psychgame/client/internal/httpapi"
	"github.com/psychgame/client/internal/session"
	"github.com/psychgame/client/internal/state"
	"github.com/psychgame/client/internal/transport"
)

func main() {
	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	// A local .env is optional; real env vars win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PSYCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "psych",
		Short:         "Headless client for the Psych party game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.ServerURL, "server", "s", "ws://localhost:3001/ws", "websocket URL of the game server (env: PSYCH_SERVER)")
	fs.StringVar(&cfg.SessionFile, "session-file", config.DefaultSessionFile(), "path to the local session record (env: PSYCH_SESSION_FILE)")
	fs.StringVar(&cfg.DebugAddr, "debug-addr", "", "address for the local /state debug endpoint, empty to disable (env: PSYCH_DEBUG_ADDR)")
	fs.DurationVar(&cfg.RejoinTimeout, "rejoin-timeout", client.DefaultRejoinTimeout, "how long a startup rejoin may wait for an answer (env: PSYCH_REJOIN_TIMEOUT)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display debug output (env: PSYCH_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()

	store := session.NewStore(afero.NewOsFs(), cfg.SessionFile)

	ch, err := transport.Dial(ctx, cfg.ServerURL, log)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.ServerURL, err)
	}

	c := client.New(ctx, ch, store, log, client.Options{RejoinTimeout: cfg.RejoinTimeout})
	defer c.Close()

	if cfg.DebugAddr != "" {
		srv := &http.Server{Addr: cfg.DebugAddr, Handler: httpapi.SetupRoutes(c)}
		go func() {
			log.Info().Str("addr", cfg.DebugAddr).Msg("debug endpoint listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("debug endpoint failed")
			}
		}()
		defer srv.Close()
	}

	snaps := make(chan state.Snapshot, 8)
	c.Subscribe("cli", snaps)

	go func() {
		for n := range c.Notices() {
			switch n.Kind {
			case client.NoticeTimer:
				log.Debug().Int("seconds", n.Seconds).Msg("round timer")
			case client.NoticeError:
				log.Error().Str("message", n.Message).Msg("server error")
			default:
				log.Info().Str("message", n.Message).Str("kind", string(n.Kind)).Msg("notice")
			}
		}
	}()

	var lastPhase state.Phase
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.State.Phase != lastPhase {
				lastPhase = snap.State.Phase
				log.Info().
					Str("phase", string(snap.State.Phase)).
					Str("room", snap.State.RoomCode).
					Int("players", len(snap.State.Players)).
					Msg("phase changed")
			}
		}
	}
}
