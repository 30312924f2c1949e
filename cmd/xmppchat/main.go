// Copyright 2024-2026 Aiku AI

// Command xmppchat is an interactive XMPP client. It logs in with the
// account from its config file, joins the configured rooms and reads chat
// commands from standard input.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aiku/xmppchat/pkg/chat"
	"github.com/aiku/xmppchat/pkg/chat/xmppconn"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/configupgrade"
	"go.mau.fi/util/exzerolog"
	"gopkg.in/yaml.v3"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		noUpdate   bool
	)
	root := &cobra.Command{
		Use:          "xmppchat",
		Short:        "An interactive XMPP chat client",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")

	run := &cobra.Command{
		Use:   "run",
		Short: "Connect and start the interactive prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, !noUpdate)
			if err != nil {
				return err
			}
			log, err := cfg.Logging.Compile()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			exzerolog.SetupDefaults(log)
			return runClient(cmd.Context(), cfg, *log, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	run.Flags().BoolVarP(&noUpdate, "no-update", "n", false, "don't write the upgraded config back to disk")

	exampleConfig := &cobra.Command{
		Use:   "example-config",
		Short: "Print the example config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), chat.ExampleConfig)
			return err
		},
	}

	root.AddCommand(run, exampleConfig)
	return root
}

// loadConfig upgrades the file at path against the example config and
// decodes the result.
func loadConfig(path string, save bool) (*chat.Config, error) {
	data, _, err := configupgrade.Do(path, save, chat.ConfigUpgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	var cfg chat.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func runClient(ctx context.Context, cfg *chat.Config, log zerolog.Logger, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	factory := xmppconn.NewFactory(xmppconn.OptionsFromConfig(cfg), log)
	ctrl := chat.NewSessionController(factory, log)
	defer ctrl.Close()

	ended := make(chan error, 1)
	end := func(err error) {
		select {
		case ended <- err:
		default:
		}
	}
	printer := &printer{out: out, cfg: cfg}
	printer.subscribe(ctrl.Sink())
	ctrl.Sink().Subscribe(chat.EventLoginComplete, chat.Handle(func(evt chat.LoginCompleteEvent) {
		if !evt.Success {
			end(fmt.Errorf("login failed: %s", evt.Error))
			return
		}
		joinConfiguredRooms(ctx, ctrl, cfg.Rooms)
	}))
	ctrl.Sink().Subscribe(chat.EventLogoutComplete, chat.Handle(func(evt chat.LogoutCompleteEvent) {
		if evt.Success {
			end(nil)
		} else {
			end(fmt.Errorf("disconnected: %s", evt.Error))
		}
	}))

	if err := ctrl.LoginWithServer(ctx, cfg.UserID, cfg.Password, cfg.Server()); err != nil {
		return err
	}

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		repl := &repl{ctrl: ctrl, out: out}
		repl.run(ctx, in)
	}()

	select {
	case err := <-ended:
		return err
	case <-ctx.Done():
	case <-quit:
	}

	log.Info().Msg("Shutting down")
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := ctrl.Finish(finishCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to finish session")
	}
	if ctrl.State() == chat.StateDone {
		return nil
	}
	select {
	case err := <-ended:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("Session ended with error")
		}
	case <-finishCtx.Done():
		log.Warn().Msg("Timed out waiting for logout")
	}
	return nil
}

func joinConfiguredRooms(ctx context.Context, ctrl *chat.SessionController, rooms []chat.AutoJoinRoom) {
	log := zerolog.Ctx(ctx)
	for _, room := range rooms {
		nickname := room.Nickname
		if nickname == "" {
			nickname = ctrl.Identity().Local
		}
		err := ctrl.JoinRoom(ctx, chat.MakeRoomID(room.Room), nickname, room.Password)
		if err != nil {
			log.Warn().Err(err).Str("room_id", room.Room).Msg("Failed to join configured room")
		}
	}
}
