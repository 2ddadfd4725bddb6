// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command bridgewatch monitors the bridge rooms of a Matrix homeserver that
// gateways WhatsApp, Signal, and Telegram, archiving every inbound message
// into a document store. It also drives the QR handshake that bootstraps a
// platform login through the bridge bot.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/bridgewatch/pkg/archive"
	"github.com/aiku/bridgewatch/pkg/monitor"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgPath string
	cfg     *monitor.Config
	log     zerolog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "bridgewatch",
		Short:         "Matrix bridge-room monitor and message archiver",
		Version:       fmt.Sprintf("%s (%s, built %s)", Tag, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
				With().Timestamp().Logger()
			exzerolog.SetupDefaults(&log)
			if cmd.Name() == "example-config" {
				return nil
			}
			var err error
			cfg, err = monitor.LoadConfig(cfgPath)
			return err
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the config file")

	root.AddCommand(
		runCommand(),
		registerCommand(),
		roomsCommand(),
		qrCommand(),
		deleteAccountCommand(),
		exampleConfigCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printResult writes the uniform result shape as JSON and converts an error
// status into a non-zero exit.
func printResult(res monitor.Result) error {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if res.Status != monitor.StatusSuccess {
		return errors.New(res.Message)
	}
	return nil
}

// loggedInMonitor builds a monitor and logs it in.
func loggedInMonitor(ctx context.Context, sink monitor.Sink) (*monitor.Monitor, error) {
	m := monitor.New(cfg, sink, log)
	if res := m.Login(ctx); res.Status != monitor.StatusSuccess {
		return nil, errors.New(res.Message)
	}
	return m, nil
}

func runCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor bridge rooms and archive messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var sink monitor.Sink
			if dryRun {
				mem := archive.NewMemorySink()
				defer func() {
					log.Info().Int("records", mem.Len()).Msg("Dry run complete, records discarded")
				}()
				sink = mem
			} else {
				ms, err := archive.NewMongoSink(ctx, cfg.Archive.URI, cfg.Archive.Database, cfg.Archive.Collection, log)
				if err != nil {
					return err
				}
				defer func() {
					if err := ms.Close(context.Background()); err != nil {
						log.Warn().Err(err).Msg("Failed to close archive")
					}
				}()
				sink = ms
			}

			m, err := loggedInMonitor(ctx, sink)
			if err != nil {
				return err
			}
			return printResult(m.RunForever(ctx))
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "archive to memory instead of the document store")
	return cmd
}

func registerCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Provision a homeserver account via the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			m := monitor.New(cfg, nil, log)
			return printResult(m.Register(cmd.Context(), args[0], password))
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password for the new account")
	return cmd
}

func roomsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List, approve, or disable bridge rooms",
	}

	var invited, groupOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List classified bridge rooms",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			m, err := loggedInMonitor(c.Context(), nil)
			if err != nil {
				return err
			}
			kind := monitor.RoomJoined
			if invited {
				kind = monitor.RoomInvited
			}
			return printResult(m.ListRooms(c.Context(), kind, groupOnly))
		},
	}
	list.Flags().BoolVar(&invited, "invited", false, "list pending invites instead of joined rooms")
	list.Flags().BoolVar(&groupOnly, "group-only", false, "drop direct chats")

	approve := &cobra.Command{
		Use:   "approve <roomID>",
		Short: "Join a pending bridge room invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			m, err := loggedInMonitor(c.Context(), nil)
			if err != nil {
				return err
			}
			return printResult(m.ApproveRoom(c.Context(), id.RoomID(args[0])))
		},
	}

	disable := &cobra.Command{
		Use:   "disable <roomID>",
		Short: "Leave a bridge room",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			m, err := loggedInMonitor(c.Context(), nil)
			if err != nil {
				return err
			}
			return printResult(m.DisableRoom(c.Context(), id.RoomID(args[0])))
		},
	}

	cmd.AddCommand(list, approve, disable)
	return cmd
}

func qrCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "qr <platform>",
		Short: "Bootstrap a platform login by fetching its QR code from the bridge bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			m, err := loggedInMonitor(c.Context(), nil)
			if err != nil {
				return err
			}
			res := m.GenerateLoginQR(c.Context(), args[0])
			if res.Status != monitor.StatusSuccess {
				return printResult(res)
			}
			qr := res.Payload.(*monitor.QRResult)
			if outPath != "" {
				if err := os.WriteFile(outPath, qr.PNG, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", outPath, err)
				}
				log.Info().Str("path", outPath).Msg("Wrote QR code")
			}
			code, err := qrcode.New(qr.Payload, qrcode.Medium)
			if err != nil {
				return err
			}
			fmt.Print(code.ToSmallString(false))
			return printResult(monitor.Result{
				Status:  res.Status,
				Message: res.Message,
				Payload: map[string]string{"platform": qr.Platform, "payload": qr.Payload},
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the QR code PNG to this file")
	return cmd
}

func deleteAccountCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Deactivate the monitor account via the admin API",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete without --yes")
			}
			m, err := loggedInMonitor(c.Context(), nil)
			if err != nil {
				return err
			}
			return printResult(m.DeleteAccount(c.Context()))
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm account deletion")
	return cmd
}

func exampleConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "example-config",
		Short: "Print the example config file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Print(monitor.ExampleConfig)
			return nil
		},
	}
}
