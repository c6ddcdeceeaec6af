// Package main is the gobyte CLI entrypoint: send/receive subcommands over
// urfave/cli/v3, grounded on the teacher's cmd/cmd.go command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/toolza/gobyte/logging"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/progress/logview"
	"github.com/toolza/gobyte/progress/mpbview"
	"github.com/toolza/gobyte/receiver"
	"github.com/toolza/gobyte/sender"
	"github.com/toolza/gobyte/transport"
)

const version = "0.1.0"

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "gobyte",
		Usage:   "adaptive LAN file transfer",
		Version: version,
		Commands: []*cli.Command{
			sendCommand(),
			receiveCommand(),
		},
	}
}

func sharedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "port", Aliases: []string{"p"}, Value: uint64(plan.DefaultPort)},
		&cli.StringFlag{Name: "transport", Aliases: []string{"t"}, Value: "tcp", Usage: "tcp|quic|kcp"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send files or folders to one or more targets",
		Flags: append(sharedFlags(),
			&cli.StringSliceFlag{Name: "to", Usage: "target host[:port]; repeatable"},
			&cli.BoolFlag{Name: "compress", Aliases: []string{"c"}},
			&cli.BoolFlag{Name: "sync"},
			&cli.BoolFlag{Name: "flat"},
		),
		Action: sendAction,
	}
}

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "listen for incoming transfers",
		Flags: append(sharedFlags(),
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "save directory (default: ~/Downloads)"},
			&cli.BoolFlag{Name: "extract", Aliases: []string{"e"}},
		),
		Action: receiveAction,
	}
}

func sendAction(ctx context.Context, cmd *cli.Command) error {
	opts := plan.Options{
		Port:      uint16(cmd.Uint("port")),
		Transport: transport.Kind(cmd.String("transport")),
		Compress:  cmd.Bool("compress"),
		Sync:      cmd.Bool("sync"),
		Flat:      cmd.Bool("flat"),
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths, err = pickPaths(cwd)
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		fmt.Println(warn.Render("nothing selected, exiting"))
		return nil
	}

	targets := cmd.StringSlice("to")
	if len(targets) == 0 {
		targets, err = pickTargets(2*time.Second, opts.Port)
		if err != nil {
			return err
		}
	}

	bus := progress.NewBus()
	bars := mpbview.New(bus)
	logs := logview.New(bus, logger)
	defer bars.Close()
	defer logs.Close()

	fmt.Println(title.Render("gobyte"), info.Render(fmt.Sprintf("sending %d item(s) to %s", len(paths), strings.Join(targets, ", "))))

	eng := sender.NewEngine(opts, bus, logger)
	results, err := eng.Send(ctx, targets, paths)
	if err != nil {
		return err
	}

	bars.Wait()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Println(fail.Render(fmt.Sprintf("%s: %v", r.Target, r.Err)))
		} else {
			fmt.Println(success.Render(fmt.Sprintf("%s: done", r.Target)))
		}
	}

	if failed == len(results) && failed > 0 {
		return fmt.Errorf("all %d target(s) failed", failed)
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

func receiveAction(ctx context.Context, cmd *cli.Command) error {
	opts := plan.Options{
		Port:      uint16(cmd.Uint("port")),
		Transport: transport.Kind(cmd.String("transport")),
		Extract:   cmd.Bool("extract"),
		SaveDir:   cmd.String("dir"),
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	bus := progress.NewBus()
	bars := mpbview.New(bus)
	logs := logview.New(bus, logger)
	defer bars.Close()
	defer logs.Close()

	eng := receiver.NewEngine(opts, bus, logger)
	fmt.Println(title.Render("gobyte"), info.Render(fmt.Sprintf("receiving on :%d (%s), saving to %s", opts.Port, opts.Transport, eng.Opts.SaveDir)))

	return eng.Serve(ctx)
}

func newLogger(cmd *cli.Command) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cmd.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	return logging.New(logging.Config{Console: cmd.Bool("verbose"), Level: level})
}
