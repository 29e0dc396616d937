package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/cqcctl/internal/config"
	"github.com/danmuck/cqcctl/internal/observability"
	"github.com/danmuck/cqcctl/internal/protocol/session"
	"github.com/danmuck/cqcctl/internal/protocol/wire"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "cmd/cqcctl/config.toml"

func main() {
	logger := observability.InitLogger("cqcctl")

	path := defaultConfigPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, path, logger); err != nil {
		logger.Error().Err(err).Msg("cqcctl failed")
		stop()
		os.Exit(1)
	}
}

// run dials the configured node, says HELLO, and when asked allocates a qubit,
// applies H, and either measures it or sends it to another node.
func run(ctx context.Context, path string, logger zerolog.Logger) (err error) {
	probe, err := loadProbeConfig(path)
	if err != nil {
		return err
	}
	network, err := config.LoadNetwork(probe.NetworkPath)
	if err != nil {
		return err
	}
	node, err := network.Lookup(probe.Node)
	if err != nil {
		return err
	}

	cfg := probe.sessionConfig(node)
	cfg.Logger = &logger
	s, err := session.Dial(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()

	if err := s.Hello(ctx); err != nil {
		return err
	}
	logger.Info().Str("node", node.Name).Str("addr", node.Addr()).Uint16("app_id", cfg.AppID).Msg("hello sent")
	if !probe.Allocate {
		return nil
	}

	id, err := s.Allocate(ctx)
	if err != nil {
		return err
	}
	if err := s.Gate(ctx, wire.InstrH, id); err != nil {
		return err
	}

	if probe.SendTo != "" {
		remote, err := network.Lookup(probe.SendTo)
		if err != nil {
			return err
		}
		remoteNode, err := remote.NodeID()
		if err != nil {
			return err
		}
		if err := s.Send(ctx, id, probe.RemoteAppID, remoteNode, remote.Port); err != nil {
			return err
		}
		if err := s.WaitUntilDone(ctx, 1); err != nil {
			return err
		}
		logger.Info().Uint16("qubit", id).Str("to", remote.Name).Uint16("remote_app_id", probe.RemoteAppID).Msg("qubit sent")
		return nil
	}

	outcome, err := s.Measure(ctx, id)
	if err != nil {
		return err
	}
	logger.Info().Uint16("qubit", id).Uint8("outcome", outcome).Msg("measured")
	return nil
}
