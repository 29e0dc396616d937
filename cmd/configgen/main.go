package main

import (
	"flag"
	"os"

	"github.com/danmuck/cqcctl/internal/config"
	"github.com/danmuck/cqcctl/internal/observability"
)

func main() {
	logger := observability.InitLogger("configgen")

	kind := flag.String("kind", "network", "config kind: network|probe")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing network config file")
	input := flag.String("input", "", "config path for validation (defaults to cmd/cqcctl/network.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "network" {
			logger.Error().Str("kind", *kind).Msg("only network configs can be validated here; run cqcctl to check a probe config")
			os.Exit(1)
		}
		path := *input
		if path == "" {
			path = "cmd/cqcctl/network.toml"
		}
		network, err := config.LoadNetwork(path)
		if err != nil {
			logger.Error().Err(err).Msg("validation failed")
			os.Exit(1)
		}
		logger.Info().Str("path", path).Int("nodes", len(network.Nodes)).Msg("validated network config")
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "network":
			target = "cmd/cqcctl/network.toml"
		case "probe":
			target = "cmd/cqcctl/config.toml"
		default:
			logger.Error().Str("kind", *kind).Msg("unknown kind")
			os.Exit(1)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		logger.Error().Err(err).Msg("write template failed")
		os.Exit(1)
	}
	logger.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
