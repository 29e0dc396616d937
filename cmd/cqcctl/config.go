package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cqcctl/internal/config"
	"github.com/danmuck/cqcctl/internal/protocol/session"
)

type fileConfig struct {
	Network        string `toml:"network"`
	Node           string `toml:"node"`
	AppID          uint16 `toml:"app_id"`
	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	Allocate       bool   `toml:"allocate"`
	SendTo         string `toml:"send_to"`
	RemoteAppID    uint16 `toml:"remote_app_id"`
}

// probeConfig drives one cqcctl run against a node from the network table.
type probeConfig struct {
	NetworkPath string
	Node        string
	Session     session.Config
	Allocate    bool
	SendTo      string
	RemoteAppID uint16
}

func defaultProbeConfig() probeConfig {
	cfg := session.DefaultConfig()
	cfg.AppID = 10
	return probeConfig{
		NetworkPath: "network.toml",
		Node:        "Alice",
		Session:     cfg,
	}
}

func loadProbeConfig(path string) (probeConfig, error) {
	cfg := defaultProbeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return probeConfig{}, fmt.Errorf("load cqcctl config: %w", err)
	}

	if meta.IsDefined("network") {
		cfg.NetworkPath = strings.TrimSpace(raw.Network)
	}
	if !filepath.IsAbs(cfg.NetworkPath) {
		cfg.NetworkPath = filepath.Join(filepath.Dir(path), cfg.NetworkPath)
	}

	if meta.IsDefined("node") {
		cfg.Node = strings.TrimSpace(raw.Node)
	}

	if meta.IsDefined("app_id") {
		cfg.Session.AppID = raw.AppID
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return probeConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("allocate") {
		cfg.Allocate = raw.Allocate
	}

	if meta.IsDefined("send_to") {
		cfg.SendTo = strings.TrimSpace(raw.SendTo)
		cfg.Allocate = true
	}

	if meta.IsDefined("remote_app_id") {
		cfg.RemoteAppID = raw.RemoteAppID
	}

	return cfg, nil
}

// sessionConfig points the probe's session settings at node.
func (p probeConfig) sessionConfig(node config.NodeConfig) session.Config {
	cfg := config.SessionConfig(node, p.Session.AppID)
	cfg.ConnectTimeout = p.Session.ConnectTimeout
	cfg.ReadTimeout = p.Session.ReadTimeout
	cfg.WriteTimeout = p.Session.WriteTimeout
	return cfg.WithDefaults()
}
