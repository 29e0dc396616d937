package config

import (
	"github.com/danmuck/cqcctl/internal/protocol/session"
)

// SessionConfig returns session defaults pointed at node for appID.
func SessionConfig(node NodeConfig, appID uint16) session.Config {
	cfg := session.DefaultConfig()
	cfg.Address = node.Addr()
	cfg.AppID = appID
	return cfg
}
