package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrUnknownNode = errors.New("config: unknown node")
	ErrNotIPv4     = errors.New("config: node host has no IPv4 address")
)

// Network is the table of CQC nodes an application may reach.
type Network struct {
	Nodes []NodeConfig `toml:"nodes"`
}

// NodeConfig is one named node endpoint.
type NodeConfig struct {
	Name string `toml:"name"`
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
}

// Addr is the dialable host:port of the node.
func (n NodeConfig) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(int(n.Port)))
}

// NodeID packs the node's IPv4 address into the big-endian u32 carried in
// remote_node fields. Host names are resolved first.
func (n NodeConfig) NodeID() (uint32, error) {
	ip := net.ParseIP(n.Host)
	if ip == nil {
		addrs, err := net.LookupIP(n.Host)
		if err != nil {
			return 0, fmt.Errorf("config: resolve %s: %w", n.Host, err)
		}
		for _, addr := range addrs {
			if addr.To4() != nil {
				ip = addr
				break
			}
		}
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotIPv4, n.Host)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}

// LoadNetwork reads and validates a node table.
func LoadNetwork(path string) (Network, error) {
	var cfg Network
	if err := loadToml(path, &cfg); err != nil {
		return Network{}, err
	}
	for i := range cfg.Nodes {
		if strings.TrimSpace(cfg.Nodes[i].Host) == "" {
			cfg.Nodes[i].Host = "localhost"
		}
	}
	if err := ValidateNetwork(cfg); err != nil {
		return Network{}, err
	}
	return cfg, nil
}

// Lookup returns the node called name.
func (n Network) Lookup(name string) (NodeConfig, error) {
	for _, node := range n.Nodes {
		if node.Name == name {
			return node, nil
		}
	}
	return NodeConfig{}, fmt.Errorf("%w: %s", ErrUnknownNode, name)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateNetwork(cfg Network) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("network config has no nodes")
	}
	seen := make(map[string]struct{}, len(cfg.Nodes))
	for i, node := range cfg.Nodes {
		if err := ValidateNode(node); err != nil {
			return fmt.Errorf("node[%d] invalid: %w", i, err)
		}
		if _, ok := seen[node.Name]; ok {
			return fmt.Errorf("node[%d] invalid: duplicate name %q", i, node.Name)
		}
		seen[node.Name] = struct{}{}
	}
	return nil
}

func ValidateNode(cfg NodeConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	return nil
}
