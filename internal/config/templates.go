package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "network":
		return networkTemplate, nil
	case "probe":
		return probeTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const networkTemplate = `[[nodes]]
name = "Alice"
host = "127.0.0.1"
port = 8821

[[nodes]]
name = "Bob"
host = "127.0.0.1"
port = 8822

[[nodes]]
name = "Charlie"
host = "127.0.0.1"
port = 8823
`

const probeTemplate = `network = "network.toml"
node = "Alice"
app_id = 10
connect_timeout = "5s"
read_timeout = "10s"
write_timeout = "5s"
allocate = true
`
