package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes a commented sample configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(rankTemplate), 0o600)
}

const rankTemplate = `name = "rank-0"
rank = 0
admin_addr = ":9200"

[exchange]
nghost = 2
coarse_nghost = 2
# abort the run if a receive stays incomplete this long; "" disables
receive_timeout = "30s"

[exchange.sparse]
enabled = true
allocation_threshold = 1e-12

# one entry per remote rank
[[peers]]
rank = 1
addr = "localhost:9101"
`
