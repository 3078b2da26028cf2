// Package testlog puts the global logger into its test profile and tags the
// output with the running test's name.
package testlog

import (
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/haloctl/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Str("test", t.Name()).Msg("test start")
}
