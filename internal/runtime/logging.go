package runtime

import (
	"github.com/rs/zerolog"
)

// zlog is the package logger; silent until SetLogger is called.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the runtime. Call it before
// loading networks.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "runtime").Logger() }
