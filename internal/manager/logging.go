package manager

import "github.com/rs/zerolog"

var zlog = zerolog.Nop()

// SetLogger installs the structured logger used by the manager.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "manager").Logger() }
