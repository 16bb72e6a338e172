package token

import "go.uber.org/fx"

// Config carries the one §6 key this package reads directly.
type Config struct {
	KeyPath string
}

var Module = fx.Module("token",
	fx.Provide(func(cfg Config) (*Verifier, error) { return NewVerifier(cfg.KeyPath) }),
)
