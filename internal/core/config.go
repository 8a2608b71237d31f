package core

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the dependencies of a Gateway besides its storage engine.
type Config struct {
	// NewID generates identifiers for blobs stored without one.
	NewID  func() string
	Tracer trace.Tracer
}

type ConfigOption func(*Config)

// WithIDGenerator replaces the random identifier generator.
func WithIDGenerator(newID func() string) ConfigOption {
	return func(cfg *Config) {
		cfg.NewID = newID
	}
}

func WithTracer(tracer trace.Tracer) ConfigOption {
	return func(cfg *Config) {
		cfg.Tracer = tracer
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{
		NewID:  uuid.NewString,
		Tracer: otel.Tracer("blobgw/internal/core"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
