package core

import (
	"context"
	"log/slog"
	"strings"

	"blobgw/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Scope is the caller-supplied namespace of a blob.
type Scope struct {
	Usecase string
	Scope   string
}

// Gateway stores and retrieves whole blobs on a chunked storage engine. It
// holds no mutable state, so one Gateway serves any number of concurrent
// requests.
type Gateway struct {
	engine storage.StorageEngine
	cfg    Config
}

// NewGateway returns a Gateway over engine.
func NewGateway(engine storage.StorageEngine, opts ...ConfigOption) *Gateway {
	return &Gateway{engine: engine, cfg: NewConfig(opts...)}
}

// composeKey validates the scope and identifier and builds the storage key.
// The identifier may also be given as the full storage key returned by Put;
// its "usecase/scope/" prefix is then stripped before validation. When the
// identifier is empty and newID is non-nil, newID supplies one.
func composeKey(scope *Scope, identifier string, newID func() string) (string, error) {
	if scope == nil {
		return "", &Error{Kind: ErrMissingScope}
	}
	if err := ValidateComponent("usecase", scope.Usecase); err != nil {
		return "", err
	}
	if err := ValidateComponent("scope", scope.Scope); err != nil {
		return "", err
	}

	prefix := ComposeKey(scope.Usecase, scope.Scope, "")
	if identifier == prefix {
		return "", &Error{Kind: ErrInvalidKey, Key: prefix, Cause: errBarePrefix}
	}
	identifier = strings.TrimPrefix(identifier, prefix)

	if identifier == "" && newID != nil {
		identifier = newID()
	}
	if err := ValidateComponent("key", identifier); err != nil {
		return "", err
	}
	return ComposeKey(scope.Usecase, scope.Scope, identifier), nil
}

// Put stores contents under scope and identifier, generating a random
// identifier when identifier is empty. It returns the storage key, which
// callers pass back to Get.
func (g *Gateway) Put(ctx context.Context, scope *Scope, identifier string, contents []byte) (key string, err error) {
	ctx, span := g.cfg.Tracer.Start(ctx, "Gateway.Put")
	defer func() { endSpan(span, err) }()

	key, err = composeKey(scope, identifier, g.cfg.NewID)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("blob.key", key), attribute.Int("blob.bytes", len(contents)))

	if err := g.engine.PutBlob(ctx, key, storage.SingleChunk(contents)); err != nil {
		return "", &Error{Kind: ErrBackendWrite, Key: key, Cause: err}
	}

	slog.Debug("Stored blob", "key", key, "bytes", len(contents))
	return key, nil
}

// Get returns the contents stored under scope and identifier. The payload is
// reassembled from the engine's chunks in order; a failure on any chunk fails
// the whole call.
func (g *Gateway) Get(ctx context.Context, scope *Scope, identifier string) (contents []byte, err error) {
	ctx, span := g.cfg.Tracer.Start(ctx, "Gateway.Get")
	defer func() { endSpan(span, err) }()

	key, err := composeKey(scope, identifier, nil)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("blob.key", key))

	// Put never stores under an empty identifier.
	if strings.HasSuffix(key, KeySeparator) {
		return nil, &Error{Kind: ErrNotFound, Key: key}
	}

	stream, found, err := g.engine.GetBlob(ctx, key)
	if err != nil {
		return nil, &Error{Kind: ErrBackendRead, Key: key, Cause: err}
	}
	if !found {
		return nil, &Error{Kind: ErrNotFound, Key: key}
	}
	defer stream.Close()

	contents, err = storage.Collect(ctx, stream)
	if err != nil {
		return nil, &Error{Kind: ErrBackendRead, Key: key, Cause: err}
	}

	span.SetAttributes(attribute.Int("blob.bytes", len(contents)))
	slog.Debug("Loaded blob", "key", key, "bytes", len(contents))
	return contents, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
