// Package connectors resolves the latest published version of an item from an external catalog.
//
// Every catalog is a Connector registered under a source-type tag. The Registry decodes the
// untyped configuration blobs stored with a CheckSource and an item into the connector's own
// typed config and params, validates them once, and hands back a Binding ready to resolve.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/ortelius/versionwatch/model"
	"go.uber.org/zap"
)

// ErrInvalidParams is returned by Bind when a configuration blob does not decode or validate.
var ErrInvalidParams = errors.New("invalid connector parameters")

// Connector fetches the latest version from one catalog.
// C is the shape of the CheckSource config, P the shape of the per-item params.
type Connector[C, P any] interface {
	Type() string
	Fetch(ctx context.Context, cfg C, params P) (model.VersionCheckResult, error)
}

// Binding is a connector with decoded, validated configuration.
type Binding interface {
	Type() string
	Resolve(ctx context.Context) model.VersionCheckResult
}

type binder func(sourceConfig, itemParams json.RawMessage) (Binding, error)

// Option adjusts a registration.
type Option func(*registration)

type registration struct {
	legacy bool
}

// Legacy marks the tag as usable from an item's legacy check_config blob.
func Legacy() Option {
	return func(r *registration) { r.legacy = true }
}

// Registry maps source-type tags to connector bindings.
type Registry struct {
	logger   *zap.Logger
	validate *validator.Validate

	mu       sync.RWMutex
	binders  map[string]binder
	legacies map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	v := validator.New()
	_ = v.RegisterValidation("semverconstraint", func(fl validator.FieldLevel) bool {
		_, err := semver.NewConstraint(fl.Field().String())
		return err == nil
	})

	return &Registry{
		logger:   logger.Named("connectors"),
		validate: v,
		binders:  make(map[string]binder),
		legacies: make(map[string]bool),
	}
}

// Register adds a connector under its Type() tag. defaults seeds the config before the
// CheckSource blob is decoded over it, so legacy items without a CheckSource still get
// a usable config. Registering a tag twice replaces the earlier connector.
func Register[C, P any](r *Registry, conn Connector[C, P], defaults C, opts ...Option) {
	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	tag := strings.ToLower(conn.Type())
	bind := func(sourceConfig, itemParams json.RawMessage) (Binding, error) {
		cfg := defaults
		if err := decodeInto(sourceConfig, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %s source config: %v", ErrInvalidParams, tag, err)
		}
		if err := r.validate.Struct(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %s source config: %v", ErrInvalidParams, tag, err)
		}

		var params P
		if err := decodeInto(itemParams, &params); err != nil {
			return nil, fmt.Errorf("%w: %s params: %v", ErrInvalidParams, tag, err)
		}
		if err := r.validate.Struct(&params); err != nil {
			return nil, fmt.Errorf("%w: %s params: %v", ErrInvalidParams, tag, err)
		}

		return &bound[C, P]{logger: r.logger, conn: conn, cfg: cfg, params: params}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.binders[tag] = bind
	if reg.legacy {
		r.legacies[tag] = true
	} else {
		delete(r.legacies, tag)
	}
}

// Bind decodes and validates the blobs for tag. An unknown tag is not an error: it yields a
// binding that resolves to no version.
func (r *Registry) Bind(tag string, sourceConfig, itemParams json.RawMessage) (Binding, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))

	r.mu.RLock()
	bind, ok := r.binders[tag]
	r.mu.RUnlock()

	if !ok {
		return unknown{tag: tag, logger: r.logger}, nil
	}
	return bind(sourceConfig, itemParams)
}

// Resolve binds and fetches in one call. It never fails: unknown tags, undecodable blobs and
// connector failures all come back as a result without a version.
func (r *Registry) Resolve(ctx context.Context, tag string, sourceConfig, itemParams json.RawMessage) model.VersionCheckResult {
	b, err := r.Bind(tag, sourceConfig, itemParams)
	if err != nil {
		r.logger.Warn("Connector binding failed", zap.String("source", tag), zap.Error(err))
		return model.VersionCheckResult{}
	}
	return b.Resolve(ctx)
}

// IsLegacy reports whether tag may be used from a legacy check_config blob.
func (r *Registry) IsLegacy(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.legacies[strings.ToLower(strings.TrimSpace(tag))]
}

// Types lists registered tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.binders))
	for tag := range r.binders {
		types = append(types, tag)
	}
	sort.Strings(types)
	return types
}

func decodeInto(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return json.Unmarshal(trimmed, out)
}

type bound[C, P any] struct {
	logger *zap.Logger
	conn   Connector[C, P]
	cfg    C
	params P
}

func (b *bound[C, P]) Type() string { return b.conn.Type() }

func (b *bound[C, P]) Resolve(ctx context.Context) (result model.VersionCheckResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Connector panicked",
				zap.String("source", b.conn.Type()),
				zap.String("panic", fmt.Sprint(rec)))
			result = model.VersionCheckResult{}
		}
	}()

	res, err := b.conn.Fetch(ctx, b.cfg, b.params)
	if err != nil {
		b.logger.Warn("Connector fetch failed",
			zap.String("source", b.conn.Type()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return model.VersionCheckResult{}
	}
	return res
}

type unknown struct {
	tag    string
	logger *zap.Logger
}

func (u unknown) Type() string { return u.tag }

func (u unknown) Resolve(context.Context) model.VersionCheckResult {
	u.logger.Warn("No connector registered for source type", zap.String("source", u.tag))
	return model.VersionCheckResult{}
}
