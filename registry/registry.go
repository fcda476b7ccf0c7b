package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-rpc-gateway/gateway"
)

var ErrNoGateway = errors.New("registry: no gateway loaded")

// Builder runs discovery and returns a ready gateway.
type Builder func(ctx context.Context) (*gateway.Gateway, error)

// Registry holds the gateway currently serving requests. A gateway is only
// replaced by one that was built completely.
type Registry struct {
	build          Builder
	currentGateway atomic.Value // *gateway.Gateway
	reloadMu       sync.Mutex
	logger         *slog.Logger
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRegistry(build Builder, opts ...Option) *Registry {
	r := &Registry{
		build:  build,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload builds a new gateway and swaps it in. On failure the current
// gateway keeps serving and the error is returned. Reloads are serialized.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	next, err := r.build(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "gateway reload failed, keeping current schema", "error", err)
		return fmt.Errorf("registry: reload: %w", err)
	}
	if next == nil {
		return fmt.Errorf("registry: reload: %w", ErrNoGateway)
	}

	r.currentGateway.Store(next)
	r.logger.InfoContext(ctx, "gateway schema applied",
		"subschemas", len(next.SuperGraph().SubGraphs),
		"root_fields", len(next.SuperGraph().Ownerships),
	)
	return nil
}

// AppliedGateway returns the serving gateway or nil before the first
// successful Reload.
func (r *Registry) AppliedGateway() *gateway.Gateway {
	gw, _ := r.currentGateway.Load().(*gateway.Gateway)
	return gw
}

// ServeHTTP forwards to the applied gateway.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	gw := r.AppliedGateway()
	if gw == nil {
		http.Error(w, ErrNoGateway.Error(), http.StatusServiceUnavailable)
		return
	}
	gw.ServeHTTP(w, req)
}

// SchemaHandler serves the composed SDL of the applied gateway.
func (r *Registry) SchemaHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		gw := r.AppliedGateway()
		if gw == nil {
			http.Error(w, ErrNoGateway.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(gw.SDL())) //nolint:errcheck
	})
}

// ReloadHandler triggers Reload on POST.
func (r *Registry) ReloadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		status, body := http.StatusOK, map[string]any{"status": "applied"}
		if err := r.Reload(req.Context()); err != nil {
			status, body = http.StatusBadGateway, map[string]any{"status": "kept", "error": err.Error()}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	})
}
