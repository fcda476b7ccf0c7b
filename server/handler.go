package server

import (
	"net/http"

	"github.com/n9te9/go-graphql-rpc-gateway/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHandler routes the GraphQL endpoint to the registry and adds the
// operational endpoints.
func NewHandler(reg *registry.Registry, endpoint string, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(endpoint, reg)
	mux.Handle("/schema", reg.SchemaHandler())
	mux.Handle("/schema/reload", reg.ReloadHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if reg.AppliedGateway() == nil {
			http.Error(w, "no schema applied", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	})

	return otelhttp.NewHandler(mux, "gateway",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
