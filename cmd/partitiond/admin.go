package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/oriys/partitiond/internal/metrics"
	"github.com/oriys/partitiond/internal/observability"
	"github.com/oriys/partitiond/internal/partition"
)

// newAdminServer builds the HTTP surface partitiond exposes for operators:
// Prometheus scraping, a liveness probe, and a per-partition status
// endpoint, all traced through the same observability wrapper an invoker's
// own HTTP-facing paths would use.
func newAdminServer(addr string, partitions []*partition.Partition) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.HandleFunc("/healthz", observability.TracingHandler("healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	mux.HandleFunc("/partitions", observability.TracingHandler("partitions", func(w http.ResponseWriter, r *http.Request) {
		status := make([]map[string]any, 0, len(partitions))
		for _, p := range partitions {
			entry := map[string]any{"id": p.ID, "range": p.Range.String()}
			if rec := p.Checkpoint(); rec != nil {
				entry["log_offset"] = rec.LogOffset
				entry["inbox_seq"] = rec.InboxSeq
				entry["outbox_seq"] = rec.OutboxSeq
			}
			status = append(status, entry)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	}))

	return &http.Server{
		Addr:    addr,
		Handler: observability.HTTPMiddleware(mux),
	}
}

func shutdownAdminServer(ctx context.Context, srv *http.Server) {
	_ = srv.Shutdown(ctx)
}
