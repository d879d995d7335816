package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mairanteodoro/roman-photoz/internal/logging"
	"github.com/mairanteodoro/roman-photoz/internal/metrics"
	"github.com/mairanteodoro/roman-photoz/internal/metrics/datadog"
	"github.com/mairanteodoro/roman-photoz/internal/metrics/prompush"
)

// DefaultPushgatewayURL is used when neither the flag nor PUSHGATEWAY_URL is
// set.
const DefaultPushgatewayURL = "http://localhost:9091"

// DatadogFlushEvery is the periodic submit interval of the datadog backend.
const DatadogFlushEvery = 60 * time.Second

// MetricsOptions selects and configures the metrics backend.
type MetricsOptions struct {
	// Backend is none, pushgateway or datadog. Empty falls back to
	// METRICS_BACKEND, then none.
	Backend string
	Job     string

	// GatewayURL falls back to PUSHGATEWAY_URL, then DefaultPushgatewayURL.
	GatewayURL string

	Logger *zerolog.Logger
}

type closableBackend interface {
	metrics.Backend
	Close() error
}

// Seams replaced in tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (closableBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string) (closableBackend, error) {
		return prompush.NewBackend(job, url)
	}
	setMetricsBackend = metrics.SetBackend
	getenv            = os.Getenv
)

// InitMetrics installs the selected backend as the process metrics backend.
// The returned cleanup is never nil; it flushes and closes the backend and
// restores the nop backend. Close errors are logged, not returned.
func InitMetrics(ctx context.Context, opts MetricsOptions) (func(), error) {
	log := logging.OrNop(opts.Logger)
	noop := func() {}

	name := strings.ToLower(strings.TrimSpace(opts.Backend))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(getenv("METRICS_BACKEND")))
	}

	var (
		b   closableBackend
		err error
	)
	switch name {
	case "", "none", "noop":
		log.Debug().Msg("metrics disabled")
		return noop, nil

	case "pushgateway", "prom", "prometheus":
		url := opts.GatewayURL
		if url == "" {
			url = getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = DefaultPushgatewayURL
		}
		b, err = newPushBackend(opts.Job, url)
		if err != nil {
			return noop, fmt.Errorf("init pushgateway metrics: %w", err)
		}
		log.Info().Str("backend", "pushgateway").Str("url", url).Str("job", opts.Job).Msg("metrics enabled")

	case "datadog", "dd":
		tags := datadog.ParseTagsCSV(getenv("METRICS_TAGS"))
		b, err = newDatadogBackend(ctx, datadog.Options{
			JobName:    opts.Job,
			Tags:       tags,
			FlushEvery: DatadogFlushEvery,
		})
		if err != nil {
			return noop, fmt.Errorf("init datadog metrics: %w", err)
		}
		log.Info().Str("backend", "datadog").Strs("tags", tags).Str("job", opts.Job).Msg("metrics enabled")

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", name)
	}

	setMetricsBackend(b)
	return func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Str("backend", name).Msg("metrics close error")
		}
		setMetricsBackend(nil)
	}, nil
}
