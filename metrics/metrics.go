package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoji_generations_total",
		Help: "Generation requests by outcome.",
	}, []string{"outcome"}) // generated, cached, failed

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoji_cache_hits_total",
		Help: "Generation requests served from the cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoji_cache_misses_total",
		Help: "Generation requests that had to call the provider.",
	})

	CreditDebits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoji_credit_debits_total",
		Help: "Credit debit attempts by result.",
	}, []string{"result"}) // ok, exhausted, error

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memoji_rate_limited_total",
		Help: "Requests rejected by the window limiter.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "memoji_webhook_events_total",
		Help: "Payment webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"}) // verified, rejected, ignored
)

// HTTPHandler exposes the default registry for the /metrics route.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
