// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts successfully decoded headers per layer.
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_packets_total",
			Help: "Total number of headers decoded, by layer",
		},
		[]string{"layer"},
	)

	// DecodeFailuresTotal counts truncated or inconsistent headers per layer.
	DecodeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_decode_failures_total",
			Help: "Total number of decode failures, by layer",
		},
		[]string{"layer"},
	)

	// FragmentGroupsActive tracks fragment groups awaiting reassembly.
	FragmentGroupsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dissect_fragment_groups_active",
			Help: "Number of fragment groups currently buffered",
		},
	)

	// FragmentsBufferedTotal counts fragments stored while awaiting peers.
	FragmentsBufferedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dissect_fragments_buffered_total",
			Help: "Total number of fragments buffered awaiting reassembly",
		},
	)

	// FragmentsReassembledTotal counts completed datagrams.
	FragmentsReassembledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dissect_fragments_reassembled_total",
			Help: "Total number of datagrams reassembled from fragments",
		},
	)

	// FragmentDropsTotal counts fragment groups dropped as hostile or
	// malformed (overlap, count/size bounds, gaps).
	FragmentDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_fragment_drops_total",
			Help: "Total number of fragment groups dropped, by reason",
		},
		[]string{"reason"},
	)

	// CacheEvictionsTotal counts sweep evictions from the fragment cache.
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_cache_evictions_total",
			Help: "Total number of fragment cache evictions, by reason",
		},
		[]string{"reason"},
	)

	// RecursionLimitTotal counts packets rejected by the re-entry bound.
	RecursionLimitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dissect_recursion_limit_total",
			Help: "Total number of packets dropped at the recursion depth limit",
		},
	)

	// AppParseTotal counts application-layer dispatch outcomes.
	AppParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_app_parse_total",
			Help: "Total number of application parse outcomes, by result",
		},
		[]string{"result"},
	)

	// CapturePacketsTotal counts frames delivered by a capture source.
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_capture_packets_total",
			Help: "Total number of packets captured, by interface",
		},
		[]string{"interface"},
	)

	// ReporterErrorsTotal counts reporter publish errors.
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dissect_reporter_errors_total",
			Help: "Total number of reporter errors, by reporter",
		},
		[]string{"reporter"},
	)
)
