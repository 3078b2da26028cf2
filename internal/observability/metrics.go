// Package observability carries the prometheus metrics of the exchange engine
// and the HTTP instrumentation of the rank admin server.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	buffersPacked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "buffers_packed_total",
			Help:      "Boundary buffers packed by Send.",
		},
		[]string{"allocated"},
	)
	buffersUnpacked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "buffers_unpacked_total",
			Help:      "Boundary buffers unpacked by Set.",
		},
	)
	cacheRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "cache_rebuilds_total",
			Help:      "Descriptor cache rebuilds, by side.",
		},
		[]string{"side"},
	)
	localCopies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "local_copies_total",
			Help:      "Same-rank buffer deliveries short-circuited in Send.",
		},
	)
	sendsPosted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "transport",
			Name:      "sends_posted_total",
			Help:      "Asynchronous cross-rank sends posted.",
		},
	)
	receivePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "receive_polls_total",
			Help:      "Receive task invocations, by result.",
		},
		[]string{"complete"},
	)
	allocHandshakes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "allocation_handshakes_total",
			Help:      "Sparse fields allocated on a receiver via the sentinel handshake.",
		},
	)
	packDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "haloctl",
			Subsystem: "exchange",
			Name:      "kernel_duration_seconds",
			Help:      "Pack/unpack kernel duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kernel"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "haloctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			buffersPacked, buffersUnpacked, cacheRebuilds, localCopies,
			sendsPosted, receivePolls, allocHandshakes, packDuration,
			httpRequests, httpDuration,
		)
	})
}

func RecordBufferPacked(allocated bool) {
	RegisterMetrics()
	buffersPacked.WithLabelValues(strconv.FormatBool(allocated)).Inc()
}

func RecordBufferUnpacked() {
	RegisterMetrics()
	buffersUnpacked.Inc()
}

func RecordCacheRebuild(side string) {
	RegisterMetrics()
	cacheRebuilds.WithLabelValues(side).Inc()
}

func RecordLocalCopy() {
	RegisterMetrics()
	localCopies.Inc()
}

func RecordSendPosted() {
	RegisterMetrics()
	sendsPosted.Inc()
}

func RecordReceivePoll(complete bool) {
	RegisterMetrics()
	receivePolls.WithLabelValues(strconv.FormatBool(complete)).Inc()
}

func RecordAllocationHandshake() {
	RegisterMetrics()
	allocHandshakes.Inc()
}

func RecordKernelDuration(kernel string, d time.Duration) {
	RegisterMetrics()
	packDuration.WithLabelValues(kernel).Observe(d.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
