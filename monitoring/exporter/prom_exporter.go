package main

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromExporter collects metrics in Prometheus format from a panel server.
type PromExporter struct {
	address   string
	timeout   time.Duration
	namespace string

	scraper *Scraper

	up                *prometheus.Desc
	uptime            *prometheus.Desc
	goroutines        *prometheus.Desc
	sessionsLive      *prometheus.Desc
	sessionsTotal     *prometheus.Desc
	subscriptionsLive *prometheus.Desc
	broadcastsTotal   *prometheus.Desc
	wsMessagesIn      *prometheus.Desc
	wsMessagesOut     *prometheus.Desc
	rateLimited       *prometheus.Desc
	activityRecords   *prometheus.Desc
	activityErrors    *prometheus.Desc
}

// NewPromExporter returns an initialized Prometheus exporter.
func NewPromExporter(server, namespace string, timeout time.Duration, scraper *Scraper) *PromExporter {
	return &PromExporter{
		address:   server,
		timeout:   timeout,
		namespace: namespace,
		scraper:   scraper,
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "up"),
			"If the panel instance is reachable.",
			nil,
			nil,
		),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Time since the panel instance started.",
			nil,
			nil,
		),
		goroutines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "goroutines"),
			"Number of goroutines in the panel process.",
			nil,
			nil,
		),
		sessionsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_live_count"),
			"Number of currently active websocket sessions.",
			nil,
			nil,
		),
		sessionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions_total"),
			"Total number of websocket sessions since instance start.",
			nil,
			nil,
		),
		subscriptionsLive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscriptions_live_count"),
			"Number of currently active server subscriptions.",
			nil,
			nil,
		),
		broadcastsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "broadcasts_total"),
			"Total number of events fanned out to subscribers.",
			nil,
			nil,
		),
		wsMessagesIn: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "ws_messages_in_total"),
			"Total number of websocket messages received.",
			nil,
			nil,
		),
		wsMessagesOut: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "ws_messages_out_total"),
			"Total number of websocket messages sent.",
			nil,
			nil,
		),
		rateLimited: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_rate_limited_total"),
			"Total number of API requests rejected by the rate limiter.",
			nil,
			nil,
		),
		activityRecords: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "activity_records_total"),
			"Total number of audit records persisted.",
			nil,
			nil,
		),
		activityErrors: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "activity_record_errors_total"),
			"Total number of audit records that failed to persist.",
			nil,
			nil,
		),
	}
}

// Describe describes all the metrics exported by the panel exporter. It
// implements prometheus.Collector.
func (e *PromExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.uptime
	ch <- e.goroutines
	ch <- e.sessionsLive
	ch <- e.sessionsTotal
	ch <- e.subscriptionsLive
	ch <- e.broadcastsTotal
	ch <- e.wsMessagesIn
	ch <- e.wsMessagesOut
	ch <- e.rateLimited
	ch <- e.activityRecords
	ch <- e.activityErrors
}

// Collect fetches statistics from the configured panel instance, and
// delivers them as Prometheus metrics. It implements prometheus.Collector.
func (e *PromExporter) Collect(ch chan<- prometheus.Metric) {
	up := float64(1)
	if stats, err := e.scraper.Scrape(); err != nil {
		log.Println("Failed to fetch or parse response", err)
		up = 0
	} else {
		if err := e.parseStats(ch, stats); err != nil {
			up = 0
		}
	}

	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up)
}

func (e *PromExporter) parseStats(ch chan<- prometheus.Metric, stats map[string]interface{}) error {
	err := firstError(
		e.parseAndUpdate(ch, e.uptime, prometheus.GaugeValue, stats, "Uptime"),
		e.parseAndUpdate(ch, e.goroutines, prometheus.GaugeValue, stats, "NumGoroutines"),
		e.parseAndUpdate(ch, e.sessionsLive, prometheus.GaugeValue, stats, "LiveSessions"),
		e.parseAndUpdate(ch, e.sessionsTotal, prometheus.CounterValue, stats, "TotalSessions"),
		e.parseAndUpdate(ch, e.subscriptionsLive, prometheus.GaugeValue, stats, "LiveSubscriptions"),
		e.parseAndUpdate(ch, e.broadcastsTotal, prometheus.CounterValue, stats, "BroadcastsTotal"),
		e.parseAndUpdate(ch, e.wsMessagesIn, prometheus.CounterValue, stats, "IncomingMessagesWebsockTotal"),
		e.parseAndUpdate(ch, e.wsMessagesOut, prometheus.CounterValue, stats, "OutgoingMessagesWebsockTotal"),
		e.parseAndUpdate(ch, e.rateLimited, prometheus.CounterValue, stats, "RequestsRateLimitedTotal"),
		e.parseAndUpdate(ch, e.activityRecords, prometheus.CounterValue, stats, "ActivityRecordsTotal"),
		e.parseAndUpdate(ch, e.activityErrors, prometheus.CounterValue, stats, "ActivityRecordErrorsTotal"),
	)

	return err
}

func (e *PromExporter) parseAndUpdate(ch chan<- prometheus.Metric, desc *prometheus.Desc, valueType prometheus.ValueType,
	stats map[string]interface{}, key string) error {
	if v, err := parseMetric(stats, key); err == nil {
		ch <- prometheus.MustNewConstMetric(desc, valueType, v)
		return nil
	} else {
		return err
	}
}

func firstError(errs ...error) error {
	for _, v := range errs {
		if v != nil {
			return v
		}
	}
	return nil
}
