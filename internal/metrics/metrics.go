// Package metrics provides Prometheus metrics for the wacrm server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// HTTPRequestDuration measures request handling time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wacrm",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// BulkOperationsTotal counts bulk actions by kind and result.
	BulkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "bulk_operations_total",
			Help:      "Total number of bulk contact operations",
		},
		[]string{"action", "status"},
	)

	// BulkRecords counts contacts touched or missed by bulk actions.
	BulkRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "bulk_records_total",
			Help:      "Contacts processed by bulk operations",
		},
		[]string{"action", "result"},
	)

	// ImportRows counts imported rows by source and outcome.
	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "import_rows_total",
			Help:      "Rows processed by contact imports",
		},
		[]string{"source", "result"},
	)

	// CampaignsTotal counts campaigns by the state they reached.
	CampaignsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "campaigns_total",
			Help:      "Campaigns by lifecycle event",
		},
		[]string{"status"},
	)

	// CampaignMessagesTotal counts campaign messages by delivery result.
	CampaignMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wacrm",
			Name:      "campaign_messages_total",
			Help:      "Campaign messages handed to WhatsApp",
		},
		[]string{"result"},
	)

	// WhatsAppConnected is 1 while the linked device is logged in.
	WhatsAppConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wacrm",
			Name:      "whatsapp_connected",
			Help:      "WhatsApp connection status (1 = connected, 0 = disconnected)",
		},
	)
)

// RecordRequest records one handled HTTP request.
func RecordRequest(method, route, code string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordBulk records a finished bulk operation.
func RecordBulk(action string, affected, failed int, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case failed > 0:
		status = "partial"
	}
	BulkOperationsTotal.WithLabelValues(action, status).Inc()
	BulkRecords.WithLabelValues(action, "affected").Add(float64(affected))
	BulkRecords.WithLabelValues(action, "failed").Add(float64(failed))
}

// RecordImport records the outcome counts of one import.
func RecordImport(source string, created, updated, skipped int) {
	ImportRows.WithLabelValues(source, "created").Add(float64(created))
	ImportRows.WithLabelValues(source, "updated").Add(float64(updated))
	ImportRows.WithLabelValues(source, "skipped").Add(float64(skipped))
}

// RecordCampaign counts a campaign reaching status.
func RecordCampaign(status string) {
	CampaignsTotal.WithLabelValues(status).Inc()
}

// RecordCampaignMessage counts one send attempt.
func RecordCampaignMessage(sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	CampaignMessagesTotal.WithLabelValues(result).Inc()
}

func SetWhatsAppConnected(connected bool) {
	if connected {
		WhatsAppConnected.Set(1)
		return
	}
	WhatsAppConnected.Set(0)
}
