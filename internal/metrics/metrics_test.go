package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBulk(t *testing.T) {
	before := testutil.ToFloat64(BulkOperationsTotal.WithLabelValues("delete", "partial"))
	failedBefore := testutil.ToFloat64(BulkRecords.WithLabelValues("delete", "failed"))

	RecordBulk("delete", 3, 2, nil)

	assert.Equal(t, before+1, testutil.ToFloat64(BulkOperationsTotal.WithLabelValues("delete", "partial")))
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(BulkRecords.WithLabelValues("delete", "failed")))

	errBefore := testutil.ToFloat64(BulkOperationsTotal.WithLabelValues("update", "error"))
	RecordBulk("update", 0, 0, errors.New("boom"))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(BulkOperationsTotal.WithLabelValues("update", "error")))
}

func TestSetWhatsAppConnected(t *testing.T) {
	SetWhatsAppConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(WhatsAppConnected))
	SetWhatsAppConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(WhatsAppConnected))
}

func TestRecordCampaignMessage(t *testing.T) {
	sent := testutil.ToFloat64(CampaignMessagesTotal.WithLabelValues("sent"))
	failed := testutil.ToFloat64(CampaignMessagesTotal.WithLabelValues("failed"))

	RecordCampaignMessage(true)
	RecordCampaignMessage(false)
	RecordCampaignMessage(false)

	assert.Equal(t, sent+1, testutil.ToFloat64(CampaignMessagesTotal.WithLabelValues("sent")))
	assert.Equal(t, failed+2, testutil.ToFloat64(CampaignMessagesTotal.WithLabelValues("failed")))
}
