package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordersIncrement(t *testing.T) {
	before := testutil.ToFloat64(addRequests.WithLabelValues("rejected_by_user"))
	RecordAddRequest("rejected_by_user")
	assert.Equal(t, before+1, testutil.ToFloat64(addRequests.WithLabelValues("rejected_by_user")))

	before = testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "invalid"))
	RecordWebhookEvent("", "invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "invalid")))

	SessionOpened()
	SessionClosed()
	assert.Equal(t, float64(0), testutil.ToFloat64(sessionsActive))
}

func TestHandlerExposesFrameMetrics(t *testing.T) {
	RecordHTTPRequest("get", "/.well-known/farcaster.json", http.StatusOK, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `frame_http_requests_total{method="GET",path="/.well-known/farcaster.json",status="200"}`)
}
