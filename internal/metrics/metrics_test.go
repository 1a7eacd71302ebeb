package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTool(t *testing.T) {
	m := New()
	m.ObserveTool("raw_convert", nil)
	m.ObserveTool("raw_convert", nil)
	m.ObserveTool("reconstruct", errors.New("exit status 1"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("raw_convert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocations.WithLabelValues("reconstruct", "error")))
}

func TestObserveJob(t *testing.T) {
	m := New()
	m.ObserveJob(OutcomeDone, 3*time.Second)
	m.ObserveJob(OutcomeExtraction, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues(OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Jobs.WithLabelValues(OutcomeExtraction)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JobDuration))
}

func TestQueueDepthAndArchives(t *testing.T) {
	m := New()
	m.SetQueueDepth(4)
	m.ArchivesDetected.Inc()
	m.ObserveNotification("fileProcessed", nil)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchivesDetected))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ArchivesSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("fileProcessed", "ok")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ArchivesSubmitted.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nd3_archives_submitted_total 1")
}

func TestWatchBroker(t *testing.T) {
	m := New()
	connected, errs := false, uint64(0)
	m.WatchBroker(func() (bool, uint64) { return connected, errs })

	scrape := func() string {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}

	body := scrape()
	assert.Contains(t, body, "nd3_mqtt_connected 0")
	assert.Contains(t, body, "nd3_mqtt_publish_errors_total 0")

	connected, errs = true, 3
	body = scrape()
	assert.Contains(t, body, "nd3_mqtt_connected 1")
	assert.Contains(t, body, "nd3_mqtt_publish_errors_total 3")
}
