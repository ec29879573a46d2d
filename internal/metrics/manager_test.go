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

	"github.com/s3fs-fuse/bucketfs/internal/fserr"
)

func TestNewManager_Disabled(t *testing.T) {
	manager := NewManager(Config{Enable: false})
	require.NotNil(t, manager)

	_, ok := manager.(*noopManager)
	assert.True(t, ok, "disabled manager should be noopManager")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "not_allowed", Outcome(fserr.New(fserr.NotAllowed, "delete", "bkt", "no")))
	assert.Equal(t, "unknown", Outcome(errors.New("plain")))
}

func TestRecordOperation(t *testing.T) {
	manager := NewManager(Config{Enable: true}).(*metricsManager)

	manager.RecordOperation("list", "bkt", nil, 10*time.Millisecond)
	manager.RecordOperation("list", "bkt", nil, 10*time.Millisecond)
	manager.RecordOperation("read", "bkt", fserr.New(fserr.ObjectNotFound, "read", "bkt/x", ""), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(manager.operationsTotal.WithLabelValues("list", "bkt", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(manager.operationsTotal.WithLabelValues("read", "bkt", "object_not_found")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	manager := NewManager(Config{Enable: true, Namespace: "test"})
	manager.RecordHTTPRequest("GET", "/api/v1/files", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	manager.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/api/v1/files",status="200"} 1`)
}
