package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(MessagesTotal.WithLabelValues("dispatched"))
	MessagesTotal.WithLabelValues("dispatched").Inc()
	DeliveriesTotal.WithLabelValues("ok").Inc()
	CyclesTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MessagesTotal.WithLabelValues("dispatched")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{"relay_messages_total", "relay_deliveries_total", "relay_cycles_total"} {
		assert.True(t, strings.Contains(body, name), name)
	}
}
