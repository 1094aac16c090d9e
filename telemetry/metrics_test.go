package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsHandler(t *testing.T) {
	MessagesSent.WithLabelValues("GOSSIP_HEARTBEAT").Inc()
	Members.WithLabelValues("process-7").Set(4)

	body := scrape(t)
	assert.Contains(t, body, "gossipfd_uptime_seconds")
	assert.Contains(t, body, `gossipfd_messages_sent_total{type="GOSSIP_HEARTBEAT"}`)
	assert.Contains(t, body, `gossipfd_members{process="process-7"} 4`)
}

func TestForget(t *testing.T) {
	Members.WithLabelValues("process-8").Set(2)
	Evictions.WithLabelValues("process-8").Inc()
	Forget("process-8")

	body := scrape(t)
	assert.NotContains(t, body, `process="process-8"`)
}
