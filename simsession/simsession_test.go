package simsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/simfacade"
)

func TestOpenCloseTracksActiveGauge(t *testing.T) {
	reg := metrics.NewRegistry()
	s := Open(simfacade.NewFake(), reg)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), "dss_active_sim_sessions 1")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	rec = httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), "dss_active_sim_sessions 0")
}

func TestWithLogEventsUnsubscribesOnReturn(t *testing.T) {
	fake := simfacade.NewFake()
	s := Open(fake, nil)
	defer s.Close()

	var seen string
	err := WithLogEvents(context.Background(), s, func(ch <-chan simfacade.LogEvent) error {
		fake.Emit(simfacade.LogEvent{Description: "Uкз=12.3 кВ"})
		ev := <-ch
		seen = ev.Description
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Uкз=12.3 кВ", seen)
}
