package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.EventReceived("join", OutcomeHandled)
	m.EventReceived("join", OutcomeHandled)
	m.EventReceived("leave", OutcomeInvalid)
	m.Delivered("participant_joined", 3)
	m.DeliveryDropped("participant_joined")

	if got := testutil.ToFloat64(m.events.WithLabelValues("join", OutcomeHandled)); got != 2 {
		t.Errorf("Expected 2 handled joins, got %v", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("participant_joined")); got != 3 {
		t.Errorf("Expected 3 deliveries, got %v", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("participant_joined")); got != 1 {
		t.Errorf("Expected 1 drop, got %v", got)
	}
}

func TestMetrics_ConnectionsGauge(t *testing.T) {
	m := New()
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.connections); got != 1 {
		t.Errorf("Expected 1 connection, got %v", got)
	}
}

func TestMetrics_HandlerExposesRoomGauges(t *testing.T) {
	m := New()
	m.ObserveRooms(func() (int, int) { return 2, 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, "classroom_rooms 2") {
		t.Errorf("Expected rooms gauge in output:\n%s", text)
	}
	if !strings.Contains(text, "classroom_participants 7") {
		t.Errorf("Expected participants gauge in output:\n%s", text)
	}
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	m.EventReceived("join", OutcomeHandled)
	m.Delivered("x", 1)
	m.DeliveryDropped("x")
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.PersistFailed()
	m.ObserveRooms(func() (int, int) { return 0, 0 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("Expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
