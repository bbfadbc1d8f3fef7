package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradecore/internal/model"
)

func TestWebhookNotifier_PostsAlert(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "daily_loss", Message: "limit breached"})
	if err != nil {
		t.Fatal(err)
	}
	if got["level"] != "CRITICAL" || got["title"] != "daily_loss" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookNotifier_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Error("expected error on 502")
	}
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(ctx context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMultiNotifier_TriesAllBackends(t *testing.T) {
	bad := &recordingNotifier{err: errors.New("down")}
	good := &recordingNotifier{}

	err := NewMultiNotifier(bad, good).Send(context.Background(), Alert{Title: "x"})
	if err == nil {
		t.Error("expected first backend error to surface")
	}
	if len(good.alerts) != 1 {
		t.Error("second backend was skipped")
	}
}

func TestRiskAlerter_SendsCritical(t *testing.T) {
	rec := &recordingNotifier{}
	a := &RiskAlerter{Backend: rec}
	if err := a.Notify(context.Background(), "vix_guard", "vix above threshold"); err != nil {
		t.Fatal(err)
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Level != AlertCritical {
		t.Errorf("alerts = %+v", rec.alerts)
	}
}

func TestLevelFor(t *testing.T) {
	if LevelFor(model.SeverityCritical) != AlertCritical {
		t.Error("critical mapping")
	}
	if LevelFor(model.SeverityWarning) != AlertWarning {
		t.Error("warning mapping")
	}
	if LevelFor(model.SeverityInfo) != AlertInfo {
		t.Error("info mapping")
	}
}
