package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/souqline/entitlements/internal/clock"
	appconfig "github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/entitlement/service"
	"github.com/souqline/entitlements/internal/expiry"
	obsmetrics "github.com/souqline/entitlements/internal/observability/metrics"
	"github.com/souqline/entitlements/internal/resilience"
	"github.com/souqline/entitlements/internal/statecell"
	"github.com/souqline/entitlements/internal/store/memstore"
	"github.com/souqline/entitlements/internal/userquota"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const testEntityID = "3f2b8c4e-6a1d-4f0e-9c3b-7d5a2e8f1b6c"

func newTestServer(t *testing.T) (*Server, *clock.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	st := memstore.New()
	log := zap.NewNop()
	cfg := appconfig.Config{
		StoreGatePermits:        5,
		StoreGateAcquireTimeout: 500 * time.Millisecond,
		BreakerCooldown:         time.Minute,
		ExpiryZone:              "Asia/Kolkata",
		RegistryIdle:            20 * time.Minute,
	}

	app, err := obsmetrics.New(obsmetrics.Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	sched := expiry.NewScheduler(clk, log, time.Second)

	buildKind := func(spec service.KindSpec) domain.Service {
		svc, err := service.Build(spec, cfg, st, sched, app, clk, log)
		if err != nil {
			t.Fatalf("build %s: %v", spec.Kind, err)
		}
		return svc
	}

	quotaCell := statecell.New(statecell.Config[userquota.Collection]{
		Kind:     "user_quota",
		StateKey: userquota.StateKey,
		Clone:    (*userquota.Collection).Clone,
	}, st, resilience.NewGate(5, 500*time.Millisecond), resilience.NewBreaker(time.Minute, clk), clk, log)

	srv := NewServer(ServerParams{
		Gin:            NewEngine(log),
		Cfg:            cfg,
		Log:            log,
		QuotaSvc:       userquota.New(quotaCell, clk, log),
		SubscriptionV1: buildKind(service.KindSpec{Kind: "subscription", StateKey: "subscription-data"}),
		SubscriptionV2: buildKind(service.KindSpec{Kind: "subscription_v2", StateKey: "v2-subscription-data"}),
		Addon:          buildKind(service.KindSpec{Kind: "addon", StateKey: "addon-payment-data"}),
		PayToPublish: buildKind(service.KindSpec{
			Kind:           "pay_to_publish",
			StateKey:       "pay-to-publish-data",
			BackupStateKey: "transaction-data",
			CheckHour:      15,
			CheckMinute:    1,
		}),
		Transaction: buildKind(service.KindSpec{
			Kind:        "payment_transaction",
			StateKey:    "payment-transaction-data",
			CheckHour:   15,
			CheckMinute: 1,
		}),
	})
	return srv, clk
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func TestEntityLifecycleOverHTTP(t *testing.T) {
	srv, clk := newTestServer(t)
	now := clk.Now()

	rec := domain.Record{
		OwnerID:   "u1",
		Status:    domain.StatusActive,
		StartDate: now.Add(-time.Hour),
		EndDate:   now.Add(30 * 24 * time.Hour),
		Quota:     domain.Quota{domain.ActionPublish: 2},
	}
	if w := doJSON(t, srv, http.MethodPut, "/v1/entities/subscriptions/"+testEntityID, rec); w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, srv, http.MethodGet, "/v1/entities/subscriptions/"+testEntityID, nil); w.Code != http.StatusOK {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}

	usage := usageRequest{Action: "adsbudget", Amount: 1}
	for i := 0; i < 2; i++ {
		if w := doJSON(t, srv, http.MethodPost, "/v1/entities/subscriptions/"+testEntityID+"/usage", usage); w.Code != http.StatusOK {
			t.Fatalf("usage %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	if w := doJSON(t, srv, http.MethodPost, "/v1/entities/subscriptions/"+testEntityID+"/usage", usage); w.Code != http.StatusConflict {
		t.Fatalf("exhausted usage: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, srv, http.MethodPost, "/v1/entities/subscriptions/"+testEntityID+"/usage/validate", usage); w.Code != http.StatusOK {
		t.Fatalf("validate: %d", w.Code)
	}

	if w := doJSON(t, srv, http.MethodDelete, "/v1/entities/subscriptions/"+testEntityID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/v1/entities/subscriptions/"+testEntityID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestEntityErrorMapping(t *testing.T) {
	srv, clk := newTestServer(t)
	now := clk.Now()

	if w := doJSON(t, srv, http.MethodGet, "/v1/entities/no-such-kind/"+testEntityID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown kind: %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/v1/entities/subscriptions/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/v1/entities/subscriptions/"+testEntityID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing entity: %d", w.Code)
	}

	bad := domain.Record{
		Status:    domain.StatusActive,
		StartDate: now,
		EndDate:   now,
	}
	if w := doJSON(t, srv, http.MethodPut, "/v1/entities/subscriptions/"+testEntityID, bad); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid window: %d %s", w.Code, w.Body.String())
	}
}

func TestQuotaGrantRoutes(t *testing.T) {
	srv, clk := newTestServer(t)
	now := clk.Now()

	grant := userquota.Grant{
		TransactionID: "tx1",
		SourceType:    userquota.SourcePayment,
		StartDate:     now.Add(-time.Hour),
		EndDate:       now.Add(time.Hour),
		Quota:         domain.Quota{domain.ActionPublish: 3},
	}
	if w := doJSON(t, srv, http.MethodPut, "/v1/users/u1/quota-grants", grant); w.Code != http.StatusOK {
		t.Fatalf("upsert: %d %s", w.Code, w.Body.String())
	}

	expired := grant
	expired.TransactionID = "tx2"
	expired.StartDate = now.Add(-48 * time.Hour)
	expired.EndDate = now.Add(-24 * time.Hour)
	if w := doJSON(t, srv, http.MethodPut, "/v1/users/u1/quota-grants", expired); w.Code != http.StatusOK {
		t.Fatalf("upsert expired: %d", w.Code)
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/users/u1/quota-grants?active=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list active: %d", w.Code)
	}
	var resp struct {
		Data []userquota.Grant `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].TransactionID != "tx1" {
		t.Fatalf("wrong active grants: %+v", resp.Data)
	}

	if w := doJSON(t, srv, http.MethodDelete, "/v1/users/u1/quota-grants/tx1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete grant: %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	if w := doJSON(t, srv, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}
