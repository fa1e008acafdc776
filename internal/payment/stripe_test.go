package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/iliyamo/property-booking/internal/model"
)

// fakeStripe is a minimal stand-in for the Stripe REST API.
type fakeStripe struct {
	mu       sync.Mutex
	forms    map[string]map[string]string
	headers  map[string]http.Header
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeStripe(t *testing.T) (*fakeStripe, *StripeGateway) {
	t.Helper()
	f := &fakeStripe{
		forms:    make(map[string]map[string]string),
		headers:  make(map[string]http.Header),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	gw := NewStripeGateway(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: "whsec_test",
		BaseURL:       srv.URL,
		HTTPClient:    srv.Client(),
	})
	return f, gw
}

func (f *fakeStripe) on(method, path string, status int, body string) {
	f.handlers[method+" "+path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeStripe) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	form := make(map[string]string)
	for k, v := range r.PostForm {
		form[k] = v[0]
	}
	f.forms[key] = form
	f.headers[key] = r.Header.Clone()
	h, ok := f.handlers[key]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":{"type":"invalid_request_error","message":"unexpected route"}}`, http.StatusNotFound)
		return
	}
	h(w, r)
}

func (f *fakeStripe) form(method, path string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[method+" "+path]
}

func (f *fakeStripe) header(method, path string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[method+" "+path]
}

func (f *fakeStripe) called(method, path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.forms[method+" "+path]
	return ok
}

const unexpectedStateBody = `{"error":{"type":"invalid_request_error","code":"payment_intent_unexpected_state","message":"intent is not modifiable"}}`

func TestStripeGatewaySetupPayment(t *testing.T) {
	f, gw := newFakeStripe(t)
	f.on(http.MethodPost, "/v1/customers", 200, `{"id":"cus_1","object":"customer"}`)
	f.on(http.MethodPost, "/v1/ephemeral_keys", 200, `{"id":"ephkey_1","object":"ephemeral_key","secret":"ek_test_1"}`)
	f.on(http.MethodPost, "/v1/payment_intents", 200,
		`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method","amount":30050}`)

	res, err := gw.SetupPayment(context.Background(), SetupRequest{
		User:       model.User{ID: "u1", Name: "Asha", Email: "asha@example.com"},
		PropertyID: "p1",
		TotalPrice: decimal.RequireFromString("300.495"),
		Nights:     3,
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	want := SetupResult{IntentID: "pi_1", ClientSecret: "pi_1_secret", EphemeralKey: "ek_test_1", CustomerID: "cus_1"}
	if *res != want {
		t.Fatalf("result = %+v, want %+v", *res, want)
	}

	cus := f.form(http.MethodPost, "/v1/customers")
	if cus["name"] != "Asha" || cus["email"] != "asha@example.com" {
		t.Fatalf("unexpected customer params: %v", cus)
	}
	if v := f.header(http.MethodPost, "/v1/ephemeral_keys").Get("Stripe-Version"); v != EphemeralKeyAPI {
		t.Fatalf("ephemeral key version = %q, want %q", v, EphemeralKeyAPI)
	}
	intent := f.form(http.MethodPost, "/v1/payment_intents")
	checks := map[string]string{
		"amount":                  "30050",
		"currency":                "inr",
		"customer":                "cus_1",
		"payment_method_types[0]": "card",
		"metadata[property_id]":   "p1",
		"metadata[user_id]":       "u1",
		"metadata[nights]":        "3",
	}
	for k, v := range checks {
		if intent[k] != v {
			t.Errorf("intent param %s = %q, want %q", k, intent[k], v)
		}
	}
}

func TestStripeGatewaySetupDeletesCustomerOnFailure(t *testing.T) {
	f, gw := newFakeStripe(t)
	f.on(http.MethodPost, "/v1/customers", 200, `{"id":"cus_9","object":"customer"}`)
	f.on(http.MethodPost, "/v1/ephemeral_keys", 200, `{"id":"ephkey_1","object":"ephemeral_key","secret":"ek"}`)
	f.on(http.MethodPost, "/v1/payment_intents", http.StatusPaymentRequired,
		`{"error":{"type":"card_error","code":"card_declined","message":"declined"}}`)
	f.on(http.MethodDelete, "/v1/customers/cus_9", 200, `{"id":"cus_9","object":"customer","deleted":true}`)

	_, err := gw.SetupPayment(context.Background(), SetupRequest{
		User:       model.User{ID: "u1"},
		TotalPrice: decimal.NewFromInt(100),
		Nights:     1,
	})
	if !IsKind(err, KindRejected) {
		t.Fatalf("expected rejected gateway error, got %v", err)
	}
	if !f.called(http.MethodDelete, "/v1/customers/cus_9") {
		t.Fatal("expected orphaned customer to be deleted")
	}
}

func TestStripeGatewayErrorKinds(t *testing.T) {
	f, gw := newFakeStripe(t)
	f.on(http.MethodPost, "/v1/payment_intents/pi_captured", http.StatusBadRequest, unexpectedStateBody)
	f.on(http.MethodPost, "/v1/payment_intents/pi_down", http.StatusInternalServerError,
		`{"error":{"type":"api_error","message":"try again"}}`)

	ctx := context.Background()
	if err := gw.UpdateAmount(ctx, "pi_captured", decimal.NewFromInt(5), "k1"); !IsKind(err, KindUnexpectedState) {
		t.Fatalf("expected unexpected state, got %v", err)
	}
	if err := gw.UpdateAmount(ctx, "pi_down", decimal.NewFromInt(5), "k2"); !IsKind(err, KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestStripeGatewayCancelIsIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		wantErr bool
	}{
		{"already canceled", "canceled", false},
		{"already succeeded", "succeeded", false},
		{"still processing", "processing", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, gw := newFakeStripe(t)
			f.on(http.MethodPost, "/v1/payment_intents/pi_1/cancel", http.StatusBadRequest, unexpectedStateBody)
			f.on(http.MethodGet, "/v1/payment_intents/pi_1", 200,
				`{"id":"pi_1","object":"payment_intent","status":"`+tc.status+`"}`)

			err := gw.CancelIntent(context.Background(), "pi_1", "k")
			if tc.wantErr && !IsKind(err, KindUnexpectedState) {
				t.Fatalf("expected unexpected state error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		})
	}
}

func TestStripeGatewayCancel(t *testing.T) {
	f, gw := newFakeStripe(t)
	f.on(http.MethodPost, "/v1/payment_intents/pi_1/cancel", 200,
		`{"id":"pi_1","object":"payment_intent","status":"canceled"}`)
	if err := gw.CancelIntent(context.Background(), "pi_1", "k"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestParseWebhook(t *testing.T) {
	_, gw := newFakeStripe(t)

	sign := func(payload string) string {
		sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: []byte(payload),
			Secret:  "whsec_test",
		})
		return sp.Header
	}
	event := func(typ string) string {
		return `{"id":"evt_1","object":"event","type":"` + typ + `","api_version":"2024-11-20.acacia",` +
			`"data":{"object":{"id":"pi_7","object":"payment_intent"}}}`
	}

	tests := []struct {
		typ  string
		want model.PaymentStatus
	}{
		{"payment_intent.succeeded", model.PaymentStatusSucceeded},
		{"payment_intent.payment_failed", model.PaymentStatusFailed},
		{"payment_intent.canceled", model.PaymentStatusCancelled},
	}
	for _, tc := range tests {
		payload := event(tc.typ)
		out, err := gw.ParseWebhook([]byte(payload), sign(payload))
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		if out == nil || out.IntentID != "pi_7" || out.Status != tc.want {
			t.Fatalf("%s: outcome = %+v", tc.typ, out)
		}
	}

	payload := event("customer.created")
	out, err := gw.ParseWebhook([]byte(payload), sign(payload))
	if err != nil || out != nil {
		t.Fatalf("ignored event: out=%+v err=%v", out, err)
	}

	payload = event("payment_intent.succeeded")
	if _, err := gw.ParseWebhook([]byte(payload), "t=1,v1=deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	tests := map[string]int64{
		"300":     30000,
		"300.495": 30050,
		"0.004":   0,
		"1.005":   101,
	}
	for in, want := range tests {
		if got := MinorUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("MinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

// replayingStripe answers customer creation like Stripe does for a repeated
// idempotency key: the first response is returned again.  Ephemeral keys
// fail for deleted customers; the first intent call hits a 503.
func replayingStripe(f *fakeStripe) (intentCalls func() int) {
	var (
		mu        sync.Mutex
		customers = map[string]string{}
		deleted   = map[string]bool{}
		intents   int
	)
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers["POST /v1/customers"] = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := r.Header.Get("Idempotency-Key")
		id, ok := customers[key]
		if !ok {
			id = "cus_" + string(rune('1'+len(customers)))
			customers[key] = id
		}
		write(w, 200, `{"id":"`+id+`","object":"customer"}`)
	}
	f.handlers["DELETE /v1/customers/cus_1"] = func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		deleted["cus_1"] = true
		mu.Unlock()
		write(w, 200, `{"id":"cus_1","object":"customer","deleted":true}`)
	}
	f.handlers["POST /v1/ephemeral_keys"] = func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if deleted[r.PostForm.Get("customer")] {
			write(w, 400, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such customer"}}`)
			return
		}
		write(w, 200, `{"id":"ephkey_1","object":"ephemeral_key","secret":"ek_test_1"}`)
	}
	f.handlers["POST /v1/payment_intents"] = func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		intents++
		if intents == 1 {
			write(w, 503, `{"error":{"type":"api_error","message":"temporarily unavailable"}}`)
			return
		}
		write(w, 200, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method"}`)
	}
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return intents
	}
}

func TestReconcilerSetupRetryReusesReplayedCustomer(t *testing.T) {
	f, gw := newFakeStripe(t)
	intentCalls := replayingStripe(f)
	r := NewReconciler(gw, time.Second, nil)
	r.delay = time.Millisecond

	res, err := r.Setup(context.Background(), SetupRequest{
		User:       model.User{ID: "u1", Name: "Asha", Email: "asha@example.com"},
		PropertyID: "p1",
		TotalPrice: decimal.NewFromInt(200),
		Nights:     2,
	})
	if err != nil {
		t.Fatalf("setup after one transient failure: %v", err)
	}
	if res.CustomerID != "cus_1" || res.IntentID != "pi_1" {
		t.Fatalf("result = %+v", *res)
	}
	if n := intentCalls(); n != 2 {
		t.Fatalf("intent calls = %d, want 2", n)
	}
	if f.called(http.MethodDelete, "/v1/customers/cus_1") {
		t.Fatal("customer deleted although the failure was transient")
	}
}
