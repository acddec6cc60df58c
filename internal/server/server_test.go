package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
	"github.com/smallbiznis/eventcover/internal/config"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	stripeclient "github.com/smallbiznis/eventcover/internal/providers/stripe"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"github.com/smallbiznis/eventcover/internal/ratelimit"
)

type fakePaymentService struct {
	result    paymentdomain.IngestResult
	err       error
	provider  string
	payload   []byte
	listReq   paymentdomain.ListEventsRequest
	listItems []paymentdomain.WebhookEvent
}

func (f *fakePaymentService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.IngestResult, error) {
	f.provider = provider
	f.payload = payload
	return f.result, f.err
}

func (f *fakePaymentService) ListEvents(ctx context.Context, req paymentdomain.ListEventsRequest) ([]paymentdomain.WebhookEvent, error) {
	f.listReq = req
	return f.listItems, nil
}

type fakeCheckoutService struct {
	result      checkoutdomain.SessionResult
	err         error
	createCalls int
	inline      checkoutdomain.CheckoutQuote
}

func (f *fakeCheckoutService) CreateSession(ctx context.Context, quote checkoutdomain.CheckoutQuote) (checkoutdomain.SessionResult, error) {
	f.createCalls++
	f.inline = quote
	return f.result, f.err
}

func (f *fakeCheckoutService) CreateForQuote(ctx context.Context, quoteID string) (checkoutdomain.SessionResult, error) {
	f.createCalls++
	return f.result, f.err
}

func (f *fakeCheckoutService) GetSession(ctx context.Context, sessionID string) (checkoutdomain.SessionStatus, error) {
	return checkoutdomain.SessionStatus{ID: sessionID}, f.err
}

func (f *fakeCheckoutService) GetPaymentDetails(ctx context.Context, sessionID string) (checkoutdomain.PaymentDetails, error) {
	return checkoutdomain.PaymentDetails{SessionID: sessionID}, f.err
}

func (f *fakeCheckoutService) ListSessionsByEmail(ctx context.Context, email string, limit int) ([]checkoutdomain.SessionStatus, error) {
	return nil, f.err
}

func (f *fakeCheckoutService) ValidateSessionMetadata(metadata map[string]string) checkoutdomain.ValidationResult {
	return checkoutdomain.ValidationResult{Valid: metadata["quote_id"] != "", Errors: []string{}}
}

type fakeQuoteService struct {
	err error
}

func (f fakeQuoteService) GetByID(ctx context.Context, id string) (quotedomain.Quote, error) {
	return quotedomain.Quote{QuoteNumber: "QT-20260601-00042"}, f.err
}

type fakePolicyService struct {
	err error
}

func (f fakePolicyService) GetByID(ctx context.Context, id string) (policydomain.Policy, error) {
	return policydomain.Policy{PolicyNumber: "POL-20260601-00042"}, f.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string) ratelimit.Result {
	return ratelimit.Result{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond}
}

type testServer struct {
	engine   *gin.Engine
	payments *fakePaymentService
	checkout *fakeCheckoutService
}

func newTestServer(t *testing.T, opts ...func(*ServerParams)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	useJSONFieldNames()

	ts := &testServer{
		engine:   engine,
		payments: &fakePaymentService{},
		checkout: &fakeCheckoutService{},
	}
	cfg := config.Config{}
	cfg.Stripe.PublishableKey = "pk_test_123"
	cfg.Stripe.Currency = "usd"

	params := ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		PaymentSvc:  ts.payments,
		CheckoutSvc: ts.checkout,
		QuoteSvc:    fakeQuoteService{},
		PolicySvc:   fakePolicyService{},
	}
	for _, opt := range opts {
		opt(&params)
	}
	NewServer(params)
	return ts
}

func (ts *testServer) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestPaymentWebhookStatusCodes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantType string
	}{
		{name: "processed", wantCode: http.StatusOK},
		{name: "duplicate", err: paymentdomain.ErrEventAlreadyProcessed, wantCode: http.StatusOK},
		{name: "bad signature", err: paymentdomain.ErrInvalidSignature, wantCode: http.StatusBadRequest, wantType: "invalid_signature"},
		{name: "malformed payload", err: paymentdomain.ErrInvalidPayload, wantCode: http.StatusBadRequest, wantType: "invalid_request"},
		{name: "unknown provider", err: paymentdomain.ErrProviderNotFound, wantCode: http.StatusNotFound, wantType: "not_found"},
		{name: "locked", err: paymentdomain.ErrEventInProgress, wantCode: http.StatusConflict, wantType: "event_in_progress"},
		{name: "missing metadata", err: paymentdomain.ErrMissingMetadata, wantCode: http.StatusInternalServerError, wantType: "internal_error"},
		{name: "quote missing", err: paymentdomain.ErrQuoteNotFound, wantCode: http.StatusInternalServerError, wantType: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.payments.result = paymentdomain.IngestResult{EventID: "evt_1", EventType: "checkout.session.completed"}
			ts.payments.err = tc.err

			rec := ts.do(http.MethodPost, "/webhooks/stripe", []byte(`{"id":"evt_1"}`))
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if tc.wantType != "" {
				if got := decodeError(t, rec).Type; got != tc.wantType {
					t.Fatalf("expected error type %s, got %s", tc.wantType, got)
				}
			}
			if ts.payments.provider != "stripe" || string(ts.payments.payload) != `{"id":"evt_1"}` {
				t.Fatalf("expected raw payload to reach the service, got %s %q", ts.payments.provider, ts.payments.payload)
			}
		})
	}
}

func TestPaymentWebhookLegacyPath(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/api/payments/webhooks/stripe", []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/checkout/sessions", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if len(payload.Errors) != 1 || payload.Errors[0].Field != "quote_id" || payload.Errors[0].Code != "required" {
		t.Fatalf("unexpected validation errors %+v", payload.Errors)
	}
	if ts.checkout.createCalls != 0 {
		t.Fatalf("expected no checkout call on invalid input")
	}
}

func TestCreateInlineCheckoutSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/checkout/sessions/inline", []byte(`{"id":"1","quote_number":"QT-1","partner_id":"2","coverage_type":"liability","event_type":"wedding","event_date":"15/08/2026","participants":0,"customer_email":"nope"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	fields := map[string]string{}
	for _, e := range decodeError(t, rec).Errors {
		fields[e.Field] = e.Code
	}
	want := map[string]string{"event_date": "datetime", "participants": "gte", "customer_email": "email"}
	for field, code := range want {
		if fields[field] != code {
			t.Fatalf("expected %s=%s in %v", field, code, fields)
		}
	}
}

func TestCreateInlineCheckoutSession(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.result = checkoutdomain.SessionResult{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}

	rec := ts.do(http.MethodPost, "/api/checkout/sessions/inline", []byte(`{"id":"1","quote_number":"QT-1","partner_id":"2","premium":"150.50","coverage_type":"liability","event_type":"wedding","event_date":"2026-08-15","participants":120}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.checkout.inline.Premium.String() != "150.5" || ts.checkout.inline.EventDate.Day() != 15 {
		t.Fatalf("unexpected checkout input %+v", ts.checkout.inline)
	}

	ts.checkout.err = checkoutdomain.ErrInvalidPremium
	rec = ts.do(http.MethodPost, "/api/checkout/sessions/inline", []byte(`{"id":"1","quote_number":"QT-1","partner_id":"2","premium":0,"coverage_type":"liability","event_type":"wedding","event_date":"2026-08-15","participants":120}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if len(payload.Errors) != 1 || payload.Errors[0].Field != "premium" || payload.Errors[0].Message != "premium must be greater than zero" {
		t.Fatalf("unexpected validation errors %+v", payload.Errors)
	}
}

func TestCreateCheckoutSessionErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "card", err: &stripeclient.ProviderError{Kind: stripeclient.KindCard, Message: "Your card was declined."}, wantCode: http.StatusPaymentRequired},
		{name: "invalid request", err: &stripeclient.ProviderError{Kind: stripeclient.KindInvalidRequest}, wantCode: http.StatusBadRequest},
		{name: "auth", err: &stripeclient.ProviderError{Kind: stripeclient.KindAuth}, wantCode: http.StatusBadGateway},
		{name: "rate limit", err: &stripeclient.ProviderError{Kind: stripeclient.KindRateLimit}, wantCode: http.StatusServiceUnavailable},
		{name: "api", err: &stripeclient.ProviderError{Kind: stripeclient.KindAPI}, wantCode: http.StatusServiceUnavailable},
		{name: "connection", err: &stripeclient.ProviderError{Kind: stripeclient.KindConnection}, wantCode: http.StatusServiceUnavailable},
		{name: "incomplete", err: checkoutdomain.ErrSessionIncomplete, wantCode: http.StatusBadGateway},
		{name: "quote expired", err: quotedomain.ErrExpired, wantCode: http.StatusConflict},
		{name: "quote missing", err: quotedomain.ErrNotFound, wantCode: http.StatusNotFound},
		{name: "quote id invalid", err: quotedomain.ErrInvalidID, wantCode: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.checkout.err = tc.err

			rec := ts.do(http.MethodPost, "/api/checkout/sessions", []byte(`{"quote_id":"1790000000000000001"}`))
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCardErrorMessageIsSurfaced(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.err = &stripeclient.ProviderError{Kind: stripeclient.KindCard, Message: "Your card was declined."}

	rec := ts.do(http.MethodPost, "/api/checkout/sessions", []byte(`{"quote_id":"1"}`))
	payload := decodeError(t, rec)
	if payload.Message != "Your card was declined." || payload.Code != "card_error" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCheckoutRateLimit(t *testing.T) {
	ts := newTestServer(t, func(p *ServerParams) { p.CheckoutLimiter = denyLimiter{} })

	rec := ts.do(http.MethodPost, "/api/checkout/sessions", []byte(`{"quote_id":"1"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if ts.checkout.createCalls != 0 {
		t.Fatalf("expected checkout not to be called when limited")
	}

	rec = ts.do(http.MethodGet, "/api/checkout/sessions/cs_test_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected readers to bypass the limiter, got %d", rec.Code)
	}
}

func TestCheckoutPaymentDetailsNotPaid(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.err = checkoutdomain.ErrSessionNotPaid

	rec := ts.do(http.MethodGet, "/api/checkout/sessions/cs_test_1/payment", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := decodeError(t, rec).Code; got != checkoutdomain.ErrSessionNotPaid.Error() {
		t.Fatalf("expected not paid code, got %s", got)
	}
}

func TestReadEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(http.MethodGet, "/api/quotes/1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected quote 200, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/policies/1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected policy 200, got %d", rec.Code)
	}

	missing := newTestServer(t, func(p *ServerParams) {
		p.QuoteSvc = fakeQuoteService{err: quotedomain.ErrNotFound}
		p.PolicySvc = fakePolicyService{err: policydomain.ErrInvalidID}
	})
	if rec := missing.do(http.MethodGet, "/api/quotes/1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected quote 404, got %d", rec.Code)
	}
	if rec := missing.do(http.MethodGet, "/api/policies/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected policy 400, got %d", rec.Code)
	}

	rec := ts.do(http.MethodGet, "/api/config/stripe", nil)
	var cfg map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg["publishable_key"] != "pk_test_123" || cfg["currency"] != "usd" {
		t.Fatalf("unexpected stripe config %v", cfg)
	}

	if rec := ts.do(http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected fallback 404, got %d", rec.Code)
	}
}

func TestListWebhookEvents(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/webhook-events?processed=false&limit=20", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.payments.listReq.Processed == nil || *ts.payments.listReq.Processed || ts.payments.listReq.Limit != 20 {
		t.Fatalf("unexpected list request %+v", ts.payments.listReq)
	}

	if rec := ts.do(http.MethodGet, "/api/webhook-events?processed=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid processed filter, got %d", rec.Code)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(&stripeclient.ProviderError{Kind: stripeclient.KindAuth})
	if errType != "provider_error" || code != "auth_error" {
		t.Fatalf("unexpected classification %s/%s", errType, code)
	}
	errType, code = classifyErrorForLog(checkoutdomain.ErrQuoteIDRequired)
	if errType != "validation_error" || code != "invalid_quote_id" {
		t.Fatalf("unexpected classification %s/%s", errType, code)
	}
}
