package httptransport

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IsVohi/OrderFlow-sub000/internal/dal/uow/memuow"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/errs"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/event"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
)

const createBody = `{
	"customerId": "customer-1",
	"currency": "USD",
	"shippingAddress": {"line1": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US"},
	"items": [
		{"productId": "p-1", "productName": "Mug", "sellerId": "s-1", "quantity": 3, "unitPrice": 19.99},
		{"productId": "p-2", "productName": "Coaster", "sellerId": "s-1", "quantity": 1, "unitPrice": "5.00", "currency": "USD"}
	]
}`

type testServer struct {
	handler http.Handler
	store   *memuow.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memuow.NewStore()
	svc := ordersvc.MustNewOrderService(
		ordersvc.WithUnitOfWorkFactory(store.Factory()),
		ordersvc.WithClock(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }),
	)
	transport := NewHTTPTransport(svc)
	transport.RegisterRoutes()

	return &testServer{handler: transport.Handler(), store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *testServer) create(t *testing.T, key string) order.Order {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v1/orders", createBody, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	return decode[order.Order](t, rec)
}

func TestCreateOrder_CreatedThenReplayed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", createBody, map[string]string{
		"Idempotency-Key":           "key-1",
		respond.HeaderCorrelationID: "corr-9",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "key-1", rec.Header().Get("Idempotency-Key"))
	assert.Equal(t, "corr-9", rec.Header().Get(respond.HeaderCorrelationID))

	first := decode[order.Order](t, rec)
	assert.Equal(t, "64.97", first.TotalAmount.StringFixed(2))
	assert.Equal(t, order.StatusPending, first.Status)
	assert.Len(t, first.OrderItems, 2)

	rec = s.do(t, http.MethodPost, "/api/v1/orders", createBody, map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[order.Order](t, rec).ID)
	assert.Len(t, s.store.Orders(), 1)

	outbox := s.store.Outbox()
	require.Len(t, outbox, 1)
	env, err := event.Decode(outbox[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "corr-9", env.Metadata.CorrelationID)
}

func TestCreateOrder_GeneratesIdempotencyKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", createBody, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	key := rec.Header().Get("Idempotency-Key")
	assert.NotEmpty(t, key)
	assert.Equal(t, key, decode[order.Order](t, rec).IdempotencyKey)
}

func TestCreateOrder_ValidationErrors(t *testing.T) {
	s := newTestServer(t)

	for name, body := range map[string]string{
		"malformed":     `{"customerId":`,
		"no items":      `{"customerId":"c","currency":"USD","shippingAddress":{"line1":"a","city":"b","postalCode":"c","country":"US"},"items":[]}`,
		"zero quantity": strings.Replace(createBody, `"quantity": 3`, `"quantity": 0`, 1),
		"bad currency":  strings.Replace(createBody, `"currency": "USD",`, `"currency": "XXX",`, 1),
		"no address":    strings.Replace(createBody, `"line1": "1 Main St", `, "", 1),
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/orders", body, nil)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(errs.CodeValidationFailed), decode[errorBody](t, rec).Code)
		})
	}
	assert.Empty(t, s.store.Orders())
}

func TestGetOrder(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, "key-1")

	rec := s.do(t, http.MethodGet, "/api/v1/orders/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[order.Order](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/3f1c3a52-5b3e-4a55-9f0e-3e4b0b8b6d1a", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errs.CodeOrderNotFound), decode[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders_Paginates(t *testing.T) {
	s := newTestServer(t)
	for _, key := range []string{"k-1", "k-2", "k-3"} {
		s.create(t, key)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/orders?customerId=customer-1&page=2&pageSize=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Orders   []order.Order `json:"orders"`
		Page     int           `json:"page"`
		PageSize int           `json:"pageSize"`
		Total    int           `json:"total"`
	}](t, rec)
	assert.Len(t, body.Orders, 1)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 2, body.PageSize)
	assert.Equal(t, 3, body.Total)

	rec = s.do(t, http.MethodGet, "/api/v1/orders?status=BOGUS", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/orders?page=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitions_HappyPathAndConflict(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, "key-1")
	base := "/api/v1/orders/" + created.ID

	rec := s.do(t, http.MethodPost, base+"/fulfill", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(errs.CodeInvalidOrderState), decode[errorBody](t, rec).Code)

	for _, step := range []struct {
		path   string
		status order.Status
	}{
		{"/confirm", order.StatusPaymentPending},
		{"/pay", order.StatusPaid},
		{"/fulfill", order.StatusFulfilled},
	} {
		rec := s.do(t, http.MethodPost, base+step.path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, step.status, decode[order.Order](t, rec).Status)
	}

	rec = s.do(t, http.MethodGet, base+"/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[struct {
		Events []json.RawMessage `json:"events"`
	}](t, rec)
	assert.Len(t, events.Events, 4)
}

func TestCancel(t *testing.T) {
	s := newTestServer(t)
	created := s.create(t, "key-1")
	path := "/api/v1/orders/" + created.ID + "/cancel"

	rec := s.do(t, http.MethodPost, path, `{"reason":"changed mind"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, path, `{"reason":"changed mind","actor":"customer"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	o := decode[order.Order](t, rec)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, "changed mind", o.CancellationReason)
	assert.False(t, o.RefundRequired)

	rec = s.do(t, http.MethodPost, path, `{"reason":"again","actor":"customer"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRespondError_InfrastructureIs500(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	respond.Error(rec, req, errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotContains(t, body.Message, "connection reset")
}

func TestRespondError_Upstream(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	respond.Error(rec, req, errs.UpstreamUnavailable("inventory", errors.New("timeout")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("ok")))
}
