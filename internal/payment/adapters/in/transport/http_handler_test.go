package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/auth"
	"rodae/internal/shared/config"
	"rodae/internal/shared/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRegister struct{ mock.Mock }

func (m *mockRegister) Execute(ctx context.Context, input in.RegisterPaymentInput) (*in.RegisterPaymentOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*in.RegisterPaymentOutput)
	return out, args.Error(1)
}

type mockRefund struct{ mock.Mock }

func (m *mockRefund) Execute(ctx context.Context, input in.RefundPaymentInput) (*in.RefundPaymentOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*in.RefundPaymentOutput)
	return out, args.Error(1)
}

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) CreateAndProcess(ctx context.Context, payment *domain.Payment, driverID string) (*domain.Payout, error) {
	args := m.Called(ctx, payment, driverID)
	out, _ := args.Get(0).(*domain.Payout)
	return out, args.Error(1)
}

func (m *mockPayouts) Reprocess(ctx context.Context, payoutID string) (*domain.Payout, error) {
	args := m.Called(ctx, payoutID)
	out, _ := args.Get(0).(*domain.Payout)
	return out, args.Error(1)
}

type mockTransactions struct{ mock.Mock }

func (m *mockTransactions) Execute(ctx context.Context, input in.ListTransactionsInput) ([]in.TransactionView, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).([]in.TransactionView)
	return out, args.Error(1)
}

type mockGetPayment struct{ mock.Mock }

func (m *mockGetPayment) Execute(ctx context.Context, input in.GetPaymentInput) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*domain.PaymentRecord)
	return out, args.Error(1)
}

type mockListPayouts struct{ mock.Mock }

func (m *mockListPayouts) Execute(ctx context.Context, input in.ListPayoutsInput) (*in.ListPayoutsOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*in.ListPayoutsOutput)
	return out, args.Error(1)
}

type server struct {
	mux          *http.ServeMux
	jwt          *auth.JWTService
	register     *mockRegister
	refund       *mockRefund
	payouts      *mockPayouts
	transactions *mockTransactions
	getPayment   *mockGetPayment
	listPayouts  *mockListPayouts
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := logger.New("test", io.Discard, logger.LevelDebug)
	s := &server{
		mux:          http.NewServeMux(),
		jwt:          auth.NewJWTService(config.JWTConfig{Secret: "test-secret", ExpiryMinutes: 5}),
		register:     &mockRegister{},
		refund:       &mockRefund{},
		payouts:      &mockPayouts{},
		transactions: &mockTransactions{},
		getPayment:   &mockGetPayment{},
		listPayouts:  &mockListPayouts{},
	}
	h := NewHTTPHandler(UseCases{
		Register:     s.register,
		Refund:       s.refund,
		Payouts:      s.payouts,
		Transactions: s.transactions,
		GetPayment:   s.getPayment,
		ListPayouts:  s.listPayouts,
	}, log)
	h.RegisterRoutes(s.mux, JWTMiddleware(s.jwt, log))
	return s
}

func (s *server) do(t *testing.T, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		token, err := s.jwt.GenerateToken("user-"+strings.ToLower(role), "u@rodae.com.br", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func paidPayment() *domain.Payment {
	txID := "TXN-1"
	return &domain.Payment{
		ID:            "pay-1",
		RideID:        "ride-1",
		TransactionID: &txID,
		Amount:        decimal.RequireFromString("50"),
		Method:        model.MethodPix,
		Status:        model.PaymentStatusPaid,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func completedPayout() *domain.Payout {
	return &domain.Payout{
		ID:             "po-1",
		PaymentID:      "pay-1",
		DriverID:       "drv-1",
		TotalAmount:    decimal.RequireFromString("50"),
		DriverAmount:   decimal.RequireFromString("40"),
		PlatformAmount: decimal.RequireFromString("10"),
		Status:         model.PayoutStatusCompleted,
		AttemptCount:   1,
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestAuthentication(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/transactions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or missing token", decodeBody(t, rec)["error"])

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, path := range []string{"/payments", "/payments/pay-1/refund", "/admin/payouts/po-1/reprocess"} {
		rec := s.do(t, http.MethodPost, path, model.RolePassenger, `{}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "admin role required", decodeBody(t, rec)["error"])
	}
	rec = s.do(t, http.MethodGet, "/admin/payouts", model.RoleDriver, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.register.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	s.refund.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestRegisterPayment(t *testing.T) {
	s := newServer(t)
	driverID := "drv-1"
	s.register.On("Execute", mock.Anything, mock.MatchedBy(func(input in.RegisterPaymentInput) bool {
		return input.RideID == "ride-1" && input.Amount.Equal(decimal.RequireFromString("50")) &&
			input.Method == model.MethodPix && input.ExternalTransactionID == ""
	})).Return(&in.RegisterPaymentOutput{
		Payment:     paidPayment(),
		PassengerID: "pas-1",
		DriverID:    &driverID,
		Payout:      completedPayout(),
	}, nil).Once()

	rec := s.do(t, http.MethodPost, "/payments", model.RoleAdmin, `{"ride_id":"ride-1","amount":"50","method":"PIX"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp RegisterPaymentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "50.00", resp.Payment.Amount)
	assert.Equal(t, "pas-1", resp.Payment.PassengerID)
	require.NotNil(t, resp.Payout)
	assert.Equal(t, "40.00", resp.Payout.DriverAmount)
	assert.Equal(t, "10.00", resp.Payout.PlatformAmount)
	assert.Empty(t, resp.PayoutError)
	s.register.AssertExpectations(t)
}

func TestRegisterPaymentBadRequests(t *testing.T) {
	s := newServer(t)
	cases := []struct {
		body string
		want string
	}{
		{"", "empty request body"},
		{`{"ride_id":`, "invalid request format"},
		{`{"ride_id":"r","amount":"1","method":"PIX","tip":5}`, "invalid request format"},
		{`{"amount":"1","method":"PIX"}`, "ride_id is required"},
		{`{"ride_id":"r","amount":"1"}`, "method is required"},
	}
	for _, tc := range cases {
		rec := s.do(t, http.MethodPost, "/payments", model.RoleAdmin, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Equal(t, tc.want, decodeBody(t, rec)["error"], tc.body)
	}
	s.register.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.ErrInvalidMethod, http.StatusBadRequest, domain.ErrInvalidMethod.Error()},
		{domain.ErrRideNotCompleted, http.StatusBadRequest, domain.ErrRideNotCompleted.Error()},
		{domain.ErrRideNotFound, http.StatusNotFound, domain.ErrRideNotFound.Error()},
		{domain.ErrDuplicatePayment, http.StatusConflict, domain.ErrDuplicatePayment.Error()},
		{domain.ErrGatewayUnavailable, http.StatusBadGateway, "payment gateway unavailable"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			s := newServer(t)
			s.register.On("Execute", mock.Anything, mock.Anything).Return(nil, tc.err)

			rec := s.do(t, http.MethodPost, "/payments", model.RoleAdmin, `{"ride_id":"r","amount":"10","method":"PIX"}`)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.msg, decodeBody(t, rec)["error"])
		})
	}
}

func TestRefund(t *testing.T) {
	s := newServer(t)
	refunded := paidPayment()
	refunded.Status = model.PaymentStatusRefunded
	partial := decimal.RequireFromString("20")

	s.refund.On("Execute", mock.Anything, mock.MatchedBy(func(input in.RefundPaymentInput) bool {
		return input.PaymentID == "pay-1" && input.Amount != nil && input.Amount.Equal(partial) &&
			input.Justification == "passenger charged twice" && input.AdminID == "user-admin"
	})).Return(&in.RefundPaymentOutput{
		Payment:      refunded,
		RefundAmount: partial,
		Kind:         model.RefundPartial,
	}, nil).Once()

	rec := s.do(t, http.MethodPost, "/payments/pay-1/refund", model.RoleAdmin,
		`{"amount":"20","justification":"passenger charged twice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RefundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.PaymentStatusRefunded, resp.Payment.Status)
	assert.Equal(t, "20.00", resp.RefundAmount)
	assert.Equal(t, model.RefundPartial, resp.RefundKind)
	assert.NotNil(t, resp.CancelledPayouts)
	s.refund.AssertExpectations(t)
}

func TestRefundNotPaid(t *testing.T) {
	s := newServer(t)
	s.refund.On("Execute", mock.Anything, mock.Anything).Return(nil, domain.ErrPaymentNotRefundable)

	rec := s.do(t, http.MethodPost, "/payments/pay-1/refund", model.RoleAdmin, `{"justification":"passenger charged twice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "only paid transactions can be refunded", decodeBody(t, rec)["error"])
}

func TestGetPayment(t *testing.T) {
	s := newServer(t)
	s.getPayment.On("Execute", mock.Anything, in.GetPaymentInput{
		PaymentID: "pay-1", RequesterID: "user-passenger", Role: model.RolePassenger,
	}).Return(&domain.PaymentRecord{Payment: *paidPayment(), PassengerID: "user-passenger"}, nil)
	s.getPayment.On("Execute", mock.Anything, in.GetPaymentInput{
		PaymentID: "pay-1", RequesterID: "user-driver", Role: model.RoleDriver,
	}).Return(nil, domain.ErrNotAParty)

	rec := s.do(t, http.MethodGet, "/payments/pay-1", model.RolePassenger, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "50.00", body["amount"])
	assert.Equal(t, "TXN-1", body["transaction_id"])

	rec = s.do(t, http.MethodGet, "/payments/pay-1", model.RoleDriver, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListTransactions(t *testing.T) {
	s := newServer(t)
	payoutAmount := decimal.RequireFromString("40")
	payoutStatus := model.PayoutStatusCompleted
	s.transactions.On("Execute", mock.Anything, mock.MatchedBy(func(input in.ListTransactionsInput) bool {
		return input.Role == model.RoleDriver && input.RequesterID == "user-driver" &&
			input.Status == model.PaymentStatusPaid && input.Limit == 10 && input.Offset == 5 &&
			input.From != nil && input.To != nil && input.To.Hour() == 23
	})).Return([]in.TransactionView{{
		PaymentID:    "pay-1",
		RideID:       "ride-1",
		Status:       model.PaymentStatusPaid,
		PayoutAmount: &payoutAmount,
		PayoutStatus: &payoutStatus,
	}}, nil).Once()

	rec := s.do(t, http.MethodGet,
		"/transactions?status=PAID&from=2026-03-01&to=2026-03-31&limit=10&offset=5", model.RoleDriver, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Transactions []map[string]any `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Transactions, 1)
	row := resp.Transactions[0]
	assert.Equal(t, "40.00", row["payout_amount"])
	assert.NotContains(t, row, "amount")
	assert.NotContains(t, row, "transaction_id")
	s.transactions.AssertExpectations(t)
}

func TestListTransactionsBadQuery(t *testing.T) {
	s := newServer(t)
	for _, q := range []string{"from=yesterday", "to=2026-13-01", "limit=-1", "offset=abc"} {
		rec := s.do(t, http.MethodGet, "/transactions?"+q, model.RoleAdmin, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	s.transactions.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestListPayouts(t *testing.T) {
	s := newServer(t)
	p := completedPayout()
	s.listPayouts.On("Execute", mock.Anything, mock.MatchedBy(func(input in.ListPayoutsInput) bool {
		return input.DriverID == "drv-1" && input.Status == ""
	})).Return(&in.ListPayoutsOutput{
		Payouts: []*domain.Payout{p},
		Stats:   domain.NewPayoutStats([]*domain.Payout{p}),
	}, nil)

	rec := s.do(t, http.MethodGet, "/admin/payouts?driver_id=drv-1", model.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PayoutListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Payouts, 1)
	assert.Equal(t, 1, resp.Stats.Total)
	assert.Equal(t, "40.00", resp.Stats.CompletedDriverAmount)
	assert.Equal(t, "10.00", resp.Stats.CompletedPlatformAmount)
}

func TestReprocessPayout(t *testing.T) {
	s := newServer(t)

	failed := completedPayout()
	failed.Status = model.PayoutStatusFailed
	failed.AttemptCount = 2
	s.payouts.On("Reprocess", mock.Anything, "po-failed").Return(failed,
		&domain.PayoutFailedError{PayoutID: "po-failed", Attempt: 2, Reason: "bank offline"})
	s.payouts.On("Reprocess", mock.Anything, "po-1").Return(completedPayout(), nil)
	s.payouts.On("Reprocess", mock.Anything, "po-done").Return(nil, domain.ErrAlreadyCompleted)
	s.payouts.On("Reprocess", mock.Anything, "po-missing").Return(nil, domain.ErrPayoutNotFound)

	rec := s.do(t, http.MethodPost, "/admin/payouts/po-1/reprocess", model.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COMPLETED", decodeBody(t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/admin/payouts/po-failed/reprocess", model.RoleAdmin, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "failed on attempt 2")
	payout, ok := body["payout"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), payout["attempt_count"])

	rec = s.do(t, http.MethodPost, "/admin/payouts/po-done/reprocess", model.RoleAdmin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/payouts/po-missing/reprocess", model.RoleAdmin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParsePeriod(t *testing.T) {
	from, to, err := parsePeriod("2026-03-01T10:00:00-03:00", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), *from)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 999999999, time.UTC), *to)

	from, to, err = parsePeriod("", "")
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	_, _, err = parsePeriod("03/01/2026", "")
	assert.EqualError(t, err, `invalid from: "03/01/2026"`)
}
