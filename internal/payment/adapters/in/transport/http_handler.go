package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
)

const maxBodySize = 1 << 20 // 1MB

// HTTPHandler обрабатывает HTTP запросы Payment Service
type HTTPHandler struct {
	registerUC     in.RegisterPaymentUseCase
	refundUC       in.RefundPaymentUseCase
	payoutUC       in.PayoutProcessingUseCase
	transactionsUC in.ListTransactionsUseCase
	getPaymentUC   in.GetPaymentUseCase
	listPayoutsUC  in.ListPayoutsUseCase
	log            *logger.Logger
}

type UseCases struct {
	Register     in.RegisterPaymentUseCase
	Refund       in.RefundPaymentUseCase
	Payouts      in.PayoutProcessingUseCase
	Transactions in.ListTransactionsUseCase
	GetPayment   in.GetPaymentUseCase
	ListPayouts  in.ListPayoutsUseCase
}

func NewHTTPHandler(uc UseCases, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		registerUC:     uc.Register,
		refundUC:       uc.Refund,
		payoutUC:       uc.Payouts,
		transactionsUC: uc.Transactions,
		getPaymentUC:   uc.GetPayment,
		listPayoutsUC:  uc.ListPayouts,
		log:            log,
	}
}

// RegisterRoutes регистрирует все HTTP маршруты
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(RequireAdmin(next))
	}

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("POST /payments", admin(h.handleRegisterPayment))
	mux.HandleFunc("POST /payments/{payment_id}/refund", admin(h.handleRefund))
	mux.HandleFunc("GET /payments/{payment_id}", authMiddleware(h.handleGetPayment))
	mux.HandleFunc("GET /transactions", authMiddleware(h.handleListTransactions))

	mux.HandleFunc("GET /admin/payouts", admin(h.handleListPayouts))
	mux.HandleFunc("POST /admin/payouts/{payout_id}/reprocess", admin(h.handleReprocessPayout))
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /payments
func (h *HTTPHandler) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req RegisterPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RideID == "" {
		respondError(w, http.StatusBadRequest, "ride_id is required")
		return
	}
	if req.Method == "" {
		respondError(w, http.StatusBadRequest, "method is required")
		return
	}

	output, err := h.registerUC.Execute(r.Context(), in.RegisterPaymentInput{
		RideID:                req.RideID,
		Amount:                req.Amount,
		Method:                req.Method,
		ExternalTransactionID: req.TransactionID,
	})
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}

	payment := toPaymentResponse(output.Payment)
	payment.PassengerID = output.PassengerID
	payment.DriverID = output.DriverID
	resp := RegisterPaymentResponse{Payment: payment, PayoutError: output.PayoutError}
	if output.Payout != nil {
		p := toPayoutResponse(output.Payout)
		resp.Payout = &p
	}
	respondJSON(w, http.StatusCreated, resp)
}

// POST /payments/{payment_id}/refund
func (h *HTTPHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	adminID, _ := userFrom(r.Context())

	var req RefundRequest
	if !h.decode(w, r, &req) {
		return
	}

	output, err := h.refundUC.Execute(r.Context(), in.RefundPaymentInput{
		PaymentID:     r.PathValue("payment_id"),
		Amount:        req.Amount,
		Justification: req.Justification,
		AdminID:       adminID,
	})
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, RefundResponse{
		Payment:          toPaymentResponse(output.Payment),
		RefundAmount:     money(output.RefundAmount),
		RefundKind:       output.Kind,
		CancelledPayouts: toPayoutResponses(output.CancelledPayouts),
	})
}

// GET /payments/{payment_id}
func (h *HTTPHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	userID, role := userFrom(r.Context())

	record, err := h.getPaymentUC.Execute(r.Context(), in.GetPaymentInput{
		PaymentID:   r.PathValue("payment_id"),
		RequesterID: userID,
		Role:        role,
	})
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponse(record))
}

// GET /transactions?status=&ride_id=&from=&to=&limit=&offset=
func (h *HTTPHandler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, role := userFrom(r.Context())
	q := r.URL.Query()

	from, to, err := parsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseNonNegative(q.Get("limit"), "limit")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parseNonNegative(q.Get("offset"), "offset")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.transactionsUC.Execute(r.Context(), in.ListTransactionsInput{
		RequesterID: userID,
		Role:        role,
		Status:      q.Get("status"),
		RideID:      q.Get("ride_id"),
		From:        from,
		To:          to,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}

	resp := make([]TransactionResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toTransactionResponse(v))
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": resp})
}

// GET /admin/payouts?status=&driver_id=&from=&to=
func (h *HTTPHandler) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := parsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	output, err := h.listPayoutsUC.Execute(r.Context(), in.ListPayoutsInput{
		Status:   q.Get("status"),
		DriverID: q.Get("driver_id"),
		From:     from,
		To:       to,
	})
	if err != nil {
		h.handleUseCaseError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, PayoutListResponse{
		Payouts: toPayoutResponses(output.Payouts),
		Stats:   toStatsResponse(output.Stats),
	})
}

// POST /admin/payouts/{payout_id}/reprocess
func (h *HTTPHandler) handleReprocessPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.payoutUC.Reprocess(r.Context(), r.PathValue("payout_id"))
	if err != nil {
		var failed *domain.PayoutFailedError
		if errors.As(err, &failed) && payout != nil {
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":  failed.Error(),
				"payout": toPayoutResponse(payout),
			})
			return
		}
		h.handleUseCaseError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPayoutResponse(payout))
}

// decode читает JSON тело; при ошибке ответ уже отправлен
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "empty request body")
			return false
		}
		h.log.Warn(logger.Entry{
			Action:  "parse_request_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
			Additional: map[string]any{
				"path": r.URL.Path,
			},
		})
		respondError(w, http.StatusBadRequest, "invalid request format")
		return false
	}
	return true
}

// handleUseCaseError переводит вид доменной ошибки в HTTP статус
func (h *HTTPHandler) handleUseCaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrPayoutFailed):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrGatewayUnavailable):
		respondError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.log.Error(logger.Entry{
			Action:  "usecase_error",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parsePeriod принимает RFC3339 или дату YYYY-MM-DD; дата в to включает весь день
func parsePeriod(fromRaw, toRaw string) (from, to *time.Time, err error) {
	if fromRaw != "" {
		t, _, err := parseTime(fromRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from: %q", fromRaw)
		}
		from = &t
	}
	if toRaw != "" {
		t, dateOnly, err := parseTime(toRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to: %q", toRaw)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err = time.Parse(time.DateOnly, s)
	return t, true, err
}

func parseNonNegative(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
