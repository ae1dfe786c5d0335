package usecase

import (
	"context"

	"rodae/internal/model"
	"rodae/internal/payment/application/ports/in"
	"rodae/internal/payment/application/ports/out"
	"rodae/internal/payment/domain"
	"rodae/internal/shared/logger"
)

// ListTransactionsService — история транзакций с проекцией по роли
type ListTransactionsService struct {
	payments out.PaymentRepository
	payouts  out.PayoutRepository
}

func NewListTransactionsService(payments out.PaymentRepository, payouts out.PayoutRepository) *ListTransactionsService {
	return &ListTransactionsService{payments: payments, payouts: payouts}
}

// Execute: пассажир видит свои оплаты, водитель — свои поездки с суммой репасса,
// администратор — все строки с явными фильтрами.
func (s *ListTransactionsService) Execute(ctx context.Context, input in.ListTransactionsInput) ([]in.TransactionView, error) {
	filter := domain.PaymentFilter{
		Status: input.Status,
		RideID: input.RideID,
		From:   input.From,
		To:     input.To,
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	switch input.Role {
	case model.RolePassenger:
		filter.PassengerID = input.RequesterID
	case model.RoleDriver:
		filter.DriverID = input.RequesterID
	case model.RoleAdmin:
	default:
		return nil, domain.ErrRoleNotAllowed
	}
	if input.Role != model.RoleAdmin && input.RequesterID == "" {
		return nil, domain.ErrNotAParty
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	records, err := s.payments.ListRecords(ctx, filter)
	if err != nil {
		return nil, err
	}

	if input.Role != model.RoleDriver {
		views := make([]in.TransactionView, 0, len(records))
		for _, r := range records {
			views = append(views, paymentView(r))
		}
		return views, nil
	}

	byPayment := map[string]*domain.Payout{}
	if len(records) > 0 {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		payouts, err := s.payouts.List(ctx, domain.PayoutFilter{DriverID: input.RequesterID, PaymentIDs: ids})
		if err != nil {
			return nil, err
		}
		for _, p := range payouts {
			byPayment[p.PaymentID] = p
		}
	}

	views := make([]in.TransactionView, 0, len(records))
	for _, r := range records {
		views = append(views, driverView(r, byPayment[r.ID]))
	}
	return views, nil
}

func paymentView(r *domain.PaymentRecord) in.TransactionView {
	amount := r.Amount
	return in.TransactionView{
		PaymentID:           r.ID,
		RideID:              r.RideID,
		Status:              r.Status,
		CreatedAt:           r.CreatedAt,
		Amount:              &amount,
		Method:              r.Method,
		TransactionID:       r.TransactionID,
		RefundJustification: r.RefundJustification,
		PassengerID:         r.PassengerID,
		DriverID:            r.DriverID,
	}
}

// driverView не раскрывает сумму списания и данные транзакции
func driverView(r *domain.PaymentRecord, p *domain.Payout) in.TransactionView {
	v := in.TransactionView{
		PaymentID: r.ID,
		RideID:    r.RideID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if p != nil {
		amount, status := p.DriverAmount, p.Status
		v.PayoutAmount = &amount
		v.PayoutStatus = &status
	}
	return v
}

// GetPaymentService — карточка платежа; пассажир и водитель видят только свои поездки
type GetPaymentService struct {
	payments out.PaymentRepository
	log      *logger.Logger
}

func NewGetPaymentService(payments out.PaymentRepository, log *logger.Logger) *GetPaymentService {
	return &GetPaymentService{payments: payments, log: log}
}

func (s *GetPaymentService) Execute(ctx context.Context, input in.GetPaymentInput) (*domain.PaymentRecord, error) {
	switch input.Role {
	case model.RoleAdmin, model.RolePassenger, model.RoleDriver:
	default:
		return nil, domain.ErrRoleNotAllowed
	}

	record, err := s.payments.FindRecordByID(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if input.Role != model.RoleAdmin && !record.IsParty(input.RequesterID) {
		s.log.Warn(logger.Entry{
			Action:    "payment_access_forbidden",
			Message:   "requester is not a party to the ride",
			RideID:    record.RideID,
			PaymentID: record.ID,
			Additional: map[string]any{
				"requester_id": input.RequesterID,
				"role":         input.Role,
			},
		})
		return nil, domain.ErrNotAParty
	}
	return record, nil
}

// ListPayoutsService — административный отчет по репассам
type ListPayoutsService struct {
	payouts out.PayoutRepository
}

func NewListPayoutsService(payouts out.PayoutRepository) *ListPayoutsService {
	return &ListPayoutsService{payouts: payouts}
}

// Execute возвращает репассы и статистику по тем же фильтрам:
// количество по статусам и суммы только по COMPLETED.
func (s *ListPayoutsService) Execute(ctx context.Context, input in.ListPayoutsInput) (*in.ListPayoutsOutput, error) {
	filter := domain.PayoutFilter{
		Status:   input.Status,
		DriverID: input.DriverID,
		From:     input.From,
		To:       input.To,
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	payouts, err := s.payouts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &in.ListPayoutsOutput{
		Payouts: payouts,
		Stats:   domain.NewPayoutStats(payouts),
	}, nil
}
