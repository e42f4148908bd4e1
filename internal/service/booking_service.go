package service

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BookingStore 预约存储。ReserveAndCreate 和 CancelWithRelease 是
// 容量守恒的关键原语，实现方必须保证原子性。
type BookingStore interface {
	FindByID(id uint) (*model.InterviewBooking, error)
	FindActive(sessionID, learnerID uint) (*model.InterviewBooking, error)
	ReserveAndCreate(booking *model.InterviewBooking) error
	Confirm(id uint, paymentRef string) (bool, error)
	CancelWithRelease(id uint, markPayment model.PaymentStatus) (*model.InterviewBooking, error)
	MarkNoShow(id uint) error
	Complete(id uint) error
	UpdatePaymentProof(id uint, proofURL string) error
	ListForLearner(learnerID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error)
	ListForInstructor(instructorID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error)
}

// BookingNotifier 预约确认通知
type BookingNotifier interface {
	SendBookingConfirmed(ctx context.Context, booking *model.InterviewBooking, session *model.InterviewSession) error
}

// BookSessionInput 预约入参
type BookSessionInput struct {
	SessionID       uint
	Notes           string
	PaymentMethod   model.PaymentMethod
	CardNumber      string
	PaymentProofURL string
}

type BookingService struct {
	Bookings BookingStore
	Sessions SessionStore
	Payments PaymentProvider
	Notifier BookingNotifier
	Cfg      *config.PaymentConfig
}

func NewBookingService(bookings BookingStore, sessions SessionStore, payments PaymentProvider, notifier BookingNotifier, cfg *config.PaymentConfig) *BookingService {
	return &BookingService{
		Bookings: bookings,
		Sessions: sessions,
		Payments: payments,
		Notifier: notifier,
		Cfg:      cfg,
	}
}

// BookSession 预约主流程：先占名额再收款，收款失败立即释放名额。
// 信用卡支付同步完成确认；银行转账保持 pending，等管理员核验。
func (s *BookingService) BookSession(ctx context.Context, learnerID uint, input BookSessionInput) (*model.InterviewBooking, error) {
	session, err := s.Sessions.FindByID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, util.ErrSessionClosed
	}
	if session.InstructorID == learnerID {
		return nil, util.ErrAccessDenied
	}

	method := input.PaymentMethod
	if method == "" {
		method = model.PaymentCreditCard
	}
	if method != model.PaymentCreditCard && method != model.PaymentBankTransfer {
		return nil, util.NewValidationError("payment_method must be credit_card or bank_transfer")
	}

	booking := &model.InterviewBooking{
		SessionID:     input.SessionID,
		LearnerID:     learnerID,
		BookingStatus: model.BookingPending,
		PaymentStatus: model.PaymentPending,
		PaymentMethod: method,
		PaymentProof:  input.PaymentProofURL,
		Notes:         input.Notes,
	}
	if err := s.Bookings.ReserveAndCreate(booking); err != nil {
		s.countOutcome(err)
		return nil, err
	}
	s.Sessions.Invalidate(ctx, input.SessionID)

	if method == model.PaymentBankTransfer {
		// 名额已占住，支付在核验通过前保持 pending
		booking.Session = session
		return booking, nil
	}

	charged, err := s.charge(ctx, booking, input.CardNumber)
	if err != nil {
		// 补偿路径：收款失败释放名额，预约记 cancelled/failed
		if _, cerr := s.Bookings.CancelWithRelease(booking.ID, model.PaymentFailed); cerr != nil {
			logger.Log.Error("支付失败后的名额补偿未完成",
				zap.Uint("booking_id", booking.ID),
				zap.Error(cerr))
		}
		s.Sessions.Invalidate(ctx, input.SessionID)
		monitoring.BookingOutcomes.WithLabelValues("payment_failed").Inc()
		return nil, fmt.Errorf("%w: %v", util.ErrPaymentFailed, err)
	}

	ok, err := s.Bookings.Confirm(booking.ID, charged.Reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 支付期间预约已被并发改写（典型场景：场次被取消），
		// 以库里的状态为准返回
		current, ferr := s.Bookings.FindByID(booking.ID)
		if ferr != nil {
			return nil, ferr
		}
		logger.Log.Warn("支付完成时预约已不在 pending 状态",
			zap.Uint("booking_id", booking.ID),
			zap.String("status", string(current.BookingStatus)))
		return current, nil
	}

	confirmed, err := s.Bookings.FindByID(booking.ID)
	if err != nil {
		return nil, err
	}
	monitoring.BookingOutcomes.WithLabelValues("confirmed").Inc()

	if s.Notifier != nil {
		go s.notifyConfirmed(confirmed, session)
	}
	return confirmed, nil
}

func (s *BookingService) charge(ctx context.Context, booking *model.InterviewBooking, cardNumber string) (*ChargeResult, error) {
	timeout := 10 * time.Second
	if s.Cfg != nil && s.Cfg.Timeout > 0 {
		timeout = s.Cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Payments.Charge(ctx, booking.PaymentAmount, booking.LearnerID, cardNumber)
}

// CancelBooking 学员取消自己的预约；讲师和管理员也可代为取消
func (s *BookingService) CancelBooking(ctx context.Context, actorID uint, actorRole model.UserRole, bookingID uint) (*model.InterviewBooking, error) {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBookingActor(actorID, actorRole, booking); err != nil {
		return nil, err
	}

	cancelled, err := s.Bookings.CancelWithRelease(bookingID, "")
	if err != nil {
		return nil, err
	}
	s.Sessions.Invalidate(ctx, booking.SessionID)
	return cancelled, nil
}

// ReportNoShow 讲师上报学员缺席，重复上报幂等
func (s *BookingService) ReportNoShow(instructorID uint, bookingID uint) error {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return err
	}
	if booking.Session == nil || booking.Session.InstructorID != instructorID {
		return util.ErrAccessDenied
	}
	return s.Bookings.MarkNoShow(bookingID)
}

// CompleteBooking 场次结束后讲师核销预约
func (s *BookingService) CompleteBooking(instructorID uint, bookingID uint) error {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return err
	}
	if booking.Session == nil || booking.Session.InstructorID != instructorID {
		return util.ErrAccessDenied
	}
	return s.Bookings.Complete(bookingID)
}

// AttachPaymentProof 学员补传转账凭证，仅限 pending 的银行转账预约
func (s *BookingService) AttachPaymentProof(learnerID uint, bookingID uint, proofURL string) error {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return err
	}
	if booking.LearnerID != learnerID {
		return util.ErrAccessDenied
	}
	if booking.BookingStatus != model.BookingPending || booking.PaymentMethod != model.PaymentBankTransfer {
		return &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "attach payment proof"}
	}
	return s.Bookings.UpdatePaymentProof(bookingID, proofURL)
}

// VerifyPayment 管理员核验银行转账：通过则确认预约，
// 驳回则取消并释放名额
func (s *BookingService) VerifyPayment(ctx context.Context, bookingID uint, approve bool, paymentRef string) (*model.InterviewBooking, error) {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.BookingStatus != model.BookingPending || booking.PaymentMethod != model.PaymentBankTransfer {
		return nil, &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "verify payment"}
	}

	if !approve {
		cancelled, err := s.Bookings.CancelWithRelease(bookingID, model.PaymentFailed)
		if err != nil {
			return nil, err
		}
		s.Sessions.Invalidate(ctx, booking.SessionID)
		return cancelled, nil
	}

	if paymentRef == "" {
		paymentRef = fmt.Sprintf("bank_%d", bookingID)
	}
	ok, err := s.Bookings.Confirm(bookingID, paymentRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "verify payment"}
	}

	confirmed, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return nil, err
	}
	monitoring.BookingOutcomes.WithLabelValues("confirmed").Inc()
	if s.Notifier != nil && confirmed.Session != nil {
		go s.notifyConfirmed(confirmed, confirmed.Session)
	}
	return confirmed, nil
}

// ListBookings 按角色路由列表：学员看自己的预约，讲师看自己场次下的预约
func (s *BookingService) ListBookings(userID uint, role model.UserRole, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error) {
	if role == model.Instructor {
		return s.Bookings.ListForInstructor(userID, status, page, limit)
	}
	return s.Bookings.ListForLearner(userID, status, page, limit)
}

func (s *BookingService) GetBooking(actorID uint, actorRole model.UserRole, bookingID uint) (*model.InterviewBooking, error) {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBookingActor(actorID, actorRole, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) authorizeBookingActor(actorID uint, actorRole model.UserRole, booking *model.InterviewBooking) error {
	switch {
	case actorRole == model.Admin:
		return nil
	case booking.LearnerID == actorID:
		return nil
	case booking.Session != nil && booking.Session.InstructorID == actorID:
		return nil
	}
	return util.ErrAccessDenied
}

func (s *BookingService) notifyConfirmed(booking *model.InterviewBooking, session *model.InterviewSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if booking.Learner == nil {
		return
	}
	if err := s.Notifier.SendBookingConfirmed(ctx, booking, session); err != nil {
		logger.Log.Warn("预约确认通知发送失败",
			zap.Uint("booking_id", booking.ID),
			zap.Error(err))
	}
}

func (s *BookingService) countOutcome(err error) {
	switch {
	case errors.Is(err, util.ErrNoSlotsAvailable):
		monitoring.BookingOutcomes.WithLabelValues("no_slots").Inc()
	case errors.Is(err, util.ErrAlreadyBooked):
		monitoring.BookingOutcomes.WithLabelValues("already_booked").Inc()
	default:
		monitoring.BookingOutcomes.WithLabelValues("error").Inc()
	}
}
