package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newBookingFixture(t *testing.T, maxSlots int) (*memStore, *BookingService) {
	t.Helper()
	store := newMemStore()
	store.addUser(1, model.Instructor, "instructor@test.local")

	session := &model.InterviewSession{
		InstructorID:    1,
		Title:           "Go 后端模拟面试",
		Topic:           "golang",
		DifficultyLevel: model.DifficultyIntermediate,
		SessionDate:     time.Now().Add(48 * time.Hour),
		DurationMinutes: 60,
		Price:           99,
		MaxSlots:        maxSlots,
		SlotsAvailable:  maxSlots,
		Status:          model.SessionScheduled,
	}
	if err := store.Create(session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	svc := NewBookingService(bookingStoreAdapter{store}, store, &stubPayment{}, nil, nil)
	return store, svc
}

func TestBookSessionConfirmsAndDecrementsSlot(t *testing.T) {
	store, svc := newBookingFixture(t, 3)
	store.addUser(2, model.Learner, "learner@test.local")

	booking, err := svc.BookSession(context.Background(), 2, BookSessionInput{
		SessionID:  1,
		CardNumber: "4242424242424242",
	})
	if err != nil {
		t.Fatalf("book session: %v", err)
	}
	if booking.BookingStatus != model.BookingConfirmed {
		t.Errorf("booking status = %s, want confirmed", booking.BookingStatus)
	}
	if booking.PaymentStatus != model.PaymentPaid {
		t.Errorf("payment status = %s, want paid", booking.PaymentStatus)
	}
	if booking.PaymentAmount != 99 {
		t.Errorf("payment amount = %v, want 99", booking.PaymentAmount)
	}

	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 2 {
		t.Errorf("slots available = %d, want 2", session.SlotsAvailable)
	}
}

func TestBookSessionNoOverbookingUnderConcurrency(t *testing.T) {
	const capacity = 3
	const learners = 20

	store, svc := newBookingFixture(t, capacity)
	for i := 0; i < learners; i++ {
		store.addUser(uint(10+i), model.Learner, "learner@test.local")
	}

	var wg sync.WaitGroup
	results := make([]error, learners)
	for i := 0; i < learners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.BookSession(context.Background(), uint(10+i), BookSessionInput{
				SessionID:  1,
				CardNumber: "4242424242424242",
			})
		}(i)
	}
	wg.Wait()

	var confirmed, noSlots int
	for _, err := range results {
		switch {
		case err == nil:
			confirmed++
		case errors.Is(err, util.ErrNoSlotsAvailable):
			noSlots++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if confirmed != capacity {
		t.Errorf("confirmed = %d, want %d", confirmed, capacity)
	}
	if noSlots != learners-capacity {
		t.Errorf("no_slots = %d, want %d", noSlots, learners-capacity)
	}

	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 0 {
		t.Errorf("slots available = %d, want 0", session.SlotsAvailable)
	}
}

func TestBookSessionPaymentFailureReleasesSlot(t *testing.T) {
	store := newMemStore()
	store.addUser(1, model.Instructor, "instructor@test.local")
	store.addUser(2, model.Learner, "learner@test.local")
	session := &model.InterviewSession{
		InstructorID:   1,
		Title:          "系统设计面试",
		Topic:          "system-design",
		SessionDate:    time.Now().Add(24 * time.Hour),
		MaxSlots:       2,
		SlotsAvailable: 2,
		Status:         model.SessionScheduled,
	}
	if err := store.Create(session); err != nil {
		t.Fatal(err)
	}

	svc := NewBookingService(bookingStoreAdapter{store}, store, &stubPayment{fail: true}, nil, nil)

	_, err := svc.BookSession(context.Background(), 2, BookSessionInput{
		SessionID:  1,
		CardNumber: "4242424242420002",
	})
	if !errors.Is(err, util.ErrPaymentFailed) {
		t.Fatalf("err = %v, want ErrPaymentFailed", err)
	}

	got, _ := store.FindByID(1)
	if got.SlotsAvailable != 2 {
		t.Errorf("slots available = %d, want 2 after compensation", got.SlotsAvailable)
	}

	bookings, _, _ := bookingStoreAdapter{store}.ListForLearner(2, "", 1, 10)
	if len(bookings) != 1 {
		t.Fatalf("bookings = %d, want 1", len(bookings))
	}
	if bookings[0].BookingStatus != model.BookingCancelled {
		t.Errorf("booking status = %s, want cancelled", bookings[0].BookingStatus)
	}
	if bookings[0].PaymentStatus != model.PaymentFailed {
		t.Errorf("payment status = %s, want failed", bookings[0].PaymentStatus)
	}
}

func TestBookSessionRejectsDuplicate(t *testing.T) {
	store, svc := newBookingFixture(t, 5)
	store.addUser(2, model.Learner, "learner@test.local")

	if _, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"}); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if !errors.Is(err, util.ErrAlreadyBooked) {
		t.Errorf("err = %v, want ErrAlreadyBooked", err)
	}

	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 4 {
		t.Errorf("slots available = %d, want 4 (duplicate must not consume a slot)", session.SlotsAvailable)
	}
}

func TestBookSessionInstructorCannotBookOwnSession(t *testing.T) {
	_, svc := newBookingFixture(t, 2)

	_, err := svc.BookSession(context.Background(), 1, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("err = %v, want ErrAccessDenied", err)
	}
}

func TestSingleSlotCancelThenRebook(t *testing.T) {
	store, svc := newBookingFixture(t, 1)
	store.addUser(2, model.Learner, "alice@test.local")
	store.addUser(3, model.Learner, "bob@test.local")

	first, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// 名额占满时第二个学员吃闭门羹
	if _, err := svc.BookSession(context.Background(), 3, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"}); !errors.Is(err, util.ErrNoSlotsAvailable) {
		t.Fatalf("err = %v, want ErrNoSlotsAvailable", err)
	}

	// 取消后名额回补
	cancelled, err := svc.CancelBooking(context.Background(), 2, model.Learner, first.ID)
	if err != nil {
		t.Fatalf("cancel booking: %v", err)
	}
	if cancelled.PaymentStatus != model.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", cancelled.PaymentStatus)
	}
	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 1 {
		t.Fatalf("slots available = %d, want 1 after cancel", session.SlotsAvailable)
	}

	// 另一个学员接盘
	if _, err := svc.BookSession(context.Background(), 3, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"}); err != nil {
		t.Fatalf("rebook by second learner: %v", err)
	}

	// 重复取消被状态机拒绝
	if _, err := svc.CancelBooking(context.Background(), 2, model.Learner, first.ID); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("double cancel err = %v, want ErrInvalidState", err)
	}
}

func TestCancelBookingRequiresOwnershipOrPrivilege(t *testing.T) {
	store, svc := newBookingFixture(t, 2)
	store.addUser(2, model.Learner, "alice@test.local")
	store.addUser(3, model.Learner, "mallory@test.local")

	booking, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CancelBooking(context.Background(), 3, model.Learner, booking.ID); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("stranger cancel err = %v, want ErrAccessDenied", err)
	}
	// 场次讲师可以代取消
	if _, err := svc.CancelBooking(context.Background(), 1, model.Instructor, booking.ID); err != nil {
		t.Errorf("instructor cancel err = %v", err)
	}
}

func TestReportNoShow(t *testing.T) {
	store, svc := newBookingFixture(t, 2)
	store.addUser(2, model.Learner, "alice@test.local")
	store.addUser(9, model.Instructor, "other@test.local")

	booking, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.ReportNoShow(9, booking.ID); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign instructor err = %v, want ErrAccessDenied", err)
	}
	if err := svc.ReportNoShow(1, booking.ID); err != nil {
		t.Fatalf("report no-show: %v", err)
	}
	// 重复上报幂等
	if err := svc.ReportNoShow(1, booking.ID); err != nil {
		t.Errorf("repeated report err = %v, want nil", err)
	}

	got, _ := bookingStoreAdapter{store}.FindByID(booking.ID)
	if got.BookingStatus != model.BookingNoShow {
		t.Errorf("booking status = %s, want no_show", got.BookingStatus)
	}
	// 缺席不回补名额
	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 1 {
		t.Errorf("slots available = %d, want 1", session.SlotsAvailable)
	}
}

func TestBankTransferFlow(t *testing.T) {
	store, svc := newBookingFixture(t, 2)
	store.addUser(2, model.Learner, "alice@test.local")

	booking, err := svc.BookSession(context.Background(), 2, BookSessionInput{
		SessionID:     1,
		PaymentMethod: model.PaymentBankTransfer,
	})
	if err != nil {
		t.Fatalf("book with bank transfer: %v", err)
	}
	if booking.BookingStatus != model.BookingPending {
		t.Fatalf("booking status = %s, want pending before verification", booking.BookingStatus)
	}
	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 1 {
		t.Fatalf("slots available = %d, want 1 (bank transfer still holds a slot)", session.SlotsAvailable)
	}

	if err := svc.AttachPaymentProof(2, booking.ID, "/uploads/payment-proofs/p1.png"); err != nil {
		t.Fatalf("attach proof: %v", err)
	}

	confirmed, err := svc.VerifyPayment(context.Background(), booking.ID, true, "bank_ref_001")
	if err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if confirmed.BookingStatus != model.BookingConfirmed || confirmed.PaymentStatus != model.PaymentPaid {
		t.Errorf("after verify: %s/%s, want confirmed/paid", confirmed.BookingStatus, confirmed.PaymentStatus)
	}

	// 已确认的预约不能再核验
	if _, err := svc.VerifyPayment(context.Background(), booking.ID, true, ""); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("re-verify err = %v, want ErrInvalidState", err)
	}
}

func TestVerifyPaymentRejectReleasesSlot(t *testing.T) {
	store, svc := newBookingFixture(t, 1)
	store.addUser(2, model.Learner, "alice@test.local")

	booking, err := svc.BookSession(context.Background(), 2, BookSessionInput{
		SessionID:     1,
		PaymentMethod: model.PaymentBankTransfer,
	})
	if err != nil {
		t.Fatal(err)
	}

	rejected, err := svc.VerifyPayment(context.Background(), booking.ID, false, "")
	if err != nil {
		t.Fatalf("reject payment: %v", err)
	}
	if rejected.BookingStatus != model.BookingCancelled || rejected.PaymentStatus != model.PaymentFailed {
		t.Errorf("after reject: %s/%s, want cancelled/failed", rejected.BookingStatus, rejected.PaymentStatus)
	}
	session, _ := store.FindByID(1)
	if session.SlotsAvailable != 1 {
		t.Errorf("slots available = %d, want 1 after rejection", session.SlotsAvailable)
	}
}

func TestBookSessionClosedSession(t *testing.T) {
	store, svc := newBookingFixture(t, 2)
	store.addUser(2, model.Learner, "alice@test.local")
	store.UpdateStatusFrom(1, model.SessionScheduled, model.SessionCompleted)

	_, err := svc.BookSession(context.Background(), 2, BookSessionInput{SessionID: 1, CardNumber: "4242424242424242"})
	if !errors.Is(err, util.ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}
