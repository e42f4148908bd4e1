package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newSessionFixture(t *testing.T) (*memStore, *SessionService) {
	t.Helper()
	store := newMemStore()
	store.addUser(1, model.Instructor, "instructor@test.local")
	svc := NewSessionService(store, &memJoinLog{}, nil)
	return store, svc
}

func validSessionInput() CreateSessionInput {
	return CreateSessionInput{
		Title:           "Go 并发专题面试",
		Topic:           "golang",
		DifficultyLevel: model.DifficultyAdvanced,
		SessionDate:     time.Now().Add(72 * time.Hour),
		DurationMinutes: 90,
		Price:           120,
		MaxSlots:        5,
	}
}

func TestCreateSessionInitializesCapacity(t *testing.T) {
	_, svc := newSessionFixture(t)

	session, err := svc.CreateSession(1, validSessionInput())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.SlotsAvailable != session.MaxSlots {
		t.Errorf("slots_available = %d, want %d", session.SlotsAvailable, session.MaxSlots)
	}
	if session.Status != model.SessionScheduled {
		t.Errorf("status = %s, want scheduled", session.Status)
	}
}

func TestCreateSessionCollectsAllValidationErrors(t *testing.T) {
	_, svc := newSessionFixture(t)

	_, err := svc.CreateSession(1, CreateSessionInput{
		Title:           "",
		Topic:           "",
		DifficultyLevel: "impossible",
		SessionDate:     time.Now().Add(-time.Hour),
		DurationMinutes: 10,
		Price:           -5,
		MaxSlots:        50,
	})
	var verr *util.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Fields) != 7 {
		t.Errorf("fields = %d, want 7: %v", len(verr.Fields), verr.Fields)
	}
	for _, want := range []string{"title", "topic", "session_date", "duration_minutes", "max_slots", "price", "difficulty_level"} {
		found := false
		for _, f := range verr.Fields {
			if strings.HasPrefix(f, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing validation for %s", want)
		}
	}
}

func TestCreateSessionBoundaryValues(t *testing.T) {
	_, svc := newSessionFixture(t)

	input := validSessionInput()
	input.DurationMinutes = 15
	input.MaxSlots = 1
	if _, err := svc.CreateSession(1, input); err != nil {
		t.Errorf("lower bounds rejected: %v", err)
	}

	input = validSessionInput()
	input.DurationMinutes = 240
	input.MaxSlots = 20
	input.Price = 0
	if _, err := svc.CreateSession(1, input); err != nil {
		t.Errorf("upper bounds rejected: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, svc := newSessionFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(1, validSessionInput())
	if err != nil {
		t.Fatal(err)
	}

	// 非讲师不能开始
	if _, err := svc.StartSession(ctx, 99, session.ID); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign start err = %v, want ErrAccessDenied", err)
	}
	// 未开始不能结束
	if _, err := svc.EndSession(ctx, 1, session.ID); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("premature end err = %v, want ErrInvalidState", err)
	}

	started, err := svc.StartSession(ctx, 1, session.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != model.SessionInProgress {
		t.Errorf("status = %s, want in_progress", started.Status)
	}
	// 重复开始被拒
	if _, err := svc.StartSession(ctx, 1, session.ID); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("double start err = %v, want ErrInvalidState", err)
	}

	ended, err := svc.EndSession(ctx, 1, session.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != model.SessionCompleted {
		t.Errorf("status = %s, want completed", ended.Status)
	}

	// 终态不可再操作
	if _, err := svc.StartSession(ctx, 1, session.ID); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("start after completed err = %v, want ErrInvalidState", err)
	}
	if _, err := svc.CancelSession(ctx, 1, model.Instructor, session.ID, "too late"); !errors.Is(err, util.ErrInvalidState) {
		t.Errorf("cancel after completed err = %v, want ErrInvalidState", err)
	}
}

func TestCancelSessionCascadesToBookings(t *testing.T) {
	store, svc := newSessionFixture(t)
	ctx := context.Background()
	store.addUser(2, model.Learner, "alice@test.local")
	store.addUser(3, model.Learner, "bob@test.local")

	session, err := svc.CreateSession(1, validSessionInput())
	if err != nil {
		t.Fatal(err)
	}

	bookingSvc := NewBookingService(bookingStoreAdapter{store}, store, &stubPayment{}, nil, nil)
	paid, err := bookingSvc.BookSession(ctx, 2, BookSessionInput{SessionID: session.ID, CardNumber: "4242424242424242"})
	if err != nil {
		t.Fatal(err)
	}
	unpaid, err := bookingSvc.BookSession(ctx, 3, BookSessionInput{SessionID: session.ID, PaymentMethod: model.PaymentBankTransfer})
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := svc.CancelSession(ctx, 1, model.Instructor, session.ID, "讲师生病")
	if err != nil {
		t.Fatalf("cancel session: %v", err)
	}
	if cancelled.Status != model.SessionCancelled {
		t.Errorf("session status = %s, want cancelled", cancelled.Status)
	}

	adapter := bookingStoreAdapter{store}
	gotPaid, _ := adapter.FindByID(paid.ID)
	if gotPaid.BookingStatus != model.BookingCancelled {
		t.Errorf("paid booking status = %s, want cancelled", gotPaid.BookingStatus)
	}
	if gotPaid.PaymentStatus != model.PaymentRefunded {
		t.Errorf("paid booking payment = %s, want refunded", gotPaid.PaymentStatus)
	}
	gotUnpaid, _ := adapter.FindByID(unpaid.ID)
	if gotUnpaid.BookingStatus != model.BookingCancelled {
		t.Errorf("unpaid booking status = %s, want cancelled", gotUnpaid.BookingStatus)
	}
	if gotUnpaid.PaymentStatus != model.PaymentPending {
		t.Errorf("unpaid booking payment = %s, want pending (nothing to refund)", gotUnpaid.PaymentStatus)
	}
}

func TestCancelSessionAdminOverride(t *testing.T) {
	_, svc := newSessionFixture(t)
	ctx := context.Background()

	session, err := svc.CreateSession(1, validSessionInput())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.CancelSession(ctx, 42, model.Learner, session.ID, "nope"); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("learner cancel err = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.CancelSession(ctx, 42, model.Admin, session.ID, "违规场次"); err != nil {
		t.Errorf("admin cancel err = %v", err)
	}
}

func TestListJoinLogsInstructorOnly(t *testing.T) {
	store := newMemStore()
	store.addUser(1, model.Instructor, "instructor@test.local")
	joinLog := &memJoinLog{}
	svc := NewSessionService(store, joinLog, nil)

	session, err := svc.CreateSession(1, validSessionInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := joinLog.Append(session.ID, 1, model.Instructor); err != nil {
		t.Fatal(err)
	}
	if err := joinLog.Append(session.ID, 7, model.Learner); err != nil {
		t.Fatal(err)
	}

	logs, err := svc.ListJoinLogs(1, model.Instructor, session.ID)
	if err != nil {
		t.Fatalf("owner list err = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("len(logs) = %d, want 2", len(logs))
	}

	if _, err := svc.ListJoinLogs(99, model.Instructor, session.ID); !errors.Is(err, util.ErrAccessDenied) {
		t.Errorf("foreign instructor err = %v, want ErrAccessDenied", err)
	}
	if _, err := svc.ListJoinLogs(42, model.Admin, session.ID); err != nil {
		t.Errorf("admin list err = %v", err)
	}
}
