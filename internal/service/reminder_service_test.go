package service

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"context"
	"testing"
	"time"
)

func reminderConfig() config.ReminderConfig {
	return config.ReminderConfig{
		ToleranceMinutes: 30,
		RetentionDays:    7,
		Workers:          4,
	}
}

// 在 base 时刻有一条 confirmed 预约，场次开始时间为 base+offset
func newReminderFixture(t *testing.T, base time.Time, offset time.Duration) (*memStore, *memReminderLog, *recordingSender, *ReminderService) {
	t.Helper()
	store := newMemStore()
	store.addUser(1, model.Instructor, "instructor@test.local")
	store.addUser(2, model.Learner, "alice@test.local")

	session := &model.InterviewSession{
		InstructorID:   1,
		Title:          "模拟技术终面",
		Topic:          "golang",
		SessionDate:    base.Add(offset),
		MaxSlots:       2,
		SlotsAvailable: 2,
		Status:         model.SessionScheduled,
	}
	if err := store.Create(session); err != nil {
		t.Fatal(err)
	}

	bookingSvc := NewBookingService(bookingStoreAdapter{store}, store, &stubPayment{}, nil, nil)
	if _, err := bookingSvc.BookSession(context.Background(), 2, BookSessionInput{SessionID: session.ID, CardNumber: "4242424242424242"}); err != nil {
		t.Fatal(err)
	}

	logs := newMemReminderLog()
	sender := newRecordingSender()
	svc := NewReminderService(store, logs, sender, nil, reminderConfig(), "https://app.codequest.dev")
	svc.now = func() time.Time { return base }
	return store, logs, sender, svc
}

func TestReminderTickSendsOncePerRecipient(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, _, sender, svc := newReminderFixture(t, base, 24*time.Hour)

	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if sender.count() != 2 {
		t.Fatalf("sent = %d, want 2 (learner + instructor)", sender.count())
	}

	// 第二轮扫描同一窗口不再发送
	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if sender.count() != 2 {
		t.Errorf("sent after second tick = %d, want 2", sender.count())
	}

	for _, rec := range sender.sent {
		if rec.Window != model.Reminder24h {
			t.Errorf("window = %s, want 24h", rec.Window)
		}
	}
}

func TestReminderIdempotencySurvivesRestart(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store, logs, sender, svc := newReminderFixture(t, base, 1*time.Hour)

	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 2 {
		t.Fatalf("sent = %d, want 2", sender.count())
	}

	// 模拟进程重启：新的服务实例，同一份幂等存储
	restarted := NewReminderService(store, logs, sender, nil, reminderConfig(), "https://app.codequest.dev")
	restarted.now = func() time.Time { return base }
	if err := restarted.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 2 {
		t.Errorf("sent after restart = %d, want 2", sender.count())
	}
}

func TestReminderPartialFailureRetriesOnlyFailedRecipient(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, _, sender, svc := newReminderFixture(t, base, 24*time.Hour)

	sender.failFor[model.RecipientInstructor] = true
	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 1 {
		t.Fatalf("sent = %d, want 1 (only learner succeeded)", sender.count())
	}
	if sender.sent[0].Recipient != model.RecipientLearner {
		t.Errorf("recipient = %s, want learner", sender.sent[0].Recipient)
	}

	// 恢复后下一轮只补发失败的一方
	sender.failFor[model.RecipientInstructor] = false
	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 2 {
		t.Fatalf("sent = %d, want 2 after retry", sender.count())
	}
	if sender.sent[1].Recipient != model.RecipientInstructor {
		t.Errorf("retried recipient = %s, want instructor", sender.sent[1].Recipient)
	}
}

func TestReminderWindowSelection(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// 场次在 12 小时后，两个窗口都不命中
	_, _, sender, svc := newReminderFixture(t, base, 12*time.Hour)
	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 0 {
		t.Errorf("sent = %d, want 0 outside both windows", sender.count())
	}

	// 场次在 1 小时 20 分钟后，落在 1h 窗口的容差内
	_, _, sender, svc = newReminderFixture(t, base, 80*time.Minute)
	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 2 {
		t.Fatalf("sent = %d, want 2 within 1h tolerance", sender.count())
	}
	for _, rec := range sender.sent {
		if rec.Window != model.Reminder1h {
			t.Errorf("window = %s, want 1h", rec.Window)
		}
	}
}

func TestReminderSkipsNonConfirmedBookings(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store, _, sender, svc := newReminderFixture(t, base, 24*time.Hour)

	// 同场次再挂一条 pending 的银行转账预约
	store.addUser(3, model.Learner, "bob@test.local")
	bookingSvc := NewBookingService(bookingStoreAdapter{store}, store, &stubPayment{}, nil, nil)
	if _, err := bookingSvc.BookSession(context.Background(), 3, BookSessionInput{SessionID: 1, PaymentMethod: model.PaymentBankTransfer}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 2 {
		t.Errorf("sent = %d, want 2 (pending booking gets no reminder)", sender.count())
	}
}

func TestReminderCleanup(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, logs, _, svc := newReminderFixture(t, base, 24*time.Hour)

	logs.entries[reminderKey{1, model.Reminder24h, model.RecipientLearner}] = base.AddDate(0, 0, -10)
	logs.entries[reminderKey{2, model.Reminder24h, model.RecipientLearner}] = base.AddDate(0, 0, -2)

	if err := svc.Cleanup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := logs.entries[reminderKey{1, model.Reminder24h, model.RecipientLearner}]; ok {
		t.Error("expired entry not cleaned up")
	}
	if _, ok := logs.entries[reminderKey{2, model.Reminder24h, model.RecipientLearner}]; !ok {
		t.Error("recent entry removed by cleanup")
	}
}
