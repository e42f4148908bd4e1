package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/util"
	"context"
	"errors"
	"sync"
	"time"
)

// memStore 内存版的场次与预约存储，实现 SessionStore 和 BookingStore。
// 所有方法持同一把锁，模拟数据库事务的原子语义。
type memStore struct {
	mu       sync.Mutex
	sessions map[uint]*model.InterviewSession
	bookings map[uint]*model.InterviewBooking
	users    map[uint]*model.User
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uint]*model.InterviewSession),
		bookings: make(map[uint]*model.InterviewBooking),
		users:    make(map[uint]*model.User),
	}
}

func (m *memStore) addUser(id uint, role model.UserRole, email string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{Role: role, Email: email, DisplayName: email}
	u.ID = id
	m.users[id] = u
	return u
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func copySession(s *model.InterviewSession) *model.InterviewSession {
	c := *s
	return &c
}

func copyBooking(b *model.InterviewBooking) *model.InterviewBooking {
	c := *b
	return &c
}

// SessionStore

func (m *memStore) Create(session *model.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = m.id()
	m.sessions[session.ID] = copySession(session)
	return nil
}

func (m *memStore) FindByID(id uint) (*model.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	out := copySession(s)
	out.Instructor = m.users[s.InstructorID]
	return out, nil
}

func (m *memStore) FindByIDCached(ctx context.Context, id uint) (*model.InterviewSession, error) {
	return m.FindByID(id)
}

func (m *memStore) Invalidate(ctx context.Context, id uint) {}

func (m *memStore) List(filter repository.SessionFilter, page, limit int) ([]model.InterviewSession, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InterviewSession
	for _, s := range m.sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, *copySession(s))
	}
	return out, int64(len(out)), nil
}

func (m *memStore) UpdateStatusFrom(id uint, from, to model.SessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (m *memStore) CancelWithBookings(id uint, reason string) ([]model.InterviewBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	if s.Status != model.SessionScheduled && s.Status != model.SessionInProgress {
		return nil, &util.InvalidStateError{Entity: "session", Current: string(s.Status), Op: "cancel"}
	}
	s.Status = model.SessionCancelled
	s.CancelReason = reason

	var affected []model.InterviewBooking
	now := time.Now()
	for _, b := range m.bookings {
		if b.SessionID != id || !b.BookingStatus.HoldsSlot() {
			continue
		}
		b.BookingStatus = model.BookingCancelled
		b.CancelledAt = &now
		if b.PaymentStatus == model.PaymentPaid {
			b.PaymentStatus = model.PaymentRefunded
		}
		out := copyBooking(b)
		out.Learner = m.users[b.LearnerID]
		affected = append(affected, *out)
	}
	return affected, nil
}

// BookingStore

func (m *memStore) findBooking(id uint) (*model.InterviewBooking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, util.ErrBookingNotFound
	}
	out := copyBooking(b)
	if s, ok := m.sessions[b.SessionID]; ok {
		out.Session = copySession(s)
		out.Session.Instructor = m.users[s.InstructorID]
	}
	out.Learner = m.users[b.LearnerID]
	return out, nil
}

func (m *memStore) FindByIDBooking(id uint) (*model.InterviewBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findBooking(id)
}

func (m *memStore) FindActive(sessionID, learnerID uint) (*model.InterviewBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.SessionID == sessionID && b.LearnerID == learnerID && b.BookingStatus != model.BookingCancelled {
			return copyBooking(b), nil
		}
	}
	return nil, nil
}

func (m *memStore) ReserveAndCreate(booking *model.InterviewBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[booking.SessionID]
	if !ok {
		return util.ErrSessionNotFound
	}
	if s.Status.IsTerminal() {
		return util.ErrSessionClosed
	}
	for id, b := range m.bookings {
		if b.SessionID != booking.SessionID || b.LearnerID != booking.LearnerID {
			continue
		}
		if b.BookingStatus != model.BookingCancelled {
			return util.ErrAlreadyBooked
		}
		delete(m.bookings, id)
	}
	if s.SlotsAvailable <= 0 {
		return util.ErrNoSlotsAvailable
	}
	s.SlotsAvailable--

	booking.ID = m.id()
	booking.PaymentAmount = s.Price
	booking.BookedAt = time.Now()
	m.bookings[booking.ID] = copyBooking(booking)
	return nil
}

func (m *memStore) Confirm(id uint, paymentRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.BookingStatus != model.BookingPending {
		return false, nil
	}
	now := time.Now()
	b.BookingStatus = model.BookingConfirmed
	b.PaymentStatus = model.PaymentPaid
	b.PaymentRef = paymentRef
	b.ConfirmedAt = &now
	return true, nil
}

func (m *memStore) CancelWithRelease(id uint, markPayment model.PaymentStatus) (*model.InterviewBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, util.ErrBookingNotFound
	}
	if !b.BookingStatus.HoldsSlot() {
		return nil, &util.InvalidStateError{Entity: "booking", Current: string(b.BookingStatus), Op: "cancel"}
	}

	payment := markPayment
	if payment == "" {
		payment = b.PaymentStatus
		if b.PaymentStatus == model.PaymentPaid {
			payment = model.PaymentRefunded
		}
	}
	now := time.Now()
	b.BookingStatus = model.BookingCancelled
	b.PaymentStatus = payment
	b.CancelledAt = &now

	if s, ok := m.sessions[b.SessionID]; ok && s.Status != model.SessionCancelled && s.SlotsAvailable < s.MaxSlots {
		s.SlotsAvailable++
	}
	return copyBooking(b), nil
}

func (m *memStore) MarkNoShow(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return util.ErrBookingNotFound
	}
	if b.BookingStatus == model.BookingNoShow {
		return nil
	}
	if b.BookingStatus != model.BookingConfirmed {
		return &util.InvalidStateError{Entity: "booking", Current: string(b.BookingStatus), Op: "mark no-show"}
	}
	b.BookingStatus = model.BookingNoShow
	b.NoShowReported = true
	return nil
}

func (m *memStore) Complete(id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return util.ErrBookingNotFound
	}
	if b.BookingStatus != model.BookingConfirmed {
		return &util.InvalidStateError{Entity: "booking", Current: string(b.BookingStatus), Op: "complete"}
	}
	b.BookingStatus = model.BookingCompleted
	return nil
}

func (m *memStore) UpdatePaymentProof(id uint, proofURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return util.ErrBookingNotFound
	}
	b.PaymentProof = proofURL
	return nil
}

func (m *memStore) ListForLearner(learnerID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InterviewBooking
	for id, b := range m.bookings {
		if b.LearnerID != learnerID {
			continue
		}
		if status != "" && b.BookingStatus != status {
			continue
		}
		full, _ := m.findBooking(id)
		out = append(out, *full)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) ListForInstructor(instructorID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InterviewBooking
	for id, b := range m.bookings {
		s, ok := m.sessions[b.SessionID]
		if !ok || s.InstructorID != instructorID {
			continue
		}
		if status != "" && b.BookingStatus != status {
			continue
		}
		full, _ := m.findBooking(id)
		out = append(out, *full)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) FindUpcomingConfirmed(from, to time.Time) ([]model.InterviewBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.InterviewBooking
	for id, b := range m.bookings {
		if b.BookingStatus != model.BookingConfirmed {
			continue
		}
		s, ok := m.sessions[b.SessionID]
		if !ok || s.SessionDate.Before(from) || s.SessionDate.After(to) {
			continue
		}
		full, _ := m.findBooking(id)
		out = append(out, *full)
	}
	return out, nil
}

// bookingStoreAdapter 解决 memStore 上 FindByID 同名冲突：
// SessionStore 的 FindByID 查场次，BookingStore 视角经此转接查预约
type bookingStoreAdapter struct {
	*memStore
}

func (a bookingStoreAdapter) FindByID(id uint) (*model.InterviewBooking, error) {
	return a.FindByIDBooking(id)
}

// memJoinLog 内存加入日志
type memJoinLog struct {
	mu      sync.Mutex
	entries []model.SessionJoinLog
}

func (l *memJoinLog) Append(sessionID, userID uint, role model.UserRole) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, model.SessionJoinLog{
		SessionID: sessionID,
		UserID:    userID,
		UserRole:  role,
		JoinedAt:  time.Now(),
	})
	return nil
}

func (l *memJoinLog) ListForSession(sessionID uint) ([]model.SessionJoinLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.SessionJoinLog
	for _, e := range l.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// memFeedbackStore 内存评价存储，按 booking_id 去重
type memFeedbackStore struct {
	mu      sync.Mutex
	entries map[uint]*model.InterviewFeedback
	nextID  uint
}

func newMemFeedbackStore() *memFeedbackStore {
	return &memFeedbackStore{entries: make(map[uint]*model.InterviewFeedback)}
}

func (f *memFeedbackStore) Create(feedback *model.InterviewFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.entries[feedback.BookingID]; exists {
		return util.ErrFeedbackExists
	}
	f.nextID++
	feedback.ID = f.nextID
	f.entries[feedback.BookingID] = feedback
	return nil
}

func (f *memFeedbackStore) FindByBookingID(bookingID uint) (*model.InterviewFeedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[bookingID], nil
}

func (f *memFeedbackStore) ListForLearner(learnerID uint, page, limit int) ([]model.InterviewFeedback, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.InterviewFeedback
	for _, fb := range f.entries {
		if fb.LearnerID == learnerID {
			out = append(out, *fb)
		}
	}
	return out, int64(len(out)), nil
}

// memReminderLog 内存幂等记录
type reminderKey struct {
	bookingID uint
	window    model.ReminderWindow
	recipient model.ReminderRecipient
}

type memReminderLog struct {
	mu      sync.Mutex
	entries map[reminderKey]time.Time
}

func newMemReminderLog() *memReminderLog {
	return &memReminderLog{entries: make(map[reminderKey]time.Time)}
}

func (l *memReminderLog) Has(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[reminderKey{bookingID, window, recipient}]
	return ok, nil
}

func (l *memReminderLog) MarkSent(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := reminderKey{bookingID, window, recipient}
	if _, ok := l.entries[key]; !ok {
		l.entries[key] = time.Now()
	}
	return nil
}

func (l *memReminderLog) DeleteOlderThan(cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var deleted int64
	for k, sentAt := range l.entries {
		if sentAt.Before(cutoff) {
			delete(l.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// recordingSender 记录每次提醒发送，可按收件人注入失败
type sendRecord struct {
	To        string
	Window    model.ReminderWindow
	Recipient model.ReminderRecipient
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []sendRecord
	failFor map[model.ReminderRecipient]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{failFor: make(map[model.ReminderRecipient]bool)}
}

func (r *recordingSender) SendInterviewReminder(ctx context.Context, msg ReminderMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[msg.RecipientRole] {
		return errors.New("mail gateway unavailable")
	}
	window := model.Reminder24h
	if msg.TimeUntil == "1 小时" {
		window = model.Reminder1h
	}
	r.sent = append(r.sent, sendRecord{To: msg.To, Window: window, Recipient: msg.RecipientRole})
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// stubPayment 可编程的支付结果
type stubPayment struct {
	mu      sync.Mutex
	fail    bool
	charges int
}

func (p *stubPayment) Charge(ctx context.Context, amount float64, payerID uint, cardNumber string) (*ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges++
	if p.fail {
		return nil, errors.New("card declined")
	}
	return &ChargeResult{Reference: "pay_test"}, nil
}

// nopNotifier 吞掉所有通知
type nopNotifier struct{}

func (nopNotifier) SendBookingConfirmed(ctx context.Context, b *model.InterviewBooking, s *model.InterviewSession) error {
	return nil
}

func (nopNotifier) SendSessionCancelled(ctx context.Context, learner *model.User, session *model.InterviewSession, reason string) error {
	return nil
}
