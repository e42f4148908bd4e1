package service

import (
	"codequest_backend/internal/config"
	"codequest_backend/internal/model"
	"codequest_backend/pkg/logger"
	"codequest_backend/pkg/monitoring"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReminderBookingStore 提醒扫描需要的预约视图
type ReminderBookingStore interface {
	FindUpcomingConfirmed(from, to time.Time) ([]model.InterviewBooking, error)
}

// ReminderLogStore 提醒幂等记录。MarkSent 在记录已存在时
// 必须静默成功，重复发送由唯一键挡住。
type ReminderLogStore interface {
	Has(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) (bool, error)
	MarkSent(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// ReminderSender 提醒投递通道
type ReminderSender interface {
	SendInterviewReminder(ctx context.Context, msg ReminderMessage) error
}

// ReminderService 面试提醒调度：每轮扫描 24 小时和 1 小时两个窗口，
// 逐预约逐收件人判幂等后投递。发送成功才落幂等记录，
// 单个收件人失败不影响同预约的另一方，下一轮会重试。
type ReminderService struct {
	Bookings ReminderBookingStore
	Logs     ReminderLogStore
	Sender   ReminderSender
	Lock     TickLock
	Cfg      config.ReminderConfig

	FrontendURL string
	now         func() time.Time
}

func NewReminderService(bookings ReminderBookingStore, logs ReminderLogStore, sender ReminderSender, lock TickLock, cfg config.ReminderConfig, frontendURL string) *ReminderService {
	if lock == nil {
		lock = NoopTickLock{}
	}
	return &ReminderService{
		Bookings:    bookings,
		Logs:        logs,
		Sender:      sender,
		Lock:        lock,
		Cfg:         cfg,
		FrontendURL: frontendURL,
		now:         time.Now,
	}
}

// RunTick 一轮提醒扫描。拿不到租约说明别的实例在跑，直接返回。
func (s *ReminderService) RunTick(ctx context.Context) error {
	acquired, release, err := s.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire reminder lease: %w", err)
	}
	if !acquired {
		logger.Log.Debug("提醒租约被其他实例持有，本轮跳过")
		return nil
	}
	defer release()

	start := s.now()
	for _, window := range []model.ReminderWindow{model.Reminder24h, model.Reminder1h} {
		if err := s.processWindow(ctx, window); err != nil {
			logger.Log.Error("提醒窗口扫描失败",
				zap.String("window", string(window)),
				zap.Error(err))
		}
	}
	monitoring.ReminderTickDuration.Observe(time.Since(start).Seconds())
	return nil
}

// processWindow 扫描目标时刻前后 tolerance 内的已确认预约并分发。
// 预约之间用固定大小的 worker 池并发，互不阻塞。
func (s *ReminderService) processWindow(ctx context.Context, window model.ReminderWindow) error {
	target := s.now().Add(time.Duration(window.Hours()) * time.Hour)
	tolerance := time.Duration(s.Cfg.ToleranceMinutes) * time.Minute

	bookings, err := s.Bookings.FindUpcomingConfirmed(target.Add(-tolerance), target.Add(tolerance))
	if err != nil {
		return fmt.Errorf("find upcoming bookings: %w", err)
	}
	if len(bookings) == 0 {
		return nil
	}

	workers := s.Cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range bookings {
		booking := &bookings[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.processBooking(ctx, window, booking)
		}()
	}
	wg.Wait()
	return nil
}

// processBooking 对一条预约的两个收件人分别判幂等并投递
func (s *ReminderService) processBooking(ctx context.Context, window model.ReminderWindow, booking *model.InterviewBooking) {
	if booking.Session == nil || booking.Learner == nil || booking.Session.Instructor == nil {
		logger.Log.Warn("提醒跳过关联数据不完整的预约", zap.Uint("booking_id", booking.ID))
		return
	}

	for _, recipient := range []model.ReminderRecipient{model.RecipientLearner, model.RecipientInstructor} {
		s.dispatch(ctx, window, recipient, booking)
	}
}

func (s *ReminderService) dispatch(ctx context.Context, window model.ReminderWindow, recipient model.ReminderRecipient, booking *model.InterviewBooking) {
	sent, err := s.Logs.Has(booking.ID, window, recipient)
	if err != nil {
		logger.Log.Error("提醒幂等查询失败", zap.Uint("booking_id", booking.ID), zap.Error(err))
		monitoring.ReminderDispatches.WithLabelValues(string(window), string(recipient), "failed").Inc()
		return
	}
	if sent {
		monitoring.ReminderDispatches.WithLabelValues(string(window), string(recipient), "skipped").Inc()
		return
	}

	if err := s.Sender.SendInterviewReminder(ctx, s.buildMessage(window, recipient, booking)); err != nil {
		logger.Log.Warn("提醒发送失败，下一轮重试",
			zap.Uint("booking_id", booking.ID),
			zap.String("window", string(window)),
			zap.String("recipient", string(recipient)),
			zap.Error(err))
		monitoring.ReminderDispatches.WithLabelValues(string(window), string(recipient), "failed").Inc()
		return
	}

	if err := s.Logs.MarkSent(booking.ID, window, recipient); err != nil {
		// 记录失败意味着下一轮可能重复发送，提醒重复可接受，丢失不可接受
		logger.Log.Error("提醒幂等记录写入失败",
			zap.Uint("booking_id", booking.ID),
			zap.Error(err))
	}
	monitoring.ReminderDispatches.WithLabelValues(string(window), string(recipient), "sent").Inc()
}

func (s *ReminderService) buildMessage(window model.ReminderWindow, recipient model.ReminderRecipient, booking *model.InterviewBooking) ReminderMessage {
	session := booking.Session
	timeUntil := "24 小时"
	if window == model.Reminder1h {
		timeUntil = "1 小时"
	}

	joinLink := session.SessionLink
	if joinLink == "" {
		joinLink = fmt.Sprintf("%s/interview/session/%d", s.FrontendURL, session.ID)
	}

	msg := ReminderMessage{
		RecipientRole:   recipient,
		SessionTitle:    session.Title,
		Topic:           session.Topic,
		SessionDate:     session.SessionDate,
		DurationMinutes: session.DurationMinutes,
		JoinLink:        joinLink,
		TimeUntil:       timeUntil,
	}
	if recipient == model.RecipientInstructor {
		msg.To = session.Instructor.Email
		msg.RecipientName = session.Instructor.DisplayName
		msg.CounterpartName = booking.Learner.DisplayName
	} else {
		msg.To = booking.Learner.Email
		msg.RecipientName = booking.Learner.DisplayName
		msg.CounterpartName = session.Instructor.DisplayName
	}
	return msg
}

// Cleanup 清理超过保留期的幂等记录。场次已过期的记录不会再被扫描，
// 留着只占空间。
func (s *ReminderService) Cleanup(ctx context.Context) error {
	cutoff := s.now().AddDate(0, 0, -s.Cfg.RetentionDays)
	deleted, err := s.Logs.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("cleanup reminder logs: %w", err)
	}
	if deleted > 0 {
		logger.Log.Info("提醒幂等记录清理完成", zap.Int64("deleted", deleted))
	}
	return nil
}
