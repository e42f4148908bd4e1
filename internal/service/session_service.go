package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/util"
	"codequest_backend/pkg/logger"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SessionStore 场次存储，容量相关的写操作必须是条件更新
type SessionStore interface {
	Create(session *model.InterviewSession) error
	FindByID(id uint) (*model.InterviewSession, error)
	FindByIDCached(ctx context.Context, id uint) (*model.InterviewSession, error)
	Invalidate(ctx context.Context, id uint)
	List(filter repository.SessionFilter, page, limit int) ([]model.InterviewSession, int64, error)
	UpdateStatusFrom(id uint, from, to model.SessionStatus) (bool, error)
	CancelWithBookings(id uint, reason string) ([]model.InterviewBooking, error)
}

// JoinLogStore 加入日志，只追加
type JoinLogStore interface {
	Append(sessionID, userID uint, role model.UserRole) error
	ListForSession(sessionID uint) ([]model.SessionJoinLog, error)
}

// SessionNotifier 场次级别的邮件通知
type SessionNotifier interface {
	SendSessionCancelled(ctx context.Context, learner *model.User, session *model.InterviewSession, reason string) error
}

// CreateSessionInput 创建场次的入参
type CreateSessionInput struct {
	Title           string
	Description     string
	Topic           string
	DifficultyLevel model.DifficultyLevel
	SessionDate     time.Time
	DurationMinutes int
	Price           float64
	MaxSlots        int
	SessionLink     string
	Requirements    string
}

type SessionService struct {
	Sessions SessionStore
	JoinLogs JoinLogStore
	Notifier SessionNotifier

	now func() time.Time
}

func NewSessionService(sessions SessionStore, joinLogs JoinLogStore, notifier SessionNotifier) *SessionService {
	return &SessionService{
		Sessions: sessions,
		JoinLogs: joinLogs,
		Notifier: notifier,
		now:      time.Now,
	}
}

// CreateSession 讲师发布场次，校验错误一次性返回所有不合法字段
func (s *SessionService) CreateSession(instructorID uint, input CreateSessionInput) (*model.InterviewSession, error) {
	var fields []string
	if input.Title == "" {
		fields = append(fields, "title is required")
	}
	if input.Topic == "" {
		fields = append(fields, "topic is required")
	}
	if !input.SessionDate.After(s.now()) {
		fields = append(fields, "session_date must be in the future")
	}
	if input.DurationMinutes < 15 || input.DurationMinutes > 240 {
		fields = append(fields, "duration_minutes must be between 15 and 240")
	}
	if input.MaxSlots < 1 || input.MaxSlots > 20 {
		fields = append(fields, "max_slots must be between 1 and 20")
	}
	if input.Price < 0 {
		fields = append(fields, "price must not be negative")
	}
	switch input.DifficultyLevel {
	case "", model.DifficultyBeginner, model.DifficultyIntermediate, model.DifficultyAdvanced:
	default:
		fields = append(fields, "difficulty_level must be beginner, intermediate or advanced")
	}
	if len(fields) > 0 {
		return nil, util.NewValidationError(fields...)
	}

	difficulty := input.DifficultyLevel
	if difficulty == "" {
		difficulty = model.DifficultyIntermediate
	}

	session := &model.InterviewSession{
		InstructorID:    instructorID,
		Title:           input.Title,
		Description:     input.Description,
		Topic:           input.Topic,
		DifficultyLevel: difficulty,
		SessionDate:     input.SessionDate,
		DurationMinutes: input.DurationMinutes,
		Price:           input.Price,
		MaxSlots:        input.MaxSlots,
		SlotsAvailable:  input.MaxSlots,
		SessionLink:     input.SessionLink,
		Requirements:    input.Requirements,
		Status:          model.SessionScheduled,
	}
	if err := s.Sessions.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, id uint) (*model.InterviewSession, error) {
	return s.Sessions.FindByIDCached(ctx, id)
}

func (s *SessionService) ListSessions(filter repository.SessionFilter, page, limit int) ([]model.InterviewSession, int64, error) {
	return s.Sessions.List(filter, page, limit)
}

// StartSession scheduled -> in_progress，只有场次讲师可以发起
func (s *SessionService) StartSession(ctx context.Context, instructorID, sessionID uint) (*model.InterviewSession, error) {
	session, err := s.Sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrAccessDenied
	}

	ok, err := s.Sessions.UpdateStatusFrom(sessionID, model.SessionScheduled, model.SessionInProgress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &util.InvalidStateError{Entity: "session", Current: string(session.Status), Op: "start"}
	}
	session.Status = model.SessionInProgress
	s.Sessions.Invalidate(ctx, sessionID)

	go s.appendJoinLog(sessionID, instructorID, model.Instructor)
	return session, nil
}

// EndSession in_progress -> completed
func (s *SessionService) EndSession(ctx context.Context, instructorID, sessionID uint) (*model.InterviewSession, error) {
	session, err := s.Sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.InstructorID != instructorID {
		return nil, util.ErrAccessDenied
	}

	ok, err := s.Sessions.UpdateStatusFrom(sessionID, model.SessionInProgress, model.SessionCompleted)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &util.InvalidStateError{Entity: "session", Current: string(session.Status), Op: "end"}
	}
	session.Status = model.SessionCompleted
	s.Sessions.Invalidate(ctx, sessionID)
	return session, nil
}

// CancelSession 取消场次并级联取消预约，受影响的学员逐个通知。
// 通知失败不回滚取消，只记日志。
func (s *SessionService) CancelSession(ctx context.Context, actorID uint, actorRole model.UserRole, sessionID uint, reason string) (*model.InterviewSession, error) {
	session, err := s.Sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if actorRole != model.Admin && session.InstructorID != actorID {
		return nil, util.ErrAccessDenied
	}

	affected, err := s.Sessions.CancelWithBookings(sessionID, reason)
	if err != nil {
		return nil, err
	}
	session.Status = model.SessionCancelled
	session.CancelReason = reason
	s.Sessions.Invalidate(ctx, sessionID)

	if s.Notifier != nil {
		go s.notifyCancelled(affected, session, reason)
	}
	return session, nil
}

func (s *SessionService) notifyCancelled(affected []model.InterviewBooking, session *model.InterviewSession, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := range affected {
		learner := affected[i].Learner
		if learner == nil {
			continue
		}
		if err := s.Notifier.SendSessionCancelled(ctx, learner, session, reason); err != nil {
			logger.Log.Warn("场次取消通知发送失败",
				zap.Uint("session_id", session.ID),
				zap.Uint("learner_id", learner.ID),
				zap.Error(err))
		}
	}
}

// ListJoinLogs 加入审计记录，只对场次讲师开放
func (s *SessionService) ListJoinLogs(actorID uint, actorRole model.UserRole, sessionID uint) ([]model.SessionJoinLog, error) {
	session, err := s.Sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	if actorRole != model.Admin && session.InstructorID != actorID {
		return nil, util.ErrAccessDenied
	}
	return s.JoinLogs.ListForSession(sessionID)
}

func (s *SessionService) appendJoinLog(sessionID, userID uint, role model.UserRole) {
	if err := s.JoinLogs.Append(sessionID, userID, role); err != nil {
		logger.Log.Warn(fmt.Sprintf("加入日志写入失败 session=%d user=%d", sessionID, userID), zap.Error(err))
	}
}
