package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"codequest_backend/pkg/logger"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AccessService 面试房间的准入裁决，所有加入判定集中在这里：
// 讲师凭场次归属进入，学员凭有效预约进入，管理员放行。
// 每次放行都异步落一条加入日志。
type AccessService struct {
	Sessions SessionStore
	Bookings BookingStore
	JoinLogs JoinLogStore

	FrontendURL string
}

func NewAccessService(sessions SessionStore, bookings BookingStore, joinLogs JoinLogStore, frontendURL string) *AccessService {
	return &AccessService{
		Sessions:    sessions,
		Bookings:    bookings,
		JoinLogs:    joinLogs,
		FrontendURL: frontendURL,
	}
}

// AuthorizeJoin 裁决 user 能否进入场次，放行时返回场次和房间链接
func (s *AccessService) AuthorizeJoin(ctx context.Context, userID uint, role model.UserRole, sessionID uint) (*model.InterviewSession, string, error) {
	session, err := s.Sessions.FindByID(sessionID)
	if err != nil {
		return nil, "", err
	}
	if session.Status.IsTerminal() {
		return nil, "", util.ErrSessionClosed
	}

	allowed, err := s.canJoin(userID, role, session)
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", util.ErrAccessDenied
	}

	go s.appendJoinLog(sessionID, userID, role)
	return session, s.joinURL(session), nil
}

// CanStart 只有场次讲师能开始面试
func (s *AccessService) CanStart(userID uint, session *model.InterviewSession) bool {
	return session.InstructorID == userID
}

func (s *AccessService) canJoin(userID uint, role model.UserRole, session *model.InterviewSession) (bool, error) {
	switch role {
	case model.Admin:
		return true, nil
	case model.Instructor:
		return session.InstructorID == userID, nil
	case model.Learner:
		booking, err := s.Bookings.FindActive(session.ID, userID)
		if err != nil {
			return false, err
		}
		return booking != nil && booking.BookingStatus.HoldsSlot(), nil
	}
	return false, nil
}

func (s *AccessService) joinURL(session *model.InterviewSession) string {
	if session.SessionLink != "" {
		return session.SessionLink
	}
	return fmt.Sprintf("%s/interview/session/%d", s.FrontendURL, session.ID)
}

func (s *AccessService) appendJoinLog(sessionID, userID uint, role model.UserRole) {
	if err := s.JoinLogs.Append(sessionID, userID, role); err != nil {
		logger.Log.Warn("加入日志写入失败",
			zap.Uint("session_id", sessionID),
			zap.Uint("user_id", userID),
			zap.Error(err))
	}
}
