package repository

import (
	"codequest_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type JoinLogRepository struct {
	DB *gorm.DB
}

func NewJoinLogRepository(db *gorm.DB) *JoinLogRepository {
	return &JoinLogRepository{DB: db}
}

// Append 追加一条进房审计记录
func (r *JoinLogRepository) Append(sessionID, userID uint, role model.UserRole) error {
	return r.DB.Create(&model.SessionJoinLog{
		SessionID: sessionID,
		UserID:    userID,
		UserRole:  role,
		JoinedAt:  time.Now(),
	}).Error
}

func (r *JoinLogRepository) ListForSession(sessionID uint) ([]model.SessionJoinLog, error) {
	var logs []model.SessionJoinLog
	err := r.DB.Where("session_id = ?", sessionID).Order("joined_at ASC").Find(&logs).Error
	return logs, err
}
