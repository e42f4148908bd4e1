package model

import (
	"time"
)

// SessionJoinLog 进入面试房间的审计记录，只追加不修改，
// 不参与任何鉴权判断
type SessionJoinLog struct {
	BaseModel
	SessionID uint      `gorm:"index;not null" json:"sessionId"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	UserRole  UserRole  `gorm:"type:enum('learner','instructor','admin');not null" json:"userRole"`
	JoinedAt  time.Time `gorm:"not null" json:"joinedAt"`
}

func (SessionJoinLog) TableName() string {
	return "session_join_logs"
}
