package model

import (
	"time"
)

// SessionStatus 面试场次状态
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// IsTerminal 场次是否已进入终态（completed/cancelled 之后不再变化）
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// DifficultyLevel 面试难度
type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// InterviewSession 讲师发布的模拟面试场次，带容量限制
// 不变式：0 <= slots_available <= max_slots
// swagger:model InterviewSession
type InterviewSession struct {
	BaseModel
	InstructorID    uint            `gorm:"index;not null" json:"instructorId"`
	Title           string          `gorm:"size:255;not null" json:"title"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	Topic           string          `gorm:"size:100;index;not null" json:"topic"`
	DifficultyLevel DifficultyLevel `gorm:"type:enum('beginner','intermediate','advanced');default:'intermediate'" json:"difficultyLevel"`
	SessionDate     time.Time       `gorm:"index;not null" json:"sessionDate"`
	DurationMinutes int             `gorm:"not null" json:"durationMinutes"`
	Price           float64         `gorm:"default:0" json:"price"`
	MaxSlots        int             `gorm:"not null" json:"maxSlots"`
	SlotsAvailable  int             `gorm:"not null" json:"slotsAvailable"`
	SessionLink     string          `gorm:"size:512" json:"sessionLink,omitempty"`
	Requirements    string          `gorm:"type:text" json:"requirements,omitempty"`
	Status          SessionStatus   `gorm:"type:enum('scheduled','in_progress','completed','cancelled');default:'scheduled';index" json:"status"`
	CancelReason    string          `gorm:"size:512" json:"cancelReason,omitempty"`

	Instructor *User `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
}

func (InterviewSession) TableName() string {
	return "interview_sessions"
}
