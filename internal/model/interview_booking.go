package model

import (
	"time"
)

// BookingStatus 预约状态机：
// pending -> confirmed（支付成功）
// pending/confirmed -> cancelled（学员取消、场次取消或支付失败）
// confirmed -> completed（场次结束后核销）
// confirmed -> no_show（讲师上报缺席）
// cancelled/completed/no_show 为终态
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// HoldsSlot 该状态是否仍占用场次容量
func (s BookingStatus) HoldsSlot() bool {
	return s == BookingPending || s == BookingConfirmed
}

// PaymentStatus 支付状态
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentMethod 支付方式
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// InterviewBooking 学员对面试场次的预约
// 唯一约束 (session_id, learner_id)：同一学员对同一场次最多一条有效预约，
// 已取消的记录在重新预约时被清除
// swagger:model InterviewBooking
type InterviewBooking struct {
	BaseModel
	SessionID      uint          `gorm:"uniqueIndex:uniq_session_learner;not null" json:"sessionId"`
	LearnerID      uint          `gorm:"uniqueIndex:uniq_session_learner;index;not null" json:"learnerId"`
	BookingStatus  BookingStatus `gorm:"type:enum('pending','confirmed','cancelled','completed','no_show');default:'pending';index" json:"bookingStatus"`
	PaymentStatus  PaymentStatus `gorm:"type:enum('pending','paid','refunded','failed');default:'pending'" json:"paymentStatus"`
	PaymentAmount  float64       `gorm:"default:0" json:"paymentAmount"`
	PaymentMethod  PaymentMethod `gorm:"type:enum('credit_card','bank_transfer');default:'credit_card'" json:"paymentMethod"`
	PaymentRef     string        `gorm:"size:100" json:"paymentRef,omitempty"`
	PaymentProof   string        `gorm:"size:512" json:"paymentProofUrl,omitempty"`
	BookedAt       time.Time     `gorm:"default:CURRENT_TIMESTAMP(3)" json:"bookedAt"`
	ConfirmedAt    *time.Time    `json:"confirmedAt,omitempty"`
	CancelledAt    *time.Time    `json:"cancelledAt,omitempty"`
	Notes          string        `gorm:"type:text" json:"notes,omitempty"`
	NoShowReported bool          `gorm:"default:false" json:"noShowReported"`

	Session *InterviewSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
	Learner *User             `gorm:"foreignKey:LearnerID" json:"learner,omitempty"`
}

func (InterviewBooking) TableName() string {
	return "interview_bookings"
}
