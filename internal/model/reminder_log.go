package model

import (
	"time"
)

// ReminderWindow 提醒时间窗
type ReminderWindow string

const (
	Reminder24h ReminderWindow = "24h"
	Reminder1h  ReminderWindow = "1h"
)

// Hours 窗口对应的提前量
func (w ReminderWindow) Hours() int {
	if w == Reminder1h {
		return 1
	}
	return 24
}

// ReminderRecipient 提醒接收方角色
type ReminderRecipient string

const (
	RecipientLearner    ReminderRecipient = "learner"
	RecipientInstructor ReminderRecipient = "instructor"
)

// ReminderLog 提醒幂等记录：(booking, window, recipient) 一旦写入即视为
// 已发送，进程重启后依然生效。唯一索引保证并发写入时只有一条落库。
type ReminderLog struct {
	BaseModel
	BookingID     uint              `gorm:"uniqueIndex:uniq_booking_window_recipient;not null" json:"bookingId"`
	Window        ReminderWindow    `gorm:"uniqueIndex:uniq_booking_window_recipient;type:enum('24h','1h');not null" json:"window"`
	RecipientRole ReminderRecipient `gorm:"uniqueIndex:uniq_booking_window_recipient;type:enum('learner','instructor');not null" json:"recipientRole"`
	SentAt        time.Time         `gorm:"index;not null" json:"sentAt"`
}

func (ReminderLog) TableName() string {
	return "reminder_logs"
}
