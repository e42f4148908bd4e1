package repository

import (
	"codequest_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
)

type ReminderRepository struct {
	DB *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{DB: db}
}

// Has (booking, window, recipient) 是否已有幂等记录
func (r *ReminderRepository) Has(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ReminderLog{}).
		Where("booking_id = ? AND window = ? AND recipient_role = ?", bookingID, window, recipient).
		Count(&count).Error
	return count > 0, err
}

// MarkSent 落一条幂等记录。并发写同一键时唯一索引兜底，
// 冲突视作已记录，不算错误。
func (r *ReminderRepository) MarkSent(bookingID uint, window model.ReminderWindow, recipient model.ReminderRecipient) error {
	err := r.DB.Create(&model.ReminderLog{
		BookingID:     bookingID,
		Window:        window,
		RecipientRole: recipient,
		SentAt:        time.Now(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

// DeleteOlderThan 清理过期幂等记录，控制表体积。
// 只删 sent_at 早于 cutoff 的行，对应窗口必然早已过去。
func (r *ReminderRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.DB.Unscoped().
		Where("sent_at < ?", cutoff).
		Delete(&model.ReminderLog{})
	return res.RowsAffected, res.Error
}
