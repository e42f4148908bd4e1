package repository

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"errors"

	"gorm.io/gorm"
)

type FeedbackRepository struct {
	DB *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{DB: db}
}

// Create 一条预约只允许一条评价，唯一索引冲突时报已存在
func (r *FeedbackRepository) Create(feedback *model.InterviewFeedback) error {
	err := r.DB.Create(feedback).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrFeedbackExists
	}
	return err
}

func (r *FeedbackRepository) FindByBookingID(bookingID uint) (*model.InterviewFeedback, error) {
	var feedback model.InterviewFeedback
	err := r.DB.Where("booking_id = ?", bookingID).First(&feedback).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

// ListForLearner 学员查看收到的评价，按时间倒序
func (r *FeedbackRepository) ListForLearner(learnerID uint, page, limit int) ([]model.InterviewFeedback, int64, error) {
	var items []model.InterviewFeedback
	var total int64

	query := r.DB.Model(&model.InterviewFeedback{}).Where("learner_id = ?", learnerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Booking").Preload("Booking.Session").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error

	return items, total, err
}
