package repository

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BookingRepository struct {
	DB *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{DB: db}
}

func (r *BookingRepository) FindByID(id uint) (*model.InterviewBooking, error) {
	var booking model.InterviewBooking
	err := r.DB.Preload("Session").Preload("Learner").First(&booking, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrBookingNotFound
	}
	return &booking, err
}

// FindActive 查找学员对该场次的未取消预约
func (r *BookingRepository) FindActive(sessionID, learnerID uint) (*model.InterviewBooking, error) {
	var booking model.InterviewBooking
	err := r.DB.Where("session_id = ? AND learner_id = ? AND booking_status <> ?",
		sessionID, learnerID, model.BookingCancelled).
		First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ReserveAndCreate 占用一个名额并落一条 pending 预约，整体在一个事务内：
//  1. 锁定校验场次仍可预约
//  2. 同一学员的未取消预约 -> ErrAlreadyBooked
//  3. 清掉该学员历史 cancelled 记录，给唯一索引腾位
//  4. 条件扣减 slots_available（slots_available > 0 时才生效），
//     扣不动即 ErrNoSlotsAvailable，这是防超卖的唯一扣减路径
//  5. 写入预约；唯一索引冲突（并发同学员重复提交）同样报 ErrAlreadyBooked
func (r *BookingRepository) ReserveAndCreate(booking *model.InterviewBooking) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var session model.InterviewSession
		if err := tx.First(&session, booking.SessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrSessionNotFound
			}
			return err
		}
		if session.Status.IsTerminal() {
			return util.ErrSessionClosed
		}

		var active int64
		if err := tx.Model(&model.InterviewBooking{}).
			Where("session_id = ? AND learner_id = ? AND booking_status <> ?",
				booking.SessionID, booking.LearnerID, model.BookingCancelled).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return util.ErrAlreadyBooked
		}

		if err := tx.Unscoped().
			Where("session_id = ? AND learner_id = ? AND booking_status = ?",
				booking.SessionID, booking.LearnerID, model.BookingCancelled).
			Delete(&model.InterviewBooking{}).Error; err != nil {
			return err
		}

		res := tx.Model(&model.InterviewSession{}).
			Where("id = ? AND slots_available > 0", booking.SessionID).
			UpdateColumn("slots_available", gorm.Expr("slots_available - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrNoSlotsAvailable
		}

		booking.PaymentAmount = session.Price
		booking.BookedAt = time.Now()
		if err := tx.Create(booking).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return util.ErrAlreadyBooked
			}
			return err
		}
		return nil
	})
}

// Confirm pending -> confirmed，支付转 paid 并记录确认时间；
// 状态不是 pending 时返回 false
func (r *BookingRepository) Confirm(id uint, paymentRef string) (bool, error) {
	res := r.DB.Model(&model.InterviewBooking{}).
		Where("id = ? AND booking_status = ?", id, model.BookingPending).
		Updates(map[string]interface{}{
			"booking_status": model.BookingConfirmed,
			"payment_status": model.PaymentPaid,
			"payment_ref":    paymentRef,
			"confirmed_at":   time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

// CancelWithRelease 取消预约并补偿名额，一个事务内完成：
// 仅 pending/confirmed 可取消；场次未被取消时回补一个名额，
// 回补有上界保护（slots_available < max_slots 时才生效）。
// markPayment 为空时自动推导：已支付转 refunded，其余不动。
func (r *BookingRepository) CancelWithRelease(id uint, markPayment model.PaymentStatus) (*model.InterviewBooking, error) {
	var booking model.InterviewBooking

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&booking, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrBookingNotFound
			}
			return err
		}
		if !booking.BookingStatus.HoldsSlot() {
			return &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "cancel"}
		}

		payment := markPayment
		if payment == "" {
			payment = booking.PaymentStatus
			if booking.PaymentStatus == model.PaymentPaid {
				payment = model.PaymentRefunded
			}
		}

		now := time.Now()
		if err := tx.Model(&booking).Updates(map[string]interface{}{
			"booking_status": model.BookingCancelled,
			"payment_status": payment,
			"cancelled_at":   now,
		}).Error; err != nil {
			return err
		}
		booking.BookingStatus = model.BookingCancelled
		booking.PaymentStatus = payment
		booking.CancelledAt = &now

		var session model.InterviewSession
		if err := tx.Select("id", "status").First(&session, booking.SessionID).Error; err != nil {
			return err
		}
		if session.Status != model.SessionCancelled {
			if err := tx.Model(&model.InterviewSession{}).
				Where("id = ? AND slots_available < max_slots", booking.SessionID).
				UpdateColumn("slots_available", gorm.Expr("slots_available + 1")).Error; err != nil {
				return err
			}
		}
		return nil
	})

	return &booking, err
}

// MarkNoShow confirmed -> no_show，重复上报不报错，名额不回补
func (r *BookingRepository) MarkNoShow(id uint) error {
	var booking model.InterviewBooking
	if err := r.DB.First(&booking, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrBookingNotFound
		}
		return err
	}
	if booking.BookingStatus == model.BookingNoShow {
		return nil
	}

	res := r.DB.Model(&model.InterviewBooking{}).
		Where("id = ? AND booking_status = ?", id, model.BookingConfirmed).
		Updates(map[string]interface{}{
			"booking_status":   model.BookingNoShow,
			"no_show_reported": true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "report no-show"}
	}
	return nil
}

// Complete confirmed -> completed，场次结束后的核销路径
func (r *BookingRepository) Complete(id uint) error {
	res := r.DB.Model(&model.InterviewBooking{}).
		Where("id = ? AND booking_status = ?", id, model.BookingConfirmed).
		Update("booking_status", model.BookingCompleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var booking model.InterviewBooking
		if err := r.DB.First(&booking, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrBookingNotFound
			}
			return err
		}
		return &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "complete"}
	}
	return nil
}

func (r *BookingRepository) UpdatePaymentProof(id uint, proofURL string) error {
	return r.DB.Model(&model.InterviewBooking{}).
		Where("id = ?", id).
		Update("payment_proof", proofURL).
		Error
}

// ListForLearner 学员查看自己的预约，按预约时间倒序
func (r *BookingRepository) ListForLearner(learnerID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error) {
	query := r.DB.Model(&model.InterviewBooking{}).Where("learner_id = ?", learnerID)
	if status != "" {
		query = query.Where("booking_status = ?", status)
	}
	return r.listPage(query, page, limit)
}

// ListForInstructor 讲师查看自己场次下的全部预约
func (r *BookingRepository) ListForInstructor(instructorID uint, status model.BookingStatus, page, limit int) ([]model.InterviewBooking, int64, error) {
	query := r.DB.Model(&model.InterviewBooking{}).
		Joins("JOIN interview_sessions ON interview_sessions.id = interview_bookings.session_id").
		Where("interview_sessions.instructor_id = ?", instructorID)
	if status != "" {
		query = query.Where("interview_bookings.booking_status = ?", status)
	}
	return r.listPage(query, page, limit)
}

func (r *BookingRepository) listPage(query *gorm.DB, page, limit int) ([]model.InterviewBooking, int64, error) {
	var bookings []model.InterviewBooking
	var total int64

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Session").Preload("Session.Instructor").Preload("Learner").
		Order("booked_at DESC").
		Offset(offset).Limit(limit).
		Find(&bookings).Error

	return bookings, total, err
}

// FindUpcomingConfirmed 提醒扫描：开始时间落在 [from, to] 内的已确认预约，
// 连带场次、讲师、学员联系信息
func (r *BookingRepository) FindUpcomingConfirmed(from, to time.Time) ([]model.InterviewBooking, error) {
	var bookings []model.InterviewBooking
	err := r.DB.
		Joins("JOIN interview_sessions ON interview_sessions.id = interview_bookings.session_id").
		Where("interview_bookings.booking_status = ? AND interview_sessions.session_date BETWEEN ? AND ?",
			model.BookingConfirmed, from, to).
		Preload("Session").Preload("Session.Instructor").Preload("Learner").
		Find(&bookings).Error
	return bookings, err
}
