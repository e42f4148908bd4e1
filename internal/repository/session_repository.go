package repository

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const sessionCacheTTL = 60 * time.Second

// SessionFilter 场次列表查询条件
type SessionFilter struct {
	InstructorID uint
	Topic        string
	Difficulty   model.DifficultyLevel
	Status       model.SessionStatus
	DateFrom     *time.Time
	DateTo       *time.Time
}

type SessionRepository struct {
	DB  *gorm.DB
	RDB *redis.Client
}

func NewSessionRepository(db *gorm.DB, rdb *redis.Client) *SessionRepository {
	return &SessionRepository{DB: db, RDB: rdb}
}

func (r *SessionRepository) Create(session *model.InterviewSession) error {
	return r.DB.Create(session).Error
}

func (r *SessionRepository) FindByID(id uint) (*model.InterviewSession, error) {
	var session model.InterviewSession
	err := r.DB.Preload("Instructor").First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSessionNotFound
	}
	return &session, err
}

// FindByIDCached 读缓存优先的场次详情，容量变更后由 Invalidate 清除。
// 缓存故障只记作未命中，不影响主流程。
func (r *SessionRepository) FindByIDCached(ctx context.Context, id uint) (*model.InterviewSession, error) {
	key := sessionCacheKey(id)
	if r.RDB != nil {
		if raw, err := r.RDB.Get(ctx, key).Bytes(); err == nil {
			var cached model.InterviewSession
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	session, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}

	if r.RDB != nil {
		if raw, err := json.Marshal(session); err == nil {
			r.RDB.Set(ctx, key, raw, sessionCacheTTL)
		}
	}
	return session, nil
}

func (r *SessionRepository) Invalidate(ctx context.Context, id uint) {
	if r.RDB != nil {
		r.RDB.Del(ctx, sessionCacheKey(id))
	}
}

func sessionCacheKey(id uint) string {
	return fmt.Sprintf("cq:interview:session:%d", id)
}

// List 按条件分页查询，按开始时间升序
func (r *SessionRepository) List(filter SessionFilter, page, limit int) ([]model.InterviewSession, int64, error) {
	var sessions []model.InterviewSession
	var total int64

	query := r.DB.Model(&model.InterviewSession{})

	if filter.InstructorID > 0 {
		query = query.Where("instructor_id = ?", filter.InstructorID)
	}
	if filter.Topic != "" {
		query = query.Where("topic LIKE ?", "%"+filter.Topic+"%")
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty_level = ?", filter.Difficulty)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("session_date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("session_date <= ?", *filter.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Instructor").
		Order("session_date ASC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error

	return sessions, total, err
}

// UpdateStatusFrom 条件状态迁移，当前状态不匹配时返回 false，
// 由调用方映射为状态冲突错误
func (r *SessionRepository) UpdateStatusFrom(id uint, from, to model.SessionStatus) (bool, error) {
	res := r.DB.Model(&model.InterviewSession{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

// CancelWithBookings 取消场次并级联处理全部有效预约：
// 预约转 cancelled、已支付的转 refunded，名额不回补（场次已死）。
// 整个操作在一个事务内完成，返回被波及的预约用于通知。
func (r *SessionRepository) CancelWithBookings(id uint, reason string) ([]model.InterviewBooking, error) {
	var affected []model.InterviewBooking

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.InterviewSession{}).
			Where("id = ? AND status IN ?", id, []model.SessionStatus{model.SessionScheduled, model.SessionInProgress}).
			Updates(map[string]interface{}{
				"status":        model.SessionCancelled,
				"cancel_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var session model.InterviewSession
			if err := tx.First(&session, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return util.ErrSessionNotFound
				}
				return err
			}
			return &util.InvalidStateError{Entity: "session", Current: string(session.Status), Op: "cancel"}
		}

		if err := tx.Where("session_id = ? AND booking_status IN ?",
			id, []model.BookingStatus{model.BookingPending, model.BookingConfirmed}).
			Preload("Learner").
			Find(&affected).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range affected {
			updates := map[string]interface{}{
				"booking_status": model.BookingCancelled,
				"cancelled_at":   now,
			}
			if affected[i].PaymentStatus == model.PaymentPaid {
				updates["payment_status"] = model.PaymentRefunded
			}
			if err := tx.Model(&model.InterviewBooking{}).
				Where("id = ?", affected[i].ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})

	return affected, err
}
