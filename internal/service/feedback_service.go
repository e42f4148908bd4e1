package service

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/util"
	"fmt"
)

// FeedbackStore 评价存储，Create 依赖 booking_id 唯一索引去重
type FeedbackStore interface {
	Create(feedback *model.InterviewFeedback) error
	FindByBookingID(bookingID uint) (*model.InterviewFeedback, error)
	ListForLearner(learnerID uint, page, limit int) ([]model.InterviewFeedback, int64, error)
}

// CreateFeedbackInput 讲师提交评价的入参，四项评分均为 1-5
type CreateFeedbackInput struct {
	BookingID            uint
	OverallRating        int
	TechnicalRating      int
	CommunicationRating  int
	ProblemSolvingRating int
	Strengths            string
	AreasForImprovement  string
	Recommendations      string
	IsPublic             bool
}

type FeedbackService struct {
	Feedback FeedbackStore
	Bookings BookingStore
}

func NewFeedbackService(feedback FeedbackStore, bookings BookingStore) *FeedbackService {
	return &FeedbackService{Feedback: feedback, Bookings: bookings}
}

// CreateFeedback 面试结束后讲师给学员写评价，一条预约只能评一次
func (s *FeedbackService) CreateFeedback(instructorID uint, input CreateFeedbackInput) (*model.InterviewFeedback, error) {
	booking, err := s.Bookings.FindByID(input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Session == nil || booking.Session.InstructorID != instructorID {
		return nil, util.ErrAccessDenied
	}
	if booking.BookingStatus != model.BookingCompleted && booking.BookingStatus != model.BookingConfirmed {
		return nil, &util.InvalidStateError{Entity: "booking", Current: string(booking.BookingStatus), Op: "receive feedback"}
	}

	if err := validateRatings(input); err != nil {
		return nil, err
	}

	feedback := &model.InterviewFeedback{
		BookingID:            input.BookingID,
		InstructorID:         instructorID,
		LearnerID:            booking.LearnerID,
		OverallRating:        input.OverallRating,
		TechnicalRating:      input.TechnicalRating,
		CommunicationRating:  input.CommunicationRating,
		ProblemSolvingRating: input.ProblemSolvingRating,
		Strengths:            input.Strengths,
		AreasForImprovement:  input.AreasForImprovement,
		Recommendations:      input.Recommendations,
		IsPublic:             input.IsPublic,
	}
	if err := s.Feedback.Create(feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

// GetFeedbackForBooking 查看某条预约的评价，学员本人、场次讲师和管理员可见
func (s *FeedbackService) GetFeedbackForBooking(actorID uint, actorRole model.UserRole, bookingID uint) (*model.InterviewFeedback, error) {
	booking, err := s.Bookings.FindByID(bookingID)
	if err != nil {
		return nil, err
	}
	allowed := actorRole == model.Admin ||
		booking.LearnerID == actorID ||
		(booking.Session != nil && booking.Session.InstructorID == actorID)
	if !allowed {
		return nil, util.ErrAccessDenied
	}
	return s.Feedback.FindByBookingID(bookingID)
}

// ListFeedbackForLearner 学员查看自己收到的全部评价
func (s *FeedbackService) ListFeedbackForLearner(learnerID uint, page, limit int) ([]model.InterviewFeedback, int64, error) {
	return s.Feedback.ListForLearner(learnerID, page, limit)
}

func validateRatings(input CreateFeedbackInput) error {
	ratings := []struct {
		name  string
		value int
	}{
		{"overall_rating", input.OverallRating},
		{"technical_rating", input.TechnicalRating},
		{"communication_rating", input.CommunicationRating},
		{"problem_solving_rating", input.ProblemSolvingRating},
	}

	var fields []string
	for _, r := range ratings {
		if r.value < 1 || r.value > 5 {
			fields = append(fields, fmt.Sprintf("%s must be between 1 and 5", r.name))
		}
	}
	if len(fields) > 0 {
		return util.NewValidationError(fields...)
	}
	return nil
}
