package model

// InterviewFeedback 面试后讲师对学员的评价，一条预约最多一条
// swagger:model InterviewFeedback
type InterviewFeedback struct {
	BaseModel
	BookingID            uint   `gorm:"uniqueIndex;not null" json:"bookingId"`
	InstructorID         uint   `gorm:"index;not null" json:"instructorId"`
	LearnerID            uint   `gorm:"index;not null" json:"learnerId"`
	OverallRating        int    `gorm:"not null" json:"overallRating"`
	TechnicalRating      int    `gorm:"not null" json:"technicalRating"`
	CommunicationRating  int    `gorm:"not null" json:"communicationRating"`
	ProblemSolvingRating int    `gorm:"not null" json:"problemSolvingRating"`
	Strengths            string `gorm:"type:text" json:"strengths,omitempty"`
	AreasForImprovement  string `gorm:"type:text" json:"areasForImprovement,omitempty"`
	Recommendations      string `gorm:"type:text" json:"recommendations,omitempty"`
	IsPublic             bool   `gorm:"default:false" json:"isPublic"`

	Booking *InterviewBooking `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
}

func (InterviewFeedback) TableName() string {
	return "interview_feedback"
}
