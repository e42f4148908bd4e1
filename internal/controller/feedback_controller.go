package controller

import (
	"codequest_backend/internal/service"
	"codequest_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type FeedbackController struct {
	FeedbackService *service.FeedbackService
}

func NewFeedbackController(feedbackService *service.FeedbackService) *FeedbackController {
	return &FeedbackController{FeedbackService: feedbackService}
}

// CreateFeedbackRequest 提交评价请求，四项评分均为 1-5
// swagger:model CreateFeedbackRequest
type CreateFeedbackRequest struct {
	BookingID            uint   `json:"bookingId" binding:"required"`
	OverallRating        int    `json:"overallRating"`
	TechnicalRating      int    `json:"technicalRating"`
	CommunicationRating  int    `json:"communicationRating"`
	ProblemSolvingRating int    `json:"problemSolvingRating"`
	Strengths            string `json:"strengths"`
	AreasForImprovement  string `json:"areasForImprovement"`
	Recommendations      string `json:"recommendations"`
	IsPublic             bool   `json:"isPublic"`
}

// Create godoc
// @Summary 提交面试评价
// @Description 场次讲师给学员写评价，一条预约只能评一次
// @Tags 评价
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateFeedbackRequest true "评价内容"
// @Success 201 {object} util.Response{data=model.InterviewFeedback}
// @Failure 409 {object} util.Response "评价已存在"
// @Failure 422 {object} util.Response "评分超出范围"
// @Router /api/mock-interviews/feedback [post]
func (c *FeedbackController) Create(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)

	var req CreateFeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	feedback, err := c.FeedbackService.CreateFeedback(claims.UserID, service.CreateFeedbackInput{
		BookingID:            req.BookingID,
		OverallRating:        req.OverallRating,
		TechnicalRating:      req.TechnicalRating,
		CommunicationRating:  req.CommunicationRating,
		ProblemSolvingRating: req.ProblemSolvingRating,
		Strengths:            req.Strengths,
		AreasForImprovement:  req.AreasForImprovement,
		Recommendations:      req.Recommendations,
		IsPublic:             req.IsPublic,
	})
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	util.Created(ctx, feedback)
}

// GetForBooking godoc
// @Summary 查看预约的评价
// @Description 学员本人、场次讲师和管理员可见
// @Tags 评价
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Success 200 {object} util.Response{data=model.InterviewFeedback}
// @Failure 403 {object} util.Response "无权查看"
// @Router /api/mock-interviews/bookings/{id}/feedback [get]
func (c *FeedbackController) GetForBooking(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	feedback, err := c.FeedbackService.GetFeedbackForBooking(claims.UserID, claims.Role, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	if feedback == nil {
		util.NotFound(ctx)
		return
	}
	util.Success(ctx, feedback)
}

// ListMine godoc
// @Summary 我收到的评价
// @Description 学员查看自己收到的全部面试评价
// @Tags 评价
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/mock-interviews/feedback/mine [get]
func (c *FeedbackController) ListMine(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	feedback, total, err := c.FeedbackService.ListFeedbackForLearner(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  feedback,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
