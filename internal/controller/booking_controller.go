package controller

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/service"
	"codequest_backend/internal/util"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 转账凭证截图的大小上限
const maxProofSize = 5 << 20

type BookingController struct {
	BookingService *service.BookingService
	StorageService *service.StorageService
}

func NewBookingController(bookingService *service.BookingService, storageService *service.StorageService) *BookingController {
	return &BookingController{
		BookingService: bookingService,
		StorageService: storageService,
	}
}

// BookRequest 预约请求
// swagger:model BookRequest
type BookRequest struct {
	Notes         string `json:"notes"`
	PaymentMethod string `json:"paymentMethod" binding:"omitempty,oneof=credit_card bank_transfer"`
	CardNumber    string `json:"cardNumber"`
}

// Book godoc
// @Summary 预约面试场次
// @Description 占用一个名额并发起收款，收款失败自动释放名额
// @Tags 预约
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Param   body body BookRequest true "预约信息"
// @Success 201 {object} util.Response{data=model.InterviewBooking}
// @Failure 402 {object} util.Response "支付失败"
// @Failure 409 {object} util.Response "名额已满或重复预约"
// @Router /api/mock-interviews/sessions/{id}/book [post]
func (c *BookingController) Book(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sessionID, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	var req BookRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	booking, err := c.BookingService.BookSession(ctx.Request.Context(), claims.UserID, service.BookSessionInput{
		SessionID:     sessionID,
		Notes:         req.Notes,
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		CardNumber:    req.CardNumber,
	})
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	util.Created(ctx, booking)
}

// List godoc
// @Summary 我的预约
// @Description 学员看自己的预约，讲师看自己场次下的预约
// @Tags 预约
// @Produce  json
// @Security BearerAuth
// @Param   status query string false "预约状态"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/mock-interviews/bookings [get]
func (c *BookingController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	status := model.BookingStatus(ctx.Query("status"))

	bookings, total, err := c.BookingService.ListBookings(claims.UserID, claims.Role, status, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  bookings,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Get godoc
// @Summary 预约详情
// @Tags 预约
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Success 200 {object} util.Response{data=model.InterviewBooking}
// @Router /api/mock-interviews/bookings/{id} [get]
func (c *BookingController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	booking, err := c.BookingService.GetBooking(claims.UserID, claims.Role, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, booking)
}

// Cancel godoc
// @Summary 取消预约
// @Description 取消预约并释放名额，已支付的转退款
// @Tags 预约
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Success 200 {object} util.Response{data=model.InterviewBooking}
// @Failure 409 {object} util.Response "状态不允许取消"
// @Router /api/mock-interviews/bookings/{id}/cancel [post]
func (c *BookingController) Cancel(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	booking, err := c.BookingService.CancelBooking(ctx.Request.Context(), claims.UserID, claims.Role, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, booking)
}

// NoShow godoc
// @Summary 上报缺席
// @Description 场次讲师上报学员缺席，重复上报幂等
// @Tags 预约
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Success 200 {object} util.Response
// @Router /api/mock-interviews/bookings/{id}/no-show [post]
func (c *BookingController) NoShow(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	if err := c.BookingService.ReportNoShow(claims.UserID, id); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Complete godoc
// @Summary 核销预约
// @Description 场次结束后讲师将预约置为已完成
// @Tags 预约
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Success 200 {object} util.Response
// @Router /api/mock-interviews/bookings/{id}/complete [post]
func (c *BookingController) Complete(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	if err := c.BookingService.CompleteBooking(claims.UserID, id); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// UploadProof godoc
// @Summary 上传转账凭证
// @Description 银行转账预约补传凭证截图，等待管理员核验
// @Tags 预约
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Param   file formData file true "凭证截图"
// @Success 200 {object} util.Response{data=object}
// @Router /api/mock-interviews/bookings/{id}/payment-proof [post]
func (c *BookingController) UploadProof(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if file.Size > maxProofSize {
		util.BadRequest(ctx, "file too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	filename := fmt.Sprintf("payment-proofs/%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	proofURL, err := c.StorageService.Upload(ctx.Request.Context(), filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	if err := c.BookingService.AttachPaymentProof(claims.UserID, id, proofURL); err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"paymentProofUrl": proofURL})
}

// VerifyPaymentRequest 转账核验请求
type VerifyPaymentRequest struct {
	Approve    bool   `json:"approve"`
	PaymentRef string `json:"paymentRef"`
}

// VerifyPayment godoc
// @Summary 核验银行转账
// @Description 管理员核验转账凭证：通过则确认预约，驳回则取消并释放名额
// @Tags 预约
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "预约ID"
// @Param   body body VerifyPaymentRequest true "核验结果"
// @Success 200 {object} util.Response{data=model.InterviewBooking}
// @Failure 409 {object} util.Response "预约状态不允许核验"
// @Router /api/mock-interviews/bookings/{id}/verify-payment [post]
func (c *BookingController) VerifyPayment(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid booking id")
		return
	}

	var req VerifyPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	booking, err := c.BookingService.VerifyPayment(ctx.Request.Context(), id, req.Approve, req.PaymentRef)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, booking)
}
