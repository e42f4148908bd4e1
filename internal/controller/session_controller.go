package controller

import (
	"codequest_backend/internal/model"
	"codequest_backend/internal/repository"
	"codequest_backend/internal/service"
	"codequest_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	SessionService *service.SessionService
	AccessService  *service.AccessService
}

func NewSessionController(sessionService *service.SessionService, accessService *service.AccessService) *SessionController {
	return &SessionController{
		SessionService: sessionService,
		AccessService:  accessService,
	}
}

// CreateSessionRequest 创建场次请求
// swagger:model CreateSessionRequest
type CreateSessionRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	Topic           string    `json:"topic" binding:"required"`
	DifficultyLevel string    `json:"difficultyLevel"`
	SessionDate     time.Time `json:"sessionDate" binding:"required"`
	DurationMinutes int       `json:"durationMinutes" binding:"required"`
	Price           float64   `json:"price"`
	MaxSlots        int       `json:"maxSlots" binding:"required"`
	SessionLink     string    `json:"sessionLink"`
	Requirements    string    `json:"requirements"`
}

// Create godoc
// @Summary 发布面试场次
// @Description 讲师发布一个新的模拟面试场次
// @Tags 面试场次
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateSessionRequest true "场次信息"
// @Success 201 {object} util.Response{data=model.InterviewSession}
// @Failure 422 {object} util.Response "字段校验失败"
// @Router /api/mock-interviews/sessions [post]
func (c *SessionController) Create(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.SessionService.CreateSession(claims.UserID, service.CreateSessionInput{
		Title:           req.Title,
		Description:     req.Description,
		Topic:           req.Topic,
		DifficultyLevel: model.DifficultyLevel(req.DifficultyLevel),
		SessionDate:     req.SessionDate,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		MaxSlots:        req.MaxSlots,
		SessionLink:     req.SessionLink,
		Requirements:    req.Requirements,
	})
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	util.Created(ctx, session)
}

// List godoc
// @Summary 场次列表
// @Description 按主题、难度、状态和日期筛选可预约的场次
// @Tags 面试场次
// @Produce  json
// @Param   topic query string false "主题关键字"
// @Param   difficulty query string false "难度"
// @Param   status query string false "状态"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/mock-interviews/sessions [get]
func (c *SessionController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	filter := repository.SessionFilter{
		Topic:      ctx.Query("topic"),
		Difficulty: model.DifficultyLevel(ctx.Query("difficulty")),
		Status:     model.SessionStatus(ctx.Query("status")),
	}
	if raw := ctx.Query("date_from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &t
		}
	}
	if raw := ctx.Query("date_to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &t
		}
	}

	sessions, total, err := c.SessionService.ListSessions(filter, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  sessions,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Get godoc
// @Summary 场次详情
// @Tags 面试场次
// @Produce  json
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Failure 404 {object} util.Response "场次不存在"
// @Router /api/mock-interviews/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	session, err := c.SessionService.GetSession(ctx.Request.Context(), id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// Start godoc
// @Summary 开始面试
// @Description 场次讲师将场次置为进行中
// @Tags 面试场次
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Failure 403 {object} util.Response "非本场次讲师"
// @Failure 409 {object} util.Response "状态不允许"
// @Router /api/mock-interviews/sessions/{id}/start [post]
func (c *SessionController) Start(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	session, err := c.SessionService.StartSession(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// End godoc
// @Summary 结束面试
// @Tags 面试场次
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Router /api/mock-interviews/sessions/{id}/end [post]
func (c *SessionController) End(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	session, err := c.SessionService.EndSession(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// CancelSessionRequest 取消场次请求
type CancelSessionRequest struct {
	Reason string `json:"reason"`
}

// Cancel godoc
// @Summary 取消场次
// @Description 取消场次并级联取消全部预约，已支付的预约转退款
// @Tags 面试场次
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Param   body body CancelSessionRequest false "取消原因"
// @Success 200 {object} util.Response{data=model.InterviewSession}
// @Router /api/mock-interviews/sessions/{id}/cancel [post]
func (c *SessionController) Cancel(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	var req CancelSessionRequest
	_ = ctx.ShouldBindJSON(&req)

	session, err := c.SessionService.CancelSession(ctx.Request.Context(), claims.UserID, claims.Role, id, req.Reason)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// Join godoc
// @Summary 进入面试房间
// @Description 鉴权通过后返回房间链接：讲师凭场次归属，学员凭有效预约
// @Tags 面试场次
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 403 {object} util.Response "无权进入"
// @Failure 409 {object} util.Response "场次已结束"
// @Router /api/mock-interviews/sessions/{id}/join [post]
func (c *SessionController) Join(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	session, joinURL, err := c.AccessService.AuthorizeJoin(ctx.Request.Context(), claims.UserID, claims.Role, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"session": session,
		"joinUrl": joinURL,
	})
}

// JoinLogs godoc
// @Summary 加入审计记录
// @Description 按时间顺序返回本场次的全部进入记录，仅场次讲师或管理员可见
// @Tags 面试场次
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=[]model.SessionJoinLog}
// @Failure 403 {object} util.Response "非本场次讲师"
// @Router /api/mock-interviews/sessions/{id}/join-logs [get]
func (c *SessionController) JoinLogs(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, err := parseID(ctx, "id")
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return
	}

	logs, err := c.SessionService.ListJoinLogs(claims.UserID, claims.Role, id)
	if err != nil {
		util.DomainError(ctx, err)
		return
	}
	util.Success(ctx, logs)
}

func parseID(ctx *gin.Context, name string) (uint, error) {
	raw, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	return uint(raw), err
}
