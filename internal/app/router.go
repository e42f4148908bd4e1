package app

import (
	"codequest_backend/docs"
	"codequest_backend/internal/config"
	"codequest_backend/internal/middleware"
	"codequest_backend/internal/model"
	"codequest_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)

		// 场次目录对游客开放，预约需要登录
		public.GET("/mock-interviews/sessions", c.session.List)
		public.GET("/mock-interviews/sessions/:id", c.session.Get)
	}

	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/auth/me", c.auth.Me)

		// 讲师侧：场次管理
		instructor := authGroup.Group("/mock-interviews")
		instructor.Use(middleware.RoleMiddleware(model.Instructor))
		{
			instructor.POST("/sessions", c.session.Create)
			instructor.POST("/sessions/:id/start", c.session.Start)
			instructor.POST("/sessions/:id/end", c.session.End)
			instructor.POST("/sessions/:id/cancel", c.session.Cancel)
			instructor.GET("/sessions/:id/join-logs", c.session.JoinLogs)
			instructor.POST("/bookings/:id/no-show", c.booking.NoShow)
			instructor.POST("/bookings/:id/complete", c.booking.Complete)
			instructor.POST("/feedback", c.feedback.Create)
		}

		// 学员侧：预约与反馈
		learner := authGroup.Group("/mock-interviews")
		learner.Use(middleware.RoleMiddleware(model.Learner))
		{
			learner.POST("/sessions/:id/book", c.booking.Book)
			learner.POST("/bookings/:id/payment-proof", c.booking.UploadProof)
			learner.GET("/feedback/mine", c.feedback.ListMine)
		}

		// 双方共用
		shared := authGroup.Group("/mock-interviews")
		{
			shared.POST("/sessions/:id/join", c.session.Join)
			shared.GET("/bookings", c.booking.List)
			shared.GET("/bookings/:id", c.booking.Get)
			shared.POST("/bookings/:id/cancel", c.booking.Cancel)
			shared.GET("/bookings/:id/feedback", c.feedback.GetForBooking)
		}

		// 管理员侧：转账核验
		admin := authGroup.Group("/mock-interviews")
		admin.Use(middleware.RoleMiddleware(model.Admin))
		{
			admin.POST("/bookings/:id/verify-payment", c.booking.VerifyPayment)
		}
	}
}
