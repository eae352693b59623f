package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/beacons-backend-go/internal/config"
	"github.com/jengzang/beacons-backend-go/internal/handler"
	"github.com/jengzang/beacons-backend-go/internal/metrics"
	"github.com/jengzang/beacons-backend-go/internal/middleware"
	"github.com/jengzang/beacons-backend-go/internal/service"
	"github.com/jengzang/beacons-backend-go/pkg/response"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, svc *service.DashboardService, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(m.Middleware())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Beacons Backend API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Route not found", nil)
	})

	tokens := middleware.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.FakeDataPerMinute, cfg.RateLimit.Burst)
	sessionLimiter := middleware.NewRateLimiter(cfg.RateLimit.SessionsPerMinute, cfg.RateLimit.SessionBurst)

	sessionHandler := handler.NewSessionHandler(svc, tokens, limiter, cfg.Tenant.DefaultCompanyID)
	eventHandler := handler.NewEventHandler(svc)
	panelHandler := handler.NewPanelHandler(svc)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 未认证, 按客户端 IP 限流
		api.POST("/session", sessionLimiter.Limit(), sessionHandler.CreateSession)

		authed := api.Group("", middleware.Auth(tokens))
		{
			authed.DELETE("/session", sessionHandler.DeleteSession)

			// 事件目录
			authed.GET("/events", eventHandler.ListEvents)

			// 区域面板
			region := authed.Group("/panels/region")
			{
				region.GET("", panelHandler.GetRegion)
				region.POST("/event", panelHandler.SelectEvent)
				region.POST("/point", panelHandler.ClickPoint)
				region.POST("/fake-data", limiter.Limit(), panelHandler.MakeFakeData)
				region.DELETE("/fake-data", panelHandler.CancelFakeData)
				region.DELETE("/data", panelHandler.ClearAllData)
			}

			// 信标距离面板
			proximity := authed.Group("/panels/proximity")
			{
				proximity.GET("", panelHandler.GetProximity)
				proximity.POST("/beacon", panelHandler.SelectBeacon)
			}

			// 明细表面板
			table := authed.Group("/panels/table")
			{
				table.GET("", panelHandler.GetTable)
				table.POST("/row", panelHandler.SelectRow)
			}
		}
	}

	return r
}
