package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/robotlab/labhub/config"
	"github.com/robotlab/labhub/controllers"
	"github.com/robotlab/labhub/middleware"
	"github.com/robotlab/labhub/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, app *App) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	utils.RegisterValidators()

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	timeout := cfg.DBTimeout()
	authController := controllers.NewAuthController(app.Store, app.Revocations, time.Duration(cfg.JWTTTLHours)*time.Hour, timeout)
	attendanceController := controllers.NewAttendanceController(app.Store, app.Materializer, app.CheckIns, app.Settings, app.Now, timeout)
	userController := controllers.NewUserController(app.Store, app.Points, app.Members, app.Cache, timeout)
	ruleController := controllers.NewRuleController(app.Store, timeout)
	statsController := controllers.NewStatsController(app.Store, app.Store, app.Settings, app.Now, timeout)

	r.GET("/health", statsController.Health)

	api := r.Group("/api/v1")
	api.GET("/health", statsController.Health)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", middleware.RateLimit(cfg.RateLimitPerMinute), authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(app.Revocations), authController.Logout)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(app.Revocations))
	admin := protected.Group("")
	admin.Use(middleware.AdminRequired())

	protected.GET("/stats", statsController.GetStats)

	protected.GET("/attendances", attendanceController.List)
	protected.GET("/attendances/:id", attendanceController.Get)
	protected.POST("/attendances/:id/sign", middleware.RateLimit(cfg.RateLimitPerMinute), attendanceController.Sign)
	admin.POST("/attendances", attendanceController.Create)
	admin.PUT("/attendances/:id", attendanceController.Update)
	admin.DELETE("/attendances/:id", attendanceController.Delete)
	admin.POST("/attendances/:id/trigger", attendanceController.Trigger)

	protected.GET("/users", userController.Ranking)
	protected.GET("/users/me", userController.Me)
	protected.GET("/users/my-requests", userController.MyRequests)
	protected.POST("/users/requests", userController.SubmitRequest)
	protected.GET("/users/:id/logs", userController.Logs)
	admin.GET("/users/requests", userController.Requests)
	admin.PATCH("/users/requests/:id", userController.ResolveRequest)
	admin.POST("/users/batch-import", userController.BatchImport)
	admin.PATCH("/users/:id/points", userController.AdjustPoints)
	admin.PATCH("/users/:id/admin", userController.SetAdmin)
	admin.PATCH("/users/:id/password", userController.ResetPassword)
	admin.DELETE("/users/:id", userController.Delete)
	admin.DELETE("/users/point-logs/:logId", userController.RevertLog)

	protected.GET("/rules", ruleController.List)
	protected.GET("/rules/:id", ruleController.Get)
	admin.POST("/rules", ruleController.Create)
	admin.PUT("/rules/:id", ruleController.Update)
	admin.DELETE("/rules/:id", ruleController.Delete)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
