package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sga-platform/sga-api/api/swagger"
	"github.com/sga-platform/sga-api/internal/handler"
	"github.com/sga-platform/sga-api/internal/middleware"
	"github.com/sga-platform/sga-api/internal/models"
	"github.com/sga-platform/sga-api/internal/repository"
	"github.com/sga-platform/sga-api/internal/service"
	"github.com/sga-platform/sga-api/pkg/cache"
	"github.com/sga-platform/sga-api/pkg/config"
	"github.com/sga-platform/sga-api/pkg/database"
	"github.com/sga-platform/sga-api/pkg/logger"
	corsmiddleware "github.com/sga-platform/sga-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sga-platform/sga-api/pkg/middleware/requestid"
)

// @title SGA API
// @version 1.0.0
// @description Academic management API: accounts, careers, subjects and enrollments
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	accountRepo := repository.NewAccountRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	careerRepo := repository.NewCareerRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)
	authSvc := service.NewAuthService(accountRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	studentSvc := service.NewStudentService(studentRepo, accountRepo, careerRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, accountRepo, validate, logr)
	adminSvc := service.NewAdminService(adminRepo, accountRepo, validate, logr)
	careerSvc := service.NewCareerService(careerRepo, subjectRepo, cacheSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, teacherRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, subjectRepo, careerRepo, cacheSvc, metricsSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	adminHandler := handler.NewAdminHandler(adminSvc)
	careerHandler := handler.NewCareerHandler(careerSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	students := protected.Group("/students", adminOnly)
	students.GET("", studentHandler.List)
	students.POST("", studentHandler.Create)
	students.GET("/:id", studentHandler.Get)
	students.PUT("/:id", studentHandler.Update)
	students.PATCH("/:id/status", studentHandler.SetAccountStatus)

	teachers := protected.Group("/teachers", adminOnly)
	teachers.GET("", teacherHandler.List)
	teachers.POST("", teacherHandler.Create)
	teachers.GET("/:id", teacherHandler.Get)
	teachers.PUT("/:id", teacherHandler.Update)
	teachers.PATCH("/:id/status", teacherHandler.SetAccountStatus)

	admins := protected.Group("/admins", adminOnly)
	admins.GET("", adminHandler.List)
	admins.POST("", adminHandler.Create)
	admins.GET("/:id", adminHandler.Get)
	admins.PUT("/:id", adminHandler.Update)
	admins.PATCH("/:id/status", adminHandler.SetAccountStatus)

	careers := protected.Group("/careers")
	careers.GET("", careerHandler.List)
	careers.GET("/:id", careerHandler.Get)
	careers.POST("", adminOnly, careerHandler.Create)
	careers.PUT("/:id", adminOnly, careerHandler.Update)
	careers.POST("/:id/activate", adminOnly, careerHandler.Activate)
	careers.POST("/:id/archive", adminOnly, careerHandler.Archive)
	careers.DELETE("/:id", adminOnly, careerHandler.Delete)
	careers.PUT("/:id/subjects/:subjectId", adminOnly, careerHandler.AttachSubject)
	careers.DELETE("/:id/subjects/:subjectId", adminOnly, careerHandler.DetachSubject)

	subjects := protected.Group("/subjects")
	subjects.GET("", subjectHandler.List)
	subjects.GET("/:id", subjectHandler.Get)
	subjects.POST("", adminOnly, subjectHandler.Create)
	subjects.PUT("/:id", adminOnly, subjectHandler.Update)
	subjects.DELETE("/:id", adminOnly, subjectHandler.Delete)
	subjects.GET("/:id/roster", staff, enrollmentHandler.Roster)
	subjects.GET("/:id/roster/export", staff, enrollmentHandler.ExportRoster)

	enrollments := protected.Group("/enrollments")
	enrollments.POST("", studentOnly, enrollmentHandler.Enroll)
	enrollments.POST("/:id/withdraw", studentOnly, enrollmentHandler.Withdraw)
	enrollments.GET("/available", studentOnly, enrollmentHandler.Available)
	enrollments.GET("/mine", studentOnly, enrollmentHandler.Mine)
	enrollments.GET("", staff, enrollmentHandler.List)
	enrollments.GET("/:id", staff, enrollmentHandler.Get)
	enrollments.PATCH("/:id/status", adminOnly, enrollmentHandler.SetStatus)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
