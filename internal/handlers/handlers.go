package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stylizer/api/internal/config"
	"stylizer/api/internal/service"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	taskService *service.TaskService
	db          *pgxpool.Pool
	cache       *redis.Client
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, taskService *service.TaskService, db *pgxpool.Pool, cache *redis.Client) HandlerSet {
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		taskService: taskService,
		db:          db,
		cache:       cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		tasks := v1.Group("/tasks")
		tasks.POST("", h.SubmitTask)
		tasks.GET("/:taskId/status", h.TaskStatus)
		tasks.GET("/:taskId/result", h.TaskResult)

		v1.POST("/process", h.ProcessStream)
	}
}
