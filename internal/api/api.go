package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/api/handlers"
	"github.com/andresuchdata/autopo-servicelevel/internal/api/middleware"
	"github.com/andresuchdata/autopo-servicelevel/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	ServiceLevelService *service.ServiceLevelService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger("/health", "/metrics"))
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := router.Group("/api/v1")

	if services != nil && services.ServiceLevelService != nil {
		serviceLevelHandler := handlers.NewServiceLevelHandler(services.ServiceLevelService)
		serviceLevelGroup := apiGroup.Group("/service_level")
		{
			serviceLevelGroup.GET("/settings", serviceLevelHandler.GetSettings)
			serviceLevelGroup.GET("/skus/:sku/target", serviceLevelHandler.GetTarget)
		}
		apiGroup.POST("/variability/classify", serviceLevelHandler.Classify)

		closedLoopHandler := handlers.NewClosedLoopHandler(services.ServiceLevelService)
		closedLoopGroup := apiGroup.Group("/closed_loop")
		{
			closedLoopGroup.POST("/run", closedLoopHandler.Run)
			closedLoopGroup.GET("/report", closedLoopHandler.GetReport)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
