// Package api HTTP入口：存活检查与GraphQL管理接口
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/internal/api/graph"
)

// HealthFunc 返回健康检查附带的运行状态
type HealthFunc func() gin.H

// NewRouter 创建HTTP路由
func NewRouter(gql *graph.GraphQLServer, graphqlPath string, health HealthFunc, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.Named("http")))

	RegisterRoutes(r, gql, graphqlPath, health)
	return r
}

func RegisterRoutes(r *gin.Engine, gql *graph.GraphQLServer, graphqlPath string, health HealthFunc) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Poll bot is running.")
	})

	r.GET("/healthz", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				status[k] = v
			}
		}
		c.JSON(http.StatusOK, status)
	})

	if gql != nil {
		r.POST(graphqlPath, gin.WrapH(gql.Handler()))
		r.GET(graphqlPath, gin.WrapH(gql.PlaygroundHandler()))
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("HTTP请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
