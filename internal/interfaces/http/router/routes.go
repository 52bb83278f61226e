// Package router 提供 HTTP 路由配置
package router

import (
	"chat-artifact-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	artifactHandler *handler.ArtifactHandler,
	generateHandler *handler.GenerateHandler,
) {
	// 构件管理
	artifacts := v1.Group("/artifacts")
	{
		artifacts.POST("/generate", generateHandler.Generate) // SSE
		artifacts.POST("/inject", generateHandler.Inject)
		artifacts.POST("/:aid/update", generateHandler.Update) // SSE

		artifacts.GET("/:aid/latest", artifactHandler.GetLatest)
		artifacts.GET("/:aid/versions", artifactHandler.ListVersions)
		artifacts.GET("/:aid/versions/:vno", artifactHandler.GetVersion)
		artifacts.DELETE("/:aid/versions", artifactHandler.DeleteVersionsAfter)
	}
}
