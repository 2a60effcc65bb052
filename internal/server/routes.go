package server

import "github.com/gin-gonic/gin"

// RegisterRoutes sets up the API routes.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/hierarchy", h.Hierarchy)
		v1.GET("/subjects/:subject/visits/:visit/series/:series/stack", h.Stack)

		v1.GET("/selection", h.GetSelection)
		v1.PUT("/selection", h.PutSelection)

		images := v1.Group("/images")
		{
			images.GET("/metadata", h.ImageMetadata)
			images.GET("/thumbnail", h.Thumbnail)
		}

		v1.POST("/scan", h.Scan)
	}
}
