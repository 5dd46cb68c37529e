package api

import (
	"alcyxob/fight-gateway/internal/logger"
	"alcyxob/fight-gateway/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	uploadService service.UploadService,
	log logger.Logger,
) {
	uploadHandler := NewUploadHandler(uploadService, log.With("component", "upload_handler"))

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr})
		})

		uploadGroup := protected.Group("/uploads")
		{
			uploadGroup.POST("", uploadHandler.OfferUpload)
			uploadGroup.GET("", uploadHandler.ListUploads)
			uploadGroup.POST("/presign", uploadHandler.RequestUploadURL)
			uploadGroup.POST("/confirm", uploadHandler.ConfirmUpload)

			// The single file currently staged for this user.
			uploadGroup.GET("/current", uploadHandler.GetCurrentUpload)
			uploadGroup.DELETE("/current", uploadHandler.DiscardUpload)
			uploadGroup.POST("/current/analysis", uploadHandler.SubmitForAnalysis)
		}
	}
}
