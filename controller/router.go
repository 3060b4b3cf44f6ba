package controller

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
)

// NewRouter wires the API routes, request logging and the CORS policy.
func NewRouter(c *RAGController, allowedOrigins []string, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(log), CORS(allowedOrigins))

	api := router.Group("/api")
	{
		api.GET("/health", c.Health)
		api.POST("/pdf/upload", c.UploadPDF)
		api.GET("/pdf/stats", c.Stats)
		api.POST("/chat/message", c.ChatMessage)
		api.POST("/chat/stream", c.ChatStream)
	}

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Route not found"})
	})
	return router
}

// CORS admits requests without an Origin header and requests from the listed
// origins. Anything else is rejected with 403.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !slices.Contains(allowedOrigins, origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
				Error: "The CORS policy for this site does not allow access from the specified Origin.",
			})
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
