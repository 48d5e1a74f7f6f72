package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/factory-ops-api/internal/middleware"
	"github.com/noah-isme/factory-ops-api/internal/models"
)

func actorFromContext(c *gin.Context) models.Actor {
	return middleware.ActorFrom(c)
}
