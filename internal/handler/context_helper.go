package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aneeshlingala/grade-melon-nsd/internal/middleware"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

func studentFromContext(c *gin.Context) (string, error) {
	claims := middleware.CurrentStudent(c)
	if claims == nil || claims.StudentID() == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.StudentID(), nil
}

func indexParam(c *gin.Context, name string) (int, error) {
	raw := c.Param(name)
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrInvalidArgument, name+" must be a non-negative integer")
	}
	return value, nil
}
