package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OK writes the success envelope: {"code": 0, "data": ...}.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": data,
	})
}

// Fail writes the failure envelope: {"code": -1, "message": ...}.
// The HTTP status carries the error class; the envelope code is fixed.
func Fail(c *gin.Context, httpStatus int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    -1,
		"message": msg,
	})
}
