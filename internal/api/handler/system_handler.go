package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SystemCheck handles GET /api/v1/system/check
func SystemCheck(checker SystemChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := checker.Check(c.Request.Context())
		code := http.StatusOK
		if !st.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, st)
	}
}
