package handler

import (
	"strconv"

	"im-social/pkg/response"

	"github.com/gin-gonic/gin"
)

// idParam reads a positive numeric path parameter; it answers the request
// itself and returns false when the value is unusable.
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// pageQuery reads the before_id/limit cursor used by history endpoints
func pageQuery(c *gin.Context) (uint, int) {
	before, _ := strconv.ParseUint(c.DefaultQuery("before_id", "0"), 10, 64)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		limit = 0
	}
	return uint(before), limit
}
