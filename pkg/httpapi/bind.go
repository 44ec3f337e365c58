package httpapi

import (
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Abort attaches err for the error middleware and stops the chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// BindJSON decodes the request body into obj. On failure the error is
// attached and false is returned.
func BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Abort(c, errutil.FromBinding(err))
		return false
	}
	return true
}

// BindQuery decodes query parameters into obj.
func BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		Abort(c, errutil.FromBinding(err))
		return false
	}
	return true
}

// Page reads ?page=&size= and clamps it.
func Page(c *gin.Context) (pagination.Pagination, bool) {
	var p pagination.Pagination
	if !BindQuery(c, &p) {
		return p, false
	}
	return p.Normalize(), true
}
