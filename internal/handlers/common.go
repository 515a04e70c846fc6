package handlers

import (
	"log"

	"github.com/ZAPHODh/ws-guess-server/internal/services"

	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
	Code  string `json:"code,omitempty" example:"NOT_FOUND"`
}

type MessageResponse struct {
	Message string `json:"message" example:"operation successful"`
}

// respondError maps an engine error to its status and body. Errors without a
// code are logged and reported as internal.
func respondError(c *gin.Context, err error) {
	code := services.CodeOf(err)
	if code == services.CodeInternal {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(code.HTTPStatus(), ErrorResponse{
		Error: services.MessageOf(err),
		Code:  string(code),
	})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, services.Invalid(err.Error(), nil))
}
