// Package handlers provides HTTP handlers for the Quillbooks API.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// respondError writes a JSON error response with the status the error's kind
// maps to. Internal detail stays in the log; the client sees the message only.
func respondError(c *gin.Context, err error) {
	c.JSON(qerrors.HTTPStatus(err), gin.H{"error": err.Error()})
}
