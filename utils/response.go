package utils

import (
	"errors"
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"civicspot/apperr"
	"civicspot/models"
)

func Success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, models.Response{Success: true, Message: message, Data: data})
}

func List(c *gin.Context, items any, count int, total int64, pages, page int) {
	c.JSON(http.StatusOK, models.ListResponse{
		Success:     true,
		Count:       count,
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		Data:        items,
	})
}

// Fail writes the error envelope. Internal detail is only exposed when
// debug is set.
func Fail(c *gin.Context, err error, debug bool) {
	kind := apperr.KindOf(err)
	resp := models.Response{Success: false}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Unexpected("Server Error", err)
	}
	resp.Message = ae.Message
	resp.Fields = ae.Fields

	if kind == apperr.KindUnexpected {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		if !debug {
			resp.Message = "Server Error"
		}
	}
	if debug && ae.Err != nil {
		resp.Error = ae.Err.Error()
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), resp)
}

// Abort writes an error envelope for a kind without an underlying error.
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.Response{Success: false, Message: message})
}
