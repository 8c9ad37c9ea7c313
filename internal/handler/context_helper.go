package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/course-enrollment-api/pkg/errors"
)

// pageParams reads ?page= and ?limit= leaving zero values for the service defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("limit"))
	return page, size
}

// bindOptionalJSON decodes the body into dest when one was sent. An empty body leaves dest untouched.
func bindOptionalJSON(c *gin.Context, dest interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(c.Request.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
	}
	return nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func actorEmail(c *gin.Context) string {
	if claims, ok := currentAdmin(c); ok {
		return claims.Email
	}
	return ""
}
