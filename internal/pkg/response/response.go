package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/apisync/internal/pkg/errcode"
	appErr "github.com/xxxsen/apisync/internal/pkg/errors"
)

// apiError is the envelope error proxyutil renders as {code, message}.
type apiError struct {
	code uint32
	msg  string
}

func (e apiError) Error() string { return e.msg }

func (e apiError) Code() uint32 { return e.code }

var codes = []struct {
	err  error
	code int
	msg  string
}{
	{appErr.ErrUnauthorized, errcode.ErrUnauthorized, "unauthorized"},
	{appErr.ErrForbidden, errcode.ErrForbidden, "forbidden"},
	{appErr.ErrNotFound, errcode.ErrNotFound, "not found"},
	{appErr.ErrInvalid, errcode.ErrInvalid, ""},
	{appErr.ErrConflict, errcode.ErrConflict, "conflict"},
	{appErr.ErrTooMany, errcode.ErrTooMany, "too many requests"},
	{appErr.ErrFetchFailed, errcode.ErrFetchFailed, "fetch failed"},
	{appErr.ErrJobInactive, errcode.ErrJobInactive, "job inactive"},
	{appErr.ErrUnknownBundle, errcode.ErrUnknownBundle, "unknown bundle"},
}

// CodeOf maps an application error to its errcode and the message shown to
// the caller. Invalid input keeps the full error text.
func CodeOf(err error) (int, string) {
	for _, item := range codes {
		if !errors.Is(err, item.err) {
			continue
		}
		if item.msg == "" {
			return item.code, err.Error()
		}
		return item.code, item.msg
	}
	return errcode.ErrInternal, "internal error"
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, apiError{code: uint32(code), msg: message})
}

// Fail renders err through the errcode table.
func Fail(c *gin.Context, err error) {
	code, msg := CodeOf(err)
	Error(c, code, msg)
}

// Result writes a bare JSON value without the envelope, for callers that only
// understand a plain body.
func Result(c *gin.Context, v interface{}) {
	c.JSON(http.StatusOK, v)
}
