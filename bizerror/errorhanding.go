package bizerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"gatekeeper/common"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

func ErrorHandling() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handle(c)
		c.Next()
	}
}

func handle(c *gin.Context) {
	if ret := recover(); ret != nil {
		err, ok := ret.(error)
		if !ok {
			err = errors.New(fmt.Sprintf("%s", ret))
		}
		HandleError(c, err)
	} else {
		if err := c.Errors.Last(); err != nil {
			HandleError(c, err)
		}
	}
}

func HandleError(c *gin.Context, err error) {
	genericErr := err
	var ginErr *gin.Error
	if errors.As(err, &ginErr) {
		genericErr = ginErr.Err
	}

	entry := logrus.WithContext(c.Request.Context()).WithFields(logrus.Fields{
		"method": c.Request.Method, "path": c.Request.URL.Path,
	})

	var bizErr BizError
	if errors.As(genericErr, &bizErr) {
		respond := bizErr.Respond()
		if respond.Status >= http.StatusInternalServerError {
			entry.WithError(genericErr).Error("request failed")
		} else {
			entry.WithError(genericErr).Info("request rejected")
		}
		abortWith(c, respond.Status, &common.ErrorBody{Code: respond.Code, Message: respond.Message, Data: respond.Data})
		return
	}

	// bad request: io.EOF (no body).
	if errors.Is(genericErr, io.EOF) {
		entry.WithError(genericErr).Info("request rejected")
		abortWith(c, http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "EOF"})
		return
	}
	var syntaxErr *json.SyntaxError
	if errors.As(genericErr, &syntaxErr) {
		entry.WithError(genericErr).Info("request rejected")
		abortWith(c, http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: syntaxErr.Error()})
		return
	}
	var validationErr validator.ValidationErrors
	if errors.As(genericErr, &validationErr) {
		entry.WithError(genericErr).Info("request rejected")
		abortWith(c, http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: validationErr.Error()})
		return
	}
	if errors.Is(genericErr, gorm.ErrRecordNotFound) {
		entry.WithError(genericErr).Info("request rejected")
		abortWith(c, http.StatusNotFound, &common.ErrorBody{Code: "common.record_not_found", Message: "record not found"})
		return
	}

	// internal details stay in the log
	entry.WithError(genericErr).WithField("stack", string(debug.Stack())).Error("request failed")
	abortWith(c, http.StatusInternalServerError, &common.ErrorBody{Code: "common.internal_server_error", Message: "internal server error"})
}

func abortWith(c *gin.Context, status int, body *common.ErrorBody) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(status, body)
}
