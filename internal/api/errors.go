/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"errors"
	"net/http"

	"mortgage-ledger-go/internal/ledger"
	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/pipeline"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errInvalidRequest = errors.New("invalid request")

// ErrorHandlingMiddleware renders the last error recorded on the context.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, message := mapError(lastErr.Err)
		if status == http.StatusInternalServerError {
			zap.L().Error("Request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(lastErr.Err))
		}
		c.AbortWithStatusJSON(status, models.ErrorResponse{Message: message})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrApplicationNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, pipeline.ErrUnknownJob):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ledger.ErrDuplicateApplication),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrStateMismatch),
		errors.Is(err, ledger.ErrConcurrentTransition),
		errors.Is(err, pipeline.ErrJobRunning):
		return http.StatusConflict, err.Error()
	case errors.Is(err, ledger.ErrInvalidApplication),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
