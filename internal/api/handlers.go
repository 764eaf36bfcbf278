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
	"fmt"
	"net/http"
	"strconv"

	"mortgage-ledger-go/internal/models"
	"mortgage-ledger-go/internal/pipeline"

	"github.com/gin-gonic/gin"
)

func (s *Server) Health(c *gin.Context) {
	if err := s.service.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CreateApplication(c *gin.Context) {
	var req models.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	app, err := s.service.SubmitApplication(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (s *Server) GetApplication(c *gin.Context) {
	id, ok := applicationId(c)
	if !ok {
		return
	}

	app, err := s.service.GetApplication(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) ListApplications(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		AbortWithError(c, fmt.Errorf("%w: state query parameter is required", errInvalidRequest))
		return
	}
	s.listByState(c, state)
}

func (s *Server) ListPending(c *gin.Context) {
	s.listByState(c, models.StateAwaitingReview.String())
}

func (s *Server) listByState(c *gin.Context, state string) {
	resp, err := s.service.ListApplications(c.Request.Context(), state)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) UpdateStatus(c *gin.Context) {
	id, ok := applicationId(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}

	app, err := s.service.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) TriggerProcess(c *gin.Context) {
	s.trigger(c, pipeline.JobProcessApplications)
}

func (s *Server) TriggerSendOffers(c *gin.Context) {
	s.trigger(c, pipeline.JobSendOffers)
}

func (s *Server) trigger(c *gin.Context, job string) {
	result, err := s.service.TriggerJob(c.Request.Context(), job)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func applicationId(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		AbortWithError(c, fmt.Errorf("%w: application id must be a positive integer", errInvalidRequest))
		return 0, false
	}
	return id, true
}
