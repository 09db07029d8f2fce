// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/binkynet/PWMWorker/pkg/pca9685"
	"github.com/binkynet/PWMWorker/pkg/service"
)

type dutyCycleRequest struct {
	On  *int `json:"on"`
	Off *int `json:"off"`
}

type pulseRequest struct {
	Microseconds *int `json:"microseconds"`
}

type pulseResponse struct {
	Channel      int `json:"channel"`
	Microseconds int `json:"microseconds"`
}

type frequencyRequest struct {
	Hz *int `json:"hz"`
}

type outputEnableRequest struct {
	Enabled *bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Status(c.Request().Context()))
}

func (s *Server) handleGetChannels(c echo.Context) error {
	all, err := s.service.GetAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) handleSetChannels(c echo.Context) error {
	on, off, err := bindDutyCycle(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.service.SetAll(ctx, on, off); err != nil {
		return err
	}
	all, err := s.service.GetAll(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, all)
}

func (s *Server) handleGetChannel(c echo.Context) error {
	channel, err := channelParam(c)
	if err != nil {
		return err
	}
	ch, err := s.service.GetChannel(c.Request().Context(), channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (s *Server) handleSetChannel(c echo.Context) error {
	channel, err := channelParam(c)
	if err != nil {
		return err
	}
	on, off, err := bindDutyCycle(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.service.SetChannel(ctx, channel, on, off); err != nil {
		return err
	}
	ch, err := s.service.GetChannel(ctx, channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (s *Server) handleGetPulse(c echo.Context) error {
	channel, err := channelParam(c)
	if err != nil {
		return err
	}
	us, err := s.service.GetPulseWidth(c.Request().Context(), channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pulseResponse{Channel: channel, Microseconds: us})
}

func (s *Server) handleSetPulse(c echo.Context) error {
	channel, err := channelParam(c)
	if err != nil {
		return err
	}
	var req pulseRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Microseconds == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "microseconds is required")
	}
	ctx := c.Request().Context()
	if err := s.service.SetPulseWidth(ctx, channel, *req.Microseconds); err != nil {
		return err
	}
	us, err := s.service.GetPulseWidth(ctx, channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pulseResponse{Channel: channel, Microseconds: us})
}

func (s *Server) handleGetFrequency(c echo.Context) error {
	f, err := s.service.GetPWMFrequency(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleSetFrequency(c echo.Context) error {
	var req frequencyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Hz == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "hz is required")
	}
	ctx := c.Request().Context()
	if err := s.service.SetPWMFrequency(ctx, *req.Hz); err != nil {
		return err
	}
	f, err := s.service.GetPWMFrequency(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleSetOutputEnable(c echo.Context) error {
	var req outputEnableRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Enabled == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "enabled is required")
	}
	ctx := c.Request().Context()
	if err := s.service.SetOutputEnabled(ctx, *req.Enabled); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.service.Status(ctx))
}

func (s *Server) handleInitialize(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.service.Reinitialize(ctx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.service.Status(ctx))
}

// channelParam parses the :channel path parameter.
// Range checks are left to the service.
func channelParam(c echo.Context) (int, error) {
	channel, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "channel must be a number")
	}
	return channel, nil
}

// bindDutyCycle parses an {"on":..,"off":..} body.
func bindDutyCycle(c echo.Context) (int, int, error) {
	var req dutyCycleRequest
	if err := c.Bind(&req); err != nil {
		return 0, 0, err
	}
	if req.On == nil || req.Off == nil {
		return 0, 0, echo.NewHTTPError(http.StatusBadRequest, "on and off are required")
	}
	return *req.On, *req.Off, nil
}

// httpStatus maps a service error to a HTTP status code.
func httpStatus(err error) int {
	switch {
	case pca9685.IsInvalidArgument(err):
		return http.StatusBadRequest
	case pca9685.IsNotInitialized(err), pca9685.IsInvalidState(err),
		service.IsNotConfigured(err), service.IsNoOutputEnablePin(err):
		return http.StatusConflict
	default:
		// Bus failures and everything else the chip did not accept
		return http.StatusBadGateway
	}
}

// errorHandler writes errors as JSON.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	} else {
		code = httpStatus(err)
		if code == http.StatusBadGateway {
			s.log.Warn().Err(err).Str("path", c.Path()).Msg("Request failed")
		}
	}
	if c.Request().Method == http.MethodHead {
		c.NoContent(code)
		return
	}
	c.JSON(code, errorResponse{Error: msg})
}
