// Copyright 2023 Ewout Prangsma
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
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/PWMWorker/pkg/service"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	service service.Service
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, svc service.Service) *Server {
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		service: svc,
	}
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	// Prepare HTTP listener
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}

	// Prepare HTTP server
	httpSrv := http.Server{
		Handler: s.newRouter(),
	}

	// Serve apis
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return errors.Wrap(err, "failed to serve HTTP server")
	}

	log.Info().Msg("Closing server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	return nil
}

// newRouter creates the echo router with all routes.
func (s *Server) newRouter() *echo.Echo {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.HidePort = true
	httpRouter.HTTPErrorHandler = s.errorHandler
	httpRouter.Use(requestMetrics)

	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))

	v1 := httpRouter.Group("/v1")
	v1.GET("/status", s.handleGetStatus)
	v1.GET("/channels", s.handleGetChannels)
	v1.PUT("/channels", s.handleSetChannels)
	v1.GET("/channels/:channel", s.handleGetChannel)
	v1.PUT("/channels/:channel", s.handleSetChannel)
	v1.GET("/channels/:channel/pulse", s.handleGetPulse)
	v1.PUT("/channels/:channel/pulse", s.handleSetPulse)
	v1.GET("/frequency", s.handleGetFrequency)
	v1.PUT("/frequency", s.handleSetFrequency)
	v1.PUT("/output-enable", s.handleSetOutputEnable)
	v1.POST("/initialize", s.handleInitialize)
	return httpRouter
}

// requestMetrics records the duration of every request.
func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		code := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		} else if err != nil {
			code = httpStatus(err)
		}
		httpRequestDuration.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(code)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
