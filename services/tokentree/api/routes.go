// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// SetupRoutes registers every route on router. metrics may be nil, in
// which case /metrics is not served.
func SetupRoutes(router *gin.Engine, svc *Service, metrics http.Handler) {
	router.GET("/health", HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1", BodyLimit(svc.maxBodyBytes))
	{
		writes := v1.Group("", RateLimit(svc))
		{
			writes.POST("/texts", HandleInsert(svc))
			writes.POST("/texts/batch", HandleInsertBatch(svc))
		}
		v1.POST("/search", HandleSearch(svc))
		v1.POST("/contains", HandleContains(svc))
		v1.GET("/search/ws", HandleSearchWebSocket(svc))
		v1.GET("/stats", HandleStats(svc))
	}
}

// NewRouter builds a gin engine with recovery, tracing, request ids and
// all routes.
func NewRouter(svc *Service, serviceName string, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestID())
	SetupRoutes(router, svc, metrics)
	return router
}

// RequestID echoes the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// BodyLimit caps request bodies at limit bytes. Reads past the cap fail
// and the handlers answer 413. A limit <= 0 disables the cap.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RateLimit rejects write requests beyond the service's write rate with
// 429 Too Many Requests.
func RateLimit(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !svc.allowWrite() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "write rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Serve runs router on addr until ctx is done, then shuts down gracefully
// within shutdownTimeout.
func Serve(ctx context.Context, addr string, router http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
