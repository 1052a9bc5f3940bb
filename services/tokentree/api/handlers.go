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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/tokentree/services/tokentree/corpus"
	"github.com/AleutianAI/tokentree/services/tokentree/index"
	"github.com/AleutianAI/tokentree/services/tokentree/telemetry"
)

// InsertRequest is the body of POST /v1/texts.
type InsertRequest struct {
	// ID tags the text. Empty means the server assigns a UUID.
	ID     string   `json:"id" binding:"max=256"`
	Tokens []string `json:"tokens" binding:"required,min=1"`
}

// InsertResponse is returned for a successful insert.
type InsertResponse struct {
	ID string `json:"id"`
}

// BatchRequest is the body of POST /v1/texts/batch.
type BatchRequest struct {
	Texts []InsertRequest `json:"texts" binding:"required,min=1,dive"`
}

// BatchResponse reports a batch insert.
type BatchResponse struct {
	Inserted int      `json:"inserted"`
	IDs      []string `json:"ids"`
	Error    string   `json:"error,omitempty"`
	TraceID  string   `json:"trace_id,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Tokens []string `json:"tokens" binding:"required,min=1"`
	Limit  int      `json:"limit" binding:"min=0"`
}

// SearchResponse lists the matching ids in sorted order.
type SearchResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// ContainsRequest is the body of POST /v1/contains.
type ContainsRequest struct {
	Tokens []string `json:"tokens" binding:"required,min=1"`
}

// ContainsResponse reports whether the token run occurs in any text.
type ContainsResponse struct {
	Exists bool `json:"exists"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleInsert inserts one text.
func HandleInsert(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InsertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindStatus(err), err)
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		ctx := c.Request.Context()
		if err := svc.Insert(ctx, req.Tokens, req.ID); err != nil {
			telemetry.LoggerWithTrace(ctx, svc.logger).Warn("insert rejected",
				slog.String("id", req.ID), slog.String("error", err.Error()))
			respondError(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusCreated, InsertResponse{ID: req.ID})
	}
}

// HandleInsertBatch inserts several texts in order. On failure the texts
// before the failing one stay inserted and the response says how many.
func HandleInsertBatch(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindStatus(err), err)
			return
		}

		texts := make([]corpus.Text, len(req.Texts))
		ids := make([]string, len(req.Texts))
		for i, t := range req.Texts {
			if t.ID == "" {
				t.ID = uuid.NewString()
			}
			texts[i] = corpus.Text{ID: t.ID, Tokens: t.Tokens, Source: "request"}
			ids[i] = t.ID
		}

		ctx := c.Request.Context()
		n, err := svc.InsertBatch(ctx, texts)
		if err != nil {
			telemetry.LoggerWithTrace(ctx, svc.logger).Warn("batch insert stopped",
				slog.Int("inserted", n), slog.String("error", err.Error()))
			telemetry.RecordError(trace.SpanFromContext(ctx), err)
			c.JSON(statusFor(err), BatchResponse{
				Inserted: n,
				IDs:      ids[:n],
				Error:    err.Error(),
				TraceID:  telemetry.TraceID(ctx),
			})
			return
		}
		c.JSON(http.StatusCreated, BatchResponse{Inserted: n, IDs: ids})
	}
}

// HandleSearch returns the ids of texts containing the token run.
func HandleSearch(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindStatus(err), err)
			return
		}
		ids := svc.Search(c.Request.Context(), req.Tokens, req.Limit)
		c.JSON(http.StatusOK, SearchResponse{IDs: ids, Count: len(ids)})
	}
}

// HandleContains reports whether the token run occurs in any text without
// collecting ids.
func HandleContains(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ContainsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, bindStatus(err), err)
			return
		}
		c.JSON(http.StatusOK, ContainsResponse{Exists: svc.Contains(req.Tokens)})
	}
}

// HandleStats returns index statistics.
func HandleStats(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Stats())
	}
}

// respondError marks the request span failed and writes a JSON error body
// carrying the trace id, if any.
func respondError(c *gin.Context, status int, err error) {
	ctx := c.Request.Context()
	telemetry.RecordError(trace.SpanFromContext(ctx), err)
	body := gin.H{"error": err.Error()}
	if id := telemetry.TraceID(ctx); id != "" {
		body["trace_id"] = id
	}
	c.AbortWithStatusJSON(status, body)
}

// bindStatus maps a request binding error to 413 when the body limit was
// hit and 400 otherwise.
func bindStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// statusFor maps index errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrTooManyTokens):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, index.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrMaxTextsExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}
