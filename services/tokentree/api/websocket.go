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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSSearchRequest is one query on a search session.
type WSSearchRequest struct {
	Tokens []string `json:"tokens"`
	Limit  int      `json:"limit,omitempty"`
}

// WSSearchResponse answers one WSSearchRequest.
type WSSearchResponse struct {
	Action string   `json:"action"`
	IDs    []string `json:"ids,omitempty"`
	Count  int      `json:"count"`
	Error  string   `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleSearchWebSocket runs an interactive search session. The server
// first sends {"action":"session_created","session_id":...}, then answers
// each WSSearchRequest with a WSSearchResponse until the client leaves.
func HandleSearchWebSocket(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			svc.logger.Error("failed to upgrade the websocket", slog.String("error", err.Error()))
			return
		}
		defer ws.Close()
		if svc.maxBodyBytes > 0 {
			ws.SetReadLimit(svc.maxBodyBytes)
		}

		sessionID := uuid.NewString()
		logger := svc.logger.With(slog.String("session_id", sessionID))
		logger.Info("search session started")

		if err := ws.WriteJSON(gin.H{"action": "session_created", "session_id": sessionID}); err != nil {
			return
		}

		ctx := c.Request.Context()
		for {
			var req WSSearchRequest
			if err := ws.ReadJSON(&req); err != nil {
				logger.Info("search session ended", slog.String("reason", err.Error()))
				return
			}

			resp := WSSearchResponse{Action: "results"}
			if len(req.Tokens) == 0 {
				resp.Action = "error"
				resp.Error = "tokens must not be empty"
			} else {
				resp.IDs = svc.Search(ctx, req.Tokens, req.Limit)
				resp.Count = len(resp.IDs)
			}
			if err := ws.WriteJSON(resp); err != nil {
				logger.Warn("failed to write websocket JSON", slog.String("error", err.Error()))
				return
			}
		}
	}
}
