// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tokentree/services/tokentree/api"
	"github.com/AleutianAI/tokentree/services/tokentree/corpus"
	"github.com/AleutianAI/tokentree/services/tokentree/telemetry"
)

func newServeCmd(st *cliState) *cobra.Command {
	var (
		flags corpusFlags
		addr  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				st.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				st.cfg.Corpus.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return st.serve(ctx, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "ingest corpus files added to the corpus directory")
	return cmd
}

// newService builds the index service, preloaded with the configured
// corpus. An empty corpus directory is allowed: the server can start empty
// and fill up through the API or the watcher.
func (st *cliState) newService(ctx context.Context, flags corpusFlags) (*api.Service, error) {
	idx, err := st.newIndex()
	if err != nil {
		return nil, err
	}
	svc := api.NewService(idx, api.ServiceOptions{
		WriteRate:    st.cfg.Server.WriteRate,
		WriteBurst:   st.cfg.Server.WriteBurst,
		MaxResults:   st.cfg.Server.MaxResults,
		MaxTokens:    st.cfg.Server.MaxTokens,
		MaxBodyBytes: st.cfg.Server.MaxBodyBytes,
		Logger:       st.logger.Slog(),
	})

	texts, err := st.loadCorpus(ctx, flags)
	if err != nil && !errors.Is(err, corpus.ErrEmptyCorpus) {
		return nil, err
	}
	if len(texts) > 0 {
		if _, err := corpus.Ingest(ctx, svc, texts, st.logger.Slog()); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// watchHandler ingests the texts of changed corpus files into svc. A file
// that fails to load is logged and skipped.
func (st *cliState) watchHandler(svc *api.Service) corpus.FileHandler {
	logger := st.logger.Slog()
	return func(ctx context.Context, paths []string) {
		for _, path := range paths {
			texts, err := corpus.LoadFile(path)
			if err != nil {
				logger.Warn("skipping corpus file", slog.String("path", path), slog.String("error", err.Error()))
				continue
			}
			n, err := corpus.Ingest(ctx, svc, texts, logger)
			if err != nil {
				logger.Error("corpus file partially ingested",
					slog.String("path", path), slog.Int("inserted", n), slog.String("error", err.Error()))
			}
		}
	}
}

func (st *cliState) serve(ctx context.Context, flags corpusFlags) error {
	logger := st.logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, st.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	svc, err := st.newService(ctx, flags)
	if err != nil {
		return err
	}

	watchDir := flags.dir
	if watchDir == "" {
		watchDir = st.cfg.Corpus.Dir
	}
	if st.cfg.Corpus.Watch {
		if watchDir == "" {
			return errors.New("--watch needs a corpus directory (--dir or corpus.dir)")
		}
		w, err := corpus.NewWatcher(watchDir, st.watchHandler(svc), &corpus.WatcherOptions{
			DebounceWindow: 200 * time.Millisecond,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", watchDir, err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("watch %s: %w", watchDir, err)
		}
		defer w.Stop()
		logger.Info("watching corpus directory", slog.String("dir", watchDir))
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(svc, st.cfg.Telemetry.ServiceName, telemetry.MetricsHandler())
	return api.Serve(ctx, st.cfg.Server.Addr, router, st.cfg.Server.ShutdownTimeout, logger)
}
