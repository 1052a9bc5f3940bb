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
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tokentree/cmd/tokentree/config"
	"github.com/AleutianAI/tokentree/pkg/logging"
	"github.com/AleutianAI/tokentree/services/tokentree/corpus"
	"github.com/AleutianAI/tokentree/services/tokentree/index"
)

// cliState is shared by all subcommands of one invocation.
type cliState struct {
	configPath string
	format     string
	logLevel   string

	cfg    config.Config
	logger *logging.Logger
}

// corpusFlags select the corpus a subcommand loads. Empty flags fall back
// to the corpus section of the config file.
type corpusFlags struct {
	files []string
	dir   string
}

func (f *corpusFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.files, "corpus", nil, "corpus YAML file (repeatable)")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory of corpus YAML files")
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:   "tokentree",
		Short: "Index token sequences and find the texts containing a token run",
		Long: `tokentree builds a generalized suffix tree over tokenized texts and
answers "which texts contain this run of tokens" in time proportional to the
run length plus the number of matching texts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.logger != nil {
				_ = st.logger.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&st.configPath, "config", "tokentree.yaml", "config file (defaults apply when missing)")
	pf.StringVar(&st.format, "format", formatAuto, "output format: auto, text or json")
	pf.StringVar(&st.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(newSearchCmd(st), newStatsCmd(st), newServeCmd(st))
	return root
}

// setup loads the config and builds the logger before any subcommand runs.
func (st *cliState) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	if st.logLevel != "" {
		cfg.Logging.Level = st.logLevel
	}
	lc, err := cfg.LoggerConfig(cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()

	format, err := resolveFormat(st.format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	st.cfg = cfg
	st.format = format
	st.logger = logging.New(lc)
	return nil
}

// loadCorpus loads the texts named by flags, or by the config file when no
// flag is set. The directory is read before the files.
func (st *cliState) loadCorpus(ctx context.Context, flags corpusFlags) ([]corpus.Text, error) {
	files, dir := flags.files, flags.dir
	if len(files) == 0 && dir == "" {
		files, dir = st.cfg.Corpus.Files, st.cfg.Corpus.Dir
	}

	var texts []corpus.Text
	if dir != "" {
		loaded, err := corpus.LoadDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		texts = append(texts, loaded...)
	}
	if len(files) > 0 {
		loaded, err := corpus.LoadFiles(ctx, files)
		if err != nil {
			return nil, err
		}
		texts = append(texts, loaded...)
	}
	return texts, nil
}

// newIndex builds an empty index from the index section of the config.
func (st *cliState) newIndex() (*index.Index[string, string], error) {
	opts, err := st.cfg.IndexOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, index.WithLogger(st.logger.Slog()))
	return index.New[string, string](opts...), nil
}

// buildIndex loads the corpus into a fresh index.
func (st *cliState) buildIndex(ctx context.Context, flags corpusFlags) (*index.Index[string, string], error) {
	texts, err := st.loadCorpus(ctx, flags)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no corpus given: use --corpus, --dir or the corpus section of the config")
	}
	idx, err := st.newIndex()
	if err != nil {
		return nil, err
	}
	if _, err := corpus.Ingest(ctx, idx, texts, st.logger.Slog()); err != nil {
		return nil, err
	}
	return idx, nil
}

// searchResult is the JSON payload of `tokentree search`.
type searchResult struct {
	Tokens []string `json:"tokens"`
	IDs    []string `json:"ids"`
	Count  int      `json:"count"`
}

func newSearchCmd(st *cliState) *cobra.Command {
	var (
		flags corpusFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search [flags] token...",
		Short: "Print the ids of the corpus texts containing the token run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			ctx := cmd.Context()

			idx, err := st.buildIndex(ctx, flags)
			if err != nil {
				return err
			}

			ids := idx.SearchLimit(ctx, args, limit).ToSlice()
			slices.Sort(ids)
			st.logger.Debug("search finished",
				slog.String("query", strings.Join(args, " ")),
				slog.Int("matches", len(ids)))

			result := searchResult{Tokens: args, IDs: ids, Count: len(ids)}
			return writeResult(cmd.OutOrStdout(), st.format, "search", start, result, func(w io.Writer) error {
				for _, id := range ids {
					if _, err := fmt.Fprintln(w, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many ids (0 = all)")
	return cmd
}

func newStatsCmd(st *cliState) *cobra.Command {
	var flags corpusFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Build the index for a corpus and print its statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			idx, err := st.buildIndex(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if err := idx.Validate(); err != nil {
				return err
			}

			stats := idx.Stats()
			return writeResult(cmd.OutOrStdout(), st.format, "stats", start, stats, func(w io.Writer) error {
				_, err := fmt.Fprintf(w,
					"texts:  %d\ntokens: %d\nnodes:  %d\nedges:  %d\nsplits: %d\n",
					stats.Texts, stats.Tokens, stats.Nodes, stats.Edges, stats.Splits)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}
