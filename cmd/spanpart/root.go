// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tflexsoom/spanpart/internal/config"
	"github.com/tflexsoom/spanpart/store"
	"github.com/tflexsoom/spanpart/transport"
)

// app is the state shared by every command.
type app struct {
	v          *viper.Viper
	configFile string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:   "spanpart",
		Short: "Consolidate overlapping text annotations into disjoint cells",
		Long: `
spanpart keeps the annotations made on a text as a partition: every labeled
range is split against the ones it overlaps, so that each cell carries every
label active over it.

Configuration is read from spanpart.yaml in the working directory or in
./config, and from SPANPART_* environment variables. Flags override both.
`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.load(cmd) },
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "configuration file (default: spanpart.yaml)")
	flags.String("log-level", "info", "debug, info, warn or error")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))

	root.AddCommand(newServeCommand(a), newConsolidateCommand(a))
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// sinks is where snapshots go: the store and the submission endpoint, when
// configured.
type sinks struct {
	transport.Sink
	async *transport.Async
	store *store.Store
}

func (a *app) openSinks(ctx context.Context) (*sinks, error) {
	var (
		out sinks
		all []transport.Sink
	)
	if path := a.cfg.Store.Path; path != "" {
		st, err := store.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		out.store = st
		all = append(all, st)
	}
	if url := a.cfg.Submit.URL; url != "" {
		out.async = transport.NewAsync(&transport.HTTPSink{URL: url}, transport.AsyncOptions{
			Queue:  a.cfg.Submit.Queue,
			Logger: a.logger,
		})
		all = append(all, out.async)
	}

	switch len(all) {
	case 0:
		out.Sink = transport.Discard
	case 1:
		out.Sink = all[0]
	default:
		out.Sink = transport.Tee(all...)
	}
	return &out, nil
}

// dropped reports the snapshots the submission queue has dropped, or nil if
// there is no queue.
func (s *sinks) dropped() func() uint64 {
	if s.async == nil {
		return nil
	}
	return s.async.Dropped
}

// close drains the submission queue, waiting at most a few seconds, and
// closes the store.
func (s *sinks) close() error {
	var errs []error
	if s.async != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.async.Close(ctx))
		cancel()
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
