package cmd

import (
	"context"
	"os"
	"os/user"

	"github.com/rs/zerolog"

	"github.com/clovenbradshaw-ctrl/eosync/internal/config"
	"github.com/clovenbradshaw-ctrl/eosync/internal/workspace"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/activity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/identity"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/record"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/remote"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/resolve"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/rewind"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/syncer"
	"github.com/clovenbradshaw-ctrl/eosync/pkg/tracker"
)

// app carries the loaded configuration and lazily built services shared
// by the subcommands for one invocation.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
}

// services is everything a subcommand can need, built once per run.
// Close releases the activity store and flushes the tracker.
type services struct {
	ws      *workspace.File
	log     activity.Log
	tracker *tracker.Tracker
	orch    *syncer.Orchestrator
	engine  *rewind.Engine

	closers []func() error
}

func (s *services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// build wires the reconciliation core from configuration. needRemote
// controls whether a missing remote configuration is an error; read-only
// commands (timeline, rewind, diff) work without one.
func (a *app) build(needRemote bool) (*services, error) {
	s := &services{}

	ws, err := workspace.Open(a.cfg.Workspace.Path)
	if err != nil {
		return nil, err
	}
	s.ws = ws

	if a.cfg.Activity.Path != "" {
		bolt, err := activity.OpenBolt(a.cfg.Activity.Path)
		if err != nil {
			return nil, err
		}
		s.log = bolt
		s.closers = append(s.closers, bolt.Close)
	} else {
		s.log = activity.NewMemLog()
	}

	ident := identity.Fallback(identity.Static(currentAgent()))

	s.tracker = tracker.New(s.log, ident,
		tracker.WithBatchSize(a.cfg.BatchSize),
		tracker.WithBatchDelay(a.cfg.BatchDelay),
		tracker.WithUndoCapacity(a.cfg.UndoCapacity),
		tracker.WithLogger(a.logger))
	s.closers = append(s.closers, func() error {
		return s.tracker.Close(context.Background())
	})

	s.engine, err = rewind.New(rewind.Deps{
		Log:       s.log,
		Tracker:   s.tracker,
		Workspace: ws,
	}, rewind.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	var store remote.Store
	switch {
	case a.cfg.Remote.BaseURL != "":
		store = remote.NewHTTPStore(a.cfg.Remote.BaseURL, a.cfg.Remote.Token)
	case needRemote:
		return nil, errors.NewConfigError("remote", "remote.base_url is required for sync", nil)
	default:
		store = remote.NewMemStore()
	}

	s.orch, err = syncer.New(syncer.Deps{
		Workspace: ws,
		Store:     store,
		Table:     a.cfg.Remote.Table,
		Tracker:   s.tracker,
		Resolver:  resolve.New(),
		Log:       s.log,
		Identity:  ident,
	},
		syncer.WithStrategy(a.cfg.Strategy),
		syncer.WithDirection(a.cfg.Direction),
		syncer.WithInterval(a.cfg.SyncInterval),
		syncer.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}

	return s, nil
}

// currentAgent identifies the operator from the environment.
func currentAgent() record.Agent {
	name := os.Getenv("EOSYNC_AGENT")
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	if name == "" {
		return record.SystemAgent
	}
	return record.Agent{ID: "user:" + name, Name: name, Kind: "user"}
}
