package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/config"
	"github.com/quillbooks/quillbooks/internal/dispatch"
	"github.com/quillbooks/quillbooks/internal/localstore"
	"github.com/quillbooks/quillbooks/internal/syncclient"
)

// session bundles the full client stack for one invocation.
type session struct {
	cfg        *config.ClientConfig
	dir        string
	tenantID   uuid.UUID
	api        *syncclient.APIClient
	store      *localstore.Manager
	queue      *syncclient.SQLiteQueue
	syncer     *syncclient.Syncer
	dispatcher *dispatch.Dispatcher
}

func loadConfig() (*config.ClientConfig, string, error) {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w (run 'quill init' first)", err)
	}
	return cfg, filepath.Dir(path), nil
}

func saveToken(dir, token string) error {
	return os.WriteFile(filepath.Join(dir, "token"), []byte(token), 0o600)
}

func loadToken(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "token"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("not logged in (run 'quill login')")
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// openSession builds the client stack: API client, tiered local store,
// durable queue, syncer, and dispatcher. When requireToken is set a stored
// session token must exist.
func openSession(ctx context.Context, requireToken bool) (*session, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(cfg.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id in config: %w", err)
	}

	logger := newLogger()

	api := syncclient.NewAPIClient(cfg.ServerURL, tenantID)
	if token, err := loadToken(dir); err == nil {
		api.SetToken(token)
	} else if requireToken {
		return nil, err
	}

	primary, err := localstore.NewSQLiteBackend(dir, logger)
	if err != nil {
		return nil, err
	}
	fallback, err := localstore.NewFileBackend(dir, logger)
	if err != nil {
		primary.Close()
		return nil, err
	}
	store := localstore.NewManager(tenantID, []localstore.Backend{primary, fallback}, logger)
	if err := store.Load(ctx); err != nil && !errors.Is(err, localstore.ErrSnapshotNotFound) {
		store.Close()
		return nil, err
	}

	queue, err := syncclient.NewSQLiteQueue(dir, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	syncCfg := syncclient.DefaultConfig()
	if cfg.SyncInterval > 0 {
		syncCfg.SyncInterval = cfg.SyncInterval
	}
	if cfg.MaxRetries > 0 {
		syncCfg.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryBackoff > 0 {
		syncCfg.RetryBackoff = cfg.RetryBackoff
	}
	syncer := syncclient.NewSyncer(tenantID, api, store, queue, syncCfg, logger)
	gate := &dispatch.GateCache{}
	syncer.SetGate(gate)
	if store.Loaded() {
		syncer.AdoptLocal(ctx, store.ServerSeq())
	}

	dispatcher := dispatch.New(tenantID, store, queue, gate, syncer, logger)

	return &session{
		cfg:        cfg,
		dir:        dir,
		tenantID:   tenantID,
		api:        api,
		store:      store,
		queue:      queue,
		syncer:     syncer,
		dispatcher: dispatcher,
	}, nil
}

// Close releases the session's local resources.
func (s *session) Close() {
	s.queue.Close()
	s.store.Close()
}
