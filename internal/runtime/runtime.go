package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/archive"
	cfgpkg "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/config"
	pebblestore "github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/pebble"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/storage/files"
	"github.com/tinkertanker/bamboobot-cert-generator-sub002/internal/usage"
)

// Options for building the Runtime.
type Options struct {
	// DataDir overrides Config.DataDir when set.
	DataDir string
	Fsync   pebblestore.FsyncMode
	Config  cfgpkg.Config
}

// Runtime owns the process-wide resources shared by services: the session
// archive, the attachment usage ledger, document storage and, when
// configured, the Redis client behind the shared email limiter.
type Runtime struct {
	db      *pebblestore.DB
	archive *archive.Store
	ledger  *usage.Ledger
	files   *files.Local
	redis   redis.UniversalClient
	config  cfgpkg.Config
}

// Open initializes storage under the data dir and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if cfg.DataDir == "" {
		return nil, errors.New("runtime: data dir is required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.DataDir, "certificates")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("runtime: %w", err)
	}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: filepath.Join(cfg.DataDir, "archive"), Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	ledger, err := usage.Open(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rt := &Runtime{
		db:      db,
		archive: archive.New(db),
		ledger:  ledger,
		files:   files.NewLocal(cfg.OutputDir),
		config:  cfg,
	}
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	var errs []error
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.ledger != nil {
		errs = append(errs, r.ledger.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies that every backing store answers.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("archive not open")
	}
	if err := r.db.Scan([]byte("health/"), func(_, _ []byte) bool { return false }); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := r.ledger.Ping(ctx); err != nil {
		return fmt.Errorf("usage ledger: %w", err)
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Archive returns the session archive.
func (r *Runtime) Archive() *archive.Store { return r.archive }

// Ledger returns the attachment usage ledger.
func (r *Runtime) Ledger() *usage.Ledger { return r.ledger }

// Files returns the local document storage.
func (r *Runtime) Files() *files.Local { return r.files }

// Redis returns the shared Redis client, or nil when none is configured.
func (r *Runtime) Redis() redis.UniversalClient { return r.redis }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
