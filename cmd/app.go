package cmd

import (
	"fmt"
	"io"

	"github.com/AnyUserName/imgpress/internal/config"
	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/manifest"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/pipeline"
	"github.com/AnyUserName/imgpress/internal/profile"
	"github.com/AnyUserName/imgpress/internal/storage"
)

// appOptions are per-command overrides of the config file.
type appOptions struct {
	profile  string
	template string
	workers  int
	quality  int
	storeDir string
}

// app is the process-wide wiring shared by the commands.
type app struct {
	cfg      *config.Config
	env      metadata.Environment
	registry *encoder.Registry
	store    *storage.Local
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

// newApp loads the configuration, derives the environment once and wires
// the pipeline.
func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		return nil, err
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.storeDir != "" {
		cfg.Storage.Root = opts.storeDir
	}
	if opts.quality > 0 {
		cfg.Encoder.Quality = opts.quality
	}
	if opts.profile != "" {
		cfg.Encoder.Profile = opts.profile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	name, err := cfg.ResolveEnvironment(envName)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, env: cfg.MetadataEnvironment(name)}

	prof, ok := profile.Lookup(cfg.Encoder.Profile)
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", pipeline.ErrUnknownProfile, cfg.Encoder.Profile, profile.Names())
	}
	if cfg.Encoder.Quality > 0 {
		prof.Quality = cfg.Encoder.Quality
	}
	if cfg.Encoder.Effort > 0 {
		prof.Effort = cfg.Encoder.Effort
	}

	a.registry = encoder.NewRegistry(cfg.Encoder.Backend, cfg.Encoder.CWebP)
	logger.Debug(a.registry.String())

	a.store, err = storage.NewLocal(cfg.Storage.Root, cfg.Storage.PublicURL, cfg.Storage.RejectExisting)
	if err != nil {
		return nil, err
	}

	var records manifest.RecordStore
	if cfg.Records.Path != "" {
		j, err := manifest.OpenJSONL(cfg.Records.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, j)
		records = j
	}

	resolver := metadata.NewResolver(a.env,
		metadata.NewCatalog(cfg.Metadata.Templates),
		metadata.WithCacheTTL(cfg.Metadata.CacheTTL),
		metadata.WithLogger(logger))

	a.pipeline = pipeline.New(pipeline.Config{
		Profile:        prof,
		Template:       opts.template,
		Workers:        cfg.Workers,
		UploadAttempts: cfg.Storage.UploadAttempts,
		UploadBackoff:  cfg.Storage.UploadBackoff,
		DigestAlgo:     cfg.Storage.Digest,
	}, pipeline.Deps{
		Encoder:  encoder.NewChain(a.registry, cfg.Limits(), logger),
		Resolver: resolver,
		Namer:    naming.New(cfg.NamingOptions(), naming.WithLogger(logger)),
		Store:    a.store,
		Records:  records,
		Registry: a.registry,
		Logger:   logger,
	})
	logger.Debug("environment", "env", a.env.Name, "profile", prof.Name, "storage", cfg.Storage.Root)
	return a, nil
}

func (a *app) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
