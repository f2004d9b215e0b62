package api

import (
	"context"

	"go-customer-intel/internal/api/handler"
	"go-customer-intel/internal/config"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/pipeline"
	"go-customer-intel/internal/store"
	"go-customer-intel/pkg/utils"
)

// Serve wires the manager, the optional warehouse and the HTTP routes from
// cfg, and serves until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, version string) error {
	log := logger.Named("server")
	params := cfg.ToRunParams()

	outputs := utils.NewOutputManager(params.OutputDir)
	if err := outputs.EnsureOutputDirExists(); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	mcfg := pipeline.ManagerConfig{
		DataDir:  cfg.Data.Dir,
		DataPath: cfg.Data.Path,
		MinRows:  cfg.Data.MinRows,
		Params:   params,
	}
	opts := []handler.Option{handler.WithVersion(version)}

	if cfg.Store.Enabled {
		wh, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer wh.Close()
		mcfg.Store = wh
		opts = append(opts, handler.WithCatalog(wh))
		log.Infow("Analytics warehouse opened", "path", wh.Path())
	}

	manager := pipeline.NewManager(mcfg)
	if _, err := manager.ValidateActive(ctx); err != nil {
		log.Warnw("Configured dataset is not usable; activate or upload one", "path", cfg.Data.Path, "error", err)
	}

	r := NewRouter(cfg.Server.Mode, handler.New(manager, outputs, opts...))
	err := r.Start(ctx, cfg.Server.Addr)

	if cancelErr := manager.Cancel(); cancelErr == nil {
		log.Infow("Cancelled active run for shutdown")
	}
	manager.Wait()
	return err
}
