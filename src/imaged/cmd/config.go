package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/q-controller/imaged/src/pkg/images"
	"github.com/q-controller/imaged/src/pkg/images/storage"
	"github.com/q-controller/imaged/src/pkg/images/transcode"
	"github.com/q-controller/imaged/src/pkg/utils"
	"github.com/spf13/cobra"
)

const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

type StorageConfig struct {
	Backend string              `yaml:"backend"`
	Root    string              `yaml:"root"`
	Minio   storage.MinioConfig `yaml:"minio"`
}

type EncodingConfig struct {
	Quality  int  `yaml:"quality"`
	Lossless bool `yaml:"lossless"`
}

type CacheConfig struct {
	MetadataEntries int `yaml:"metadataEntries"`
}

type Config struct {
	Port     int            `yaml:"port"`
	Storage  StorageConfig  `yaml:"storage"`
	Encoding EncodingConfig `yaml:"encoding"`
	Cache    CacheConfig    `yaml:"cache"`
	Inbox    string         `yaml:"inbox"`
}

func defaultConfig() *Config {
	return &Config{
		Port: 8080,
		Storage: StorageConfig{
			Backend: BackendLocal,
			Root:    "./storage",
		},
		Encoding: EncodingConfig{
			Quality: 80,
		},
		Cache: CacheConfig{
			MetadataEntries: 1024,
		},
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Encoding.Quality < 1 || c.Encoding.Quality > 100 {
		return fmt.Errorf("encoding quality must be within 1..100, got %d", c.Encoding.Quality)
	}
	if c.Cache.MetadataEntries < 0 {
		return errors.New("cache.metadataEntries cannot be negative")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.Root == "" {
			return errors.New("storage.root is required for the local backend")
		}
	case BackendMinio:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*Config, error) {
	configPath, configPathErr := cmd.Flags().GetString("config")
	if configPathErr != nil {
		return nil, fmt.Errorf("failed to get config: %w", configPathErr)
	}

	config := defaultConfig()
	if unmarshalErr := utils.Unmarshal(config, configPath); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	if cmd.Flags().Changed("storage-root") {
		root, _ := cmd.Flags().GetString("storage-root")
		config.Storage.Root = root
	}
	if validateErr := config.validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, validateErr)
	}

	slog.Debug("Read config", "path", configPath, "backend", config.Storage.Backend, "port", config.Port)
	return config, nil
}

func openStore(ctx context.Context, config *Config) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch config.Storage.Backend {
	case BackendMinio:
		backend, err = storage.NewMinioBackend(ctx, config.Storage.Minio)
	default:
		backend, err = storage.NewLocalFilesystemBackend(config.Storage.Root)
	}
	if err != nil {
		return nil, err
	}

	if config.Cache.MetadataEntries == 0 {
		return backend, nil
	}
	cached, cacheErr := storage.NewCachedBackend(backend, config.Cache.MetadataEntries)
	if cacheErr != nil {
		return nil, errors.Join(cacheErr, backend.Close())
	}
	return cached, nil
}

// createService opens the configured store and builds the ingestion service
// on top of it. The caller owns the returned store.
func createService(ctx context.Context, config *Config, opts ...images.Option) (*images.Service, storage.Backend, error) {
	store, storeErr := openStore(ctx, config)
	if storeErr != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", storeErr)
	}

	transcoder := transcode.NewTranscoder(nil, transcode.NewWebPEncoder(transcode.Options{
		Quality:  config.Encoding.Quality,
		Lossless: config.Encoding.Lossless,
	}))
	service, serviceErr := images.NewService(transcoder, store, opts...)
	if serviceErr != nil {
		return nil, nil, errors.Join(serviceErr, store.Close())
	}
	return service, store, nil
}

func closeStore(store storage.Backend) {
	if err := store.Close(); err != nil {
		slog.Error("Failed to close storage", "error", err)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to config file")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(fmt.Errorf("failed to mark flag `config` as required: %w", err))
	}
	cmd.Flags().String("storage-root", "", "Overrides storage.root from the config file")
}
