package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/q-controller/imaged/src/pkg/images"
	"github.com/q-controller/imaged/src/pkg/utils"
	"github.com/spf13/cobra"
)

// openSource prepares a local path or an http(s) URL as an upload.
func openSource(ctx context.Context, source string) (*images.Upload, error) {
	if utils.IsHTTP(source) {
		data, err := utils.DownloadFile(ctx, source, images.MaxFileSize)
		if err != nil {
			return nil, err
		}

		name := source
		if parsed, parseErr := url.Parse(source); parseErr == nil {
			name = path.Base(parsed.Path)
		}
		return &images.Upload{
			FileName:    name,
			ContentType: images.ContentTypeForFile(name),
			Size:        int64(len(data)),
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(data)), nil
			},
		}, nil
	}

	info, statErr := os.Stat(source)
	if statErr != nil {
		return nil, statErr
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", source)
	}
	return &images.Upload{
		FileName:    filepath.Base(source),
		ContentType: images.ContentTypeForFile(source),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(source)
		},
	}, nil
}

func ingest(ctx context.Context, service *images.Service, sources []string) []*images.UploadResult {
	results := make([]*images.UploadResult, 0, len(sources))
	for _, source := range sources {
		upload, err := openSource(ctx, source)
		if err != nil {
			message := err.Error()
			if errors.Is(err, utils.ErrTooLarge) {
				message = fmt.Sprintf("File size exceeds %dMB limit", images.MaxFileSize/1_000_000)
			}
			results = append(results, &images.UploadResult{OriginalFileName: source, Error: message})
			continue
		}
		results = append(results, service.ProcessUpload(ctx, upload))
	}
	return results
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|url>...",
	Short: "Ingests local files or URLs into the configured storage",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, configErr := loadConfig(cmd)
		if configErr != nil {
			return configErr
		}

		ctx := context.Background()
		service, store, serviceErr := createService(ctx, config)
		if serviceErr != nil {
			return serviceErr
		}
		defer closeStore(store)

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(ingest(ctx, service, args))
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	addConfigFlags(ingestCmd)
}
