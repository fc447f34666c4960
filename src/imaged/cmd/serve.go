package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/q-controller/imaged/src/imaged/cmd/utils"
	"github.com/q-controller/imaged/src/pkg/events"
	"github.com/q-controller/imaged/src/pkg/frontend"
	"github.com/q-controller/imaged/src/pkg/images"
	"github.com/q-controller/imaged/src/pkg/metrics"
	"github.com/q-controller/imaged/src/pkg/watcher"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func createMux(handler *images.Handler, publisher *events.Publisher, collector *metrics.Collector) (http.Handler, error) {
	gw := runtime.NewServeMux()
	if err := handler.Register(gw, utils.PathPrefix); err != nil {
		return nil, err
	}

	specs, specsErr := utils.GenerateOpenAPISpecs()
	if specsErr != nil {
		return nil, specsErr
	}

	mux := http.NewServeMux()
	mux.Handle("/", gw)
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/events", events.Handler(publisher))
	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		if _, err := w.Write([]byte(specs)); err != nil {
			slog.Warn("Failed to write OpenAPI specs", "error", err)
		}
	})
	mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/ui/", frontend.Handler("/ui/"))
	return mux, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, configErr := loadConfig(cmd)
		if configErr != nil {
			return configErr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		publisher := events.NewPublisher(ctx)
		collector := metrics.NewCollector()

		service, store, serviceErr := createService(ctx, config,
			images.WithPublisher(publisher),
			images.WithRecorder(collector),
		)
		if serviceErr != nil {
			return serviceErr
		}
		defer closeStore(store)

		handler, handlerErr := images.CreateHandler(service)
		if handlerErr != nil {
			return handlerErr
		}

		mux, muxErr := createMux(handler, publisher, collector)
		if muxErr != nil {
			return muxErr
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			slog.Info("Listening", "address", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		if config.Inbox != "" {
			inbox, inboxErr := watcher.NewInbox(config.Inbox, service)
			if inboxErr != nil {
				stop()
				return errors.Join(inboxErr, g.Wait())
			}
			g.Go(func() error {
				return inbox.Run(gctx)
			})
		}

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addConfigFlags(serveCmd)
}
