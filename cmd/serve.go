package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/fixture"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

var (
	serveFixtures string
	serveAddr     string
	serveDelay    time.Duration
	serveEncoding string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recorded streams behind the backend's chat routes",
	Long: `Serve a directory of recorded NDJSON streams, history.json and
state.json behind the agent backend's routes, for offline development
and demos.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := fixture.LoadFixtures(serveFixtures)
		if err != nil {
			return err
		}
		fx.Delay = serveDelay
		fx.Encoding = serveEncoding

		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           fixture.NewServer(fx).Engine(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		log := logger.WithComponent("serve")
		errCh := make(chan error, 1)
		go func() {
			log.Info("fixture server listening", "addr", serveAddr, "streams", len(fx.Streams))
			errCh <- srv.ListenAndServe()
		}()
		fmt.Fprintf(cmd.ErrOrStderr(), "serving %d streams on %s\n", len(fx.Streams), serveAddr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFixtures, "fixtures", "testdata/fixtures", "directory of recorded streams")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5050", "listen address")
	serveCmd.Flags().DurationVar(&serveDelay, "delay", 0, "pause between streamed lines")
	serveCmd.Flags().StringVar(&serveEncoding, "encoding", "", "compress streams: br or gzip")
	rootCmd.AddCommand(serveCmd)
}
