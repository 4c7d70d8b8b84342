package servehttp

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownTimeout bounds how long in-flight requests may drain.
var ShutdownTimeout = 3 * time.Second

// StartHTTPServer serves handler on addr until SIGINT or SIGTERM is received.
func StartHTTPServer(addr string, handler http.Handler) error {
	// kill (no param) default send syscall.SIGTERM
	// kill -2 send syscall.SIGINT
	// kill -9 send syscall.SIGKILL, can't be caught
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunHTTPServer(ctx, &http.Server{Addr: addr, Handler: handler})
}

// RunHTTPServer serves until ctx is done and then shuts srv down gracefully.
func RunHTTPServer(ctx context.Context, srv *http.Server) error {
	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logrus.Infof("[QUIT] shutdown signal has been received, the service will exit in %v.", ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("[QUIT] http server shutdown failed: %v", err)
		return err
	}
	logrus.Info("[QUIT] http server is shutdown gracefully, new request will be rejected.")
	return nil
}
