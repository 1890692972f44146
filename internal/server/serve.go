package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Serve runs srv until ctx is canceled, then shuts it down within the
// grace window. Connections that do not drain in time surface the
// shutdown context's deadline error. A nil listener binds srv.Addr.
func Serve(ctx context.Context, srv *http.Server, listener net.Listener, grace time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("relay listening", zap.String("address", srv.Addr))
		var err error
		if listener != nil {
			err = srv.Serve(listener)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
