package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// Server serves a bundle directory over HTTP on loopback.
type Server struct {
	listener net.Listener
	server   *http.Server
	done     chan error
}

// Start serves dir on addr. An empty addr or port 0 picks a free port.
func Start(dir, addr string) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &Server{
		listener: listener,
		done:     make(chan error, 1),
		server: &http.Server{
			Handler:           noCache(http.FileServer(http.Dir(dir))),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		err := srv.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		srv.done <- err
	}()

	return srv, nil
}

// URL returns the URL of a file in the served directory.
func (s *Server) URL(filename string) string {
	return fmt.Sprintf("http://%s/%s", s.Addr(), filename)
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Wait blocks until ctx is done, then shuts the server down.
func (s *Server) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-s.done:
		return err
	}
}

// Stop shuts down the server. The served directory is left in place.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// noCache makes browsers pick up a regenerated bundle on reload.
func noCache(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}
