// Package graceful coordinates ordered shutdown of the HTTP server and the
// background workers.
package graceful

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p2ramp/settlement_service/pkg/logger"
)

// Stopper is implemented by background components that can be stopped with a
// deadline. Workers are stopped before the HTTP server so in-flight webhook
// requests drain last.
type Stopper interface {
	Stop(timeout time.Duration) error
}

type namedStopper struct {
	name    string
	stopper Stopper
}

// ShutdownManager stops registered components in registration order, then the
// HTTP server, then closes the database.
type ShutdownManager struct {
	server   *http.Server
	db       *sql.DB
	stoppers []namedStopper
	timeout  time.Duration
	logger   *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sql.DB, log *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server:  server,
		db:      db,
		timeout: 30 * time.Second,
		logger:  log,
	}
}

// Register adds a component to stop during shutdown
func (sm *ShutdownManager) Register(name string, s Stopper) {
	sm.stoppers = append(sm.stoppers, namedStopper{name: name, stopper: s})
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then runs the shutdown sequence
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully...")

	for _, ns := range sm.stoppers {
		sm.logger.Info("Stopping component", "component", ns.name)
		if err := ns.stopper.Stop(sm.timeout); err != nil {
			sm.logger.Warn("Component shutdown error", "component", ns.name, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	if sm.db != nil {
		if err := sm.db.Close(); err != nil {
			sm.logger.Warn("Database close error", "error", err)
		}
	}

	sm.logger.Info("Shutdown complete")
}
