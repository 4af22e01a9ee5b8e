package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

type ShutdownFunc func(ctx context.Context) error

// WatchShutdownSignals registers the SIGINT and SIGTERM signals for
// notification, then starts a goroutine which watches for these
// signals. When one is received, executes [shutdownFunc].
// Returns a channel that is closed when [shutdownFunc] is finished.
func WatchShutdownSignals(log *zap.Logger, shutdownFunc ShutdownFunc) chan struct{} {
	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, syscall.SIGINT)
	signal.Notify(signalsChan, syscall.SIGTERM)
	closedOnShutdownCh := make(chan struct{})
	go func() {
		shutdownOnSignal(log, shutdownFunc, signalsChan, closedOnShutdownCh)
	}()
	return closedOnShutdownCh
}

// Blocks until [signalChan] receives a signal or is closed.
// Then calls [shutdownFunc], then closes [closedOnShutdownChan].
// This function should only be called once.
func shutdownOnSignal(
	log *zap.Logger,
	shutdownFunc ShutdownFunc,
	signalChan chan os.Signal,
	closedOnShutdownChan chan struct{},
) {
	sig := <-signalChan
	log.Info("got OS signal", zap.String("signal", sig.String()))
	if err := shutdownFunc(context.Background()); err != nil {
		log.Debug("error while shutting down", zap.Error(err))
	}
	signal.Reset()
	close(closedOnShutdownChan)
}
