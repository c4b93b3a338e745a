package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitFunc is replaced in tests so a second signal does not end the test
// binary.
var exitFunc = os.Exit

// signalHandler reacts to SIGINT and SIGTERM. The first signal either
// cancels the context (one-shot commands) or runs the registered stop
// function and leaves the context alive (watch). A second signal exits
// immediately with status 1.
type signalHandler struct {
	ctx    context.Context
	cancel context.CancelFunc
	close  func()

	cancelOnSignal bool

	mu       sync.Mutex
	signaled bool
	onStop   func()
}

// shutdownContext returns a context that is canceled on the first SIGINT or
// SIGTERM. push, pull and sync use it: interrupting them kills the scp or
// rsync child.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	h := handleSignals(parent, logger, true)
	return h.ctx, h.close
}

// gracefulShutdown returns a handler whose context survives the first
// signal. That signal only calls the function registered with OnStop, so a
// remote command already running completes before the session winds down.
// Close cancels the context and stops listening.
func gracefulShutdown(parent context.Context, logger *slog.Logger) *signalHandler {
	return handleSignals(parent, logger, false)
}

func handleSignals(parent context.Context, logger *slog.Logger, cancelOnSignal bool) *signalHandler {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	h := &signalHandler{
		ctx:            ctx,
		cancel:         cancel,
		cancelOnSignal: cancelOnSignal,
	}
	h.close = sync.OnceFunc(func() {
		close(done)
		cancel()
	})

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("stopping, press Ctrl+C again to force",
				slog.String("signal", sig.String()),
			)
			h.first()
		case <-done:
			return
		case <-parent.Done():
			return
		}

		if parent.Err() != nil {
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second signal, exiting now",
				slog.String("signal", sig.String()),
			)
			exitFunc(1)
		case <-done:
		}
	}()

	return h
}

func (h *signalHandler) first() {
	h.mu.Lock()
	h.signaled = true
	fn := h.onStop
	h.mu.Unlock()

	if h.cancelOnSignal {
		h.cancel()
	}

	if fn != nil {
		fn()
	}
}

// Context returns the handler's context.
func (h *signalHandler) Context() context.Context {
	return h.ctx
}

// OnStop registers fn for the first signal. If that signal already arrived,
// fn runs immediately.
func (h *signalHandler) OnStop(fn func()) {
	h.mu.Lock()
	h.onStop = fn
	signaled := h.signaled
	h.mu.Unlock()

	if signaled {
		fn()
	}
}

// Close cancels the context and stops listening. Safe to call twice.
func (h *signalHandler) Close() {
	h.close()
}
