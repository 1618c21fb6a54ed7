package signals_test

import (
	"os"
	"os/signal"
	"syscall"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/signals"
)

func TestSignals(t *testing.T) {
	var (
		c = make(chan os.Signal, 1)
		g errgroup.Group
	)

	signal.Notify(c, signals.TerminationSignals...)

	g.Go(func() error {
		p, err := os.FindProcess(os.Getpid())
		if err != nil {
			return errors.Wrap(err, "could not find own process")
		}
		p.Signal(os.Interrupt)
		return nil
	})

	g.Go(func() error {
		if got, expected := <-c, os.Interrupt; got != expected {
			return errors.Errorf("unexpected signal %v (expected %v)", got, expected)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Error(err)
	}
}

func TestIncludesSIGTERM(t *testing.T) {
	for _, s := range signals.TerminationSignals {
		if s == syscall.SIGTERM {
			return
		}
	}
	t.Error("SIGTERM is not a termination signal")
}
