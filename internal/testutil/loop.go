package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/roach88/radiocap/internal/loop"
)

// Epoch is the start time of every manual test clock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewLoop returns a loop driven by a manual clock at Epoch. Work only runs
// through Drain and Advance.
func NewLoop() (*loop.Loop, *loop.ManualClock) {
	clock := loop.NewManualClock(Epoch)
	return loop.New(loop.WithClock(clock), loop.WithLogger(DiscardLogger())), clock
}
