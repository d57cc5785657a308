// Package elog wires github.com/joeycumines/logiface to
// github.com/joeycumines/stumpy's zero-alloc JSON backend, following
// logiface-stumpy's documented construction
// (stumpy.L.New(stumpy.L.WithStumpy(...))), and exposes the small
// package-level helper set the rest of this module uses for structured
// logging, modeled on eventloop/logging.go's package-level Logger
// interface and RWMutex-guarded global — generalized here to a fixed
// logiface/stumpy pairing rather than a pluggable interface, since
// SPEC_FULL.md's ambient-stack section commits to exactly one logging
// backend.
package elog

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var (
	mu     sync.RWMutex
	logger = stumpy.L.New(stumpy.L.WithStumpy())
)

// SetLogger replaces the package-wide logger, e.g. to redirect output
// in a test or to change the minimum level. Tests may use this to
// install a logger with a custom writer, then inspect what was
// written.
func SetLogger(l *logiface.Logger[*stumpy.Event]) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() *logiface.Logger[*stumpy.Event] {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs a debug-level event. kvs is an alternating key/value list;
// an odd-length kvs drops its trailing key.
func Debug(msg string, kvs ...any) { log(current().Debug(), msg, kvs) }

// Info logs an informational-level event.
func Info(msg string, kvs ...any) { log(current().Info(), msg, kvs) }

// Warn logs a warning-level event.
func Warn(msg string, kvs ...any) { log(current().Warning(), msg, kvs) }

// Error logs an error-level event.
func Error(msg string, kvs ...any) { log(current().Err(), msg, kvs) }

// Fatal logs at LevelAlert and panics, for the "resource-acquisition
// failures in background components are fatal and abort the process"
// rule in SPEC_FULL.md §7.
func Fatal(msg string, kvs ...any) {
	log(current().Alert(), msg, kvs)
	panic(msg)
}

func log(b *logiface.Builder[*stumpy.Event], msg string, kvs []any) {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		b = b.Any(key, kvs[i+1])
	}
	b.Log(msg)
}
