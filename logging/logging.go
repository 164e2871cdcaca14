// Package logging wraps zap with the subsystem-tagged logging style used
// throughout the server: every call site names the subsystem it is logging
// for (matching the "connect-ip", "server", "internal" tags the teacher
// threads through its own logger.Manager calls).
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Manager is a small leveled logger with named subsystems. It is safe for
// concurrent use from any goroutine.
type Manager struct {
	base *zap.Logger
}

// NewManager builds a Manager writing leveled, subsystem-tagged lines to
// stderr. debug enables zap's debug level; otherwise info and above.
func NewManager(debug bool) (*Manager, error) {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)

	return &Manager{base: zap.New(core)}, nil
}

// NewNop returns a Manager that discards everything, for tests.
func NewNop() *Manager {
	return &Manager{base: zap.NewNop()}
}

func (m *Manager) Debug(subsystem, msg string, fields ...zap.Field) {
	m.base.Debug(msg, append([]zap.Field{zap.String("subsystem", subsystem)}, fields...)...)
}

func (m *Manager) Info(subsystem, msg string, fields ...zap.Field) {
	m.base.Info(msg, append([]zap.Field{zap.String("subsystem", subsystem)}, fields...)...)
}

func (m *Manager) Warning(subsystem, msg string, fields ...zap.Field) {
	m.base.Warn(msg, append([]zap.Field{zap.String("subsystem", subsystem)}, fields...)...)
}

func (m *Manager) Error(subsystem, msg string, fields ...zap.Field) {
	m.base.Error(msg, append([]zap.Field{zap.String("subsystem", subsystem)}, fields...)...)
}

// Sync flushes any buffered log entries. Call before process exit.
func (m *Manager) Sync() {
	_ = m.base.Sync()
}
