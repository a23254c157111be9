//go:build !consul

package secret

import "log/slog"

// NewConsul returns a memory store when the consul build tag is not enabled.
func NewConsul(addr, _ string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("consul secret store requested but consul build tag not enabled; using memory store", "addr", addr)
	return NewMemory(), nil
}
