//go:build darwin

package platform

import (
	"github.com/sirupsen/logrus"

	"github.com/readguard/readguard/types"
)

// DarwinMonitor is a stub so the tree builds on development machines.
// There is no kernel event subscription on Darwin.
type DarwinMonitor struct{}

func NewMonitor(cfg MonitorConfig, out chan<- types.ReadEvent, log *logrus.Logger) (Monitor, error) {
	log.Warn("kernel event monitoring is not available on this platform")
	return &DarwinMonitor{}, nil
}

func (m *DarwinMonitor) Start() error {
	// No-op on Darwin
	return nil
}

func (m *DarwinMonitor) Stop() error {
	// No-op on Darwin
	return nil
}
