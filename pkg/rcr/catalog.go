// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Catalog discovers serial ports that can currently be opened.
//
// Discovery is a best-effort probe: every path matching the glob patterns is
// opened and closed again, and only the ones that open cleanly are recorded
// under their base filename. Busy, missing or forbidden devices are skipped.
type Catalog struct {
	patterns []string
	open     Opener
	glob     func(pattern string) ([]string, error)
	logger   *zap.Logger

	mu      sync.RWMutex
	ports   map[string]string
	scanned bool
}

// NewCatalog creates a catalog probing the given patterns with open.
// Nil patterns fall back to DefaultPatterns, a nil opener to OpenSerial.
func NewCatalog(patterns []string, open Opener, logger *zap.Logger) *Catalog {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if open == nil {
		open = OpenSerial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		patterns: patterns,
		open:     open,
		glob:     filepath.Glob,
		logger:   logger,
		ports:    make(map[string]string),
	}
}

// Enum rescans the patterns and returns the name -> path mapping.
func (c *Catalog) Enum() map[string]string {
	found := make(map[string]string)
	for _, pattern := range c.patterns {
		paths, err := c.glob(pattern)
		if err != nil {
			c.logger.Debug("Bad port pattern", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		for _, path := range paths {
			port, err := c.open(path, linkMode())
			if err != nil {
				c.logger.Debug("Skipping port", zap.String("path", path), zap.Error(err))
				continue
			}
			port.Close()
			found[filepath.Base(path)] = path
		}
	}

	c.mu.Lock()
	c.ports = found
	c.scanned = true
	c.mu.Unlock()

	c.logger.Info("Port scan complete", zap.Int("ports", len(found)))
	return copyPorts(found)
}

// Count returns the number of ports found by the last scan, scanning first
// if no scan has run yet.
func (c *Catalog) Count() int {
	c.ensureScanned()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ports)
}

// Names returns the sorted port names from the last scan, scanning first if
// no scan has run yet.
func (c *Catalog) Names() []string {
	c.ensureScanned()
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ports))
	for name := range c.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the device path recorded for name.
func (c *Catalog) Lookup(name string) (string, bool) {
	c.ensureScanned()
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok := c.ports[name]
	return path, ok
}

func (c *Catalog) ensureScanned() {
	c.mu.RLock()
	scanned := c.scanned
	c.mu.RUnlock()
	if !scanned {
		c.Enum()
	}
}

func copyPorts(ports map[string]string) map[string]string {
	out := make(map[string]string, len(ports))
	for k, v := range ports {
		out[k] = v
	}
	return out
}
