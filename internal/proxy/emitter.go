// Package proxy rewrites the sidecar reverse proxy's routing config from
// the enabled-server set and signals it to reload. The registry never
// proxies traffic itself; this file is its only influence on the data path.
package proxy

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

// Emitter serializes routes and pokes the proxy. A zero config path makes
// every call a no-op, for deployments without a sidecar.
type Emitter struct {
	configPath string
	reloadCmd  string
	pidFile    string
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewEmitter builds an Emitter. reloadCmd (split on whitespace) wins over
// pidFile when both are set; with neither, the write happens but no signal
// is sent.
func NewEmitter(configPath, reloadCmd, pidFile string, logger *zap.Logger) *Emitter {
	return &Emitter{configPath: configPath, reloadCmd: reloadCmd, pidFile: pidFile, logger: logger}
}

// Emit writes the routing config for the enabled servers and triggers a
// reload. Callers log the returned error and move on: a proxy hiccup never
// rolls back the state change that caused the emission.
func (e *Emitter) Emit(servers []model.Server) error {
	if e.configPath == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.write(servers); err != nil {
		return err
	}
	if err := e.reload(); err != nil {
		return fmt.Errorf("config written, reload failed: %w", err)
	}
	return nil
}

func (e *Emitter) write(servers []model.Server) error {
	enabled := make([]model.Server, 0, len(servers))
	for _, s := range servers {
		if s.IsEnabled && s.ProxyPassURL != "" {
			enabled = append(enabled, s)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Path < enabled[j].Path })

	var b strings.Builder
	b.WriteString("# generated by beacon; do not edit\n")
	for _, s := range enabled {
		fmt.Fprintf(&b, "location %s/ {\n    proxy_pass %s;\n}\n", s.Path, s.ProxyPassURL)
	}

	tmp := e.configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write proxy config: %w", err)
	}
	if err := os.Rename(tmp, e.configPath); err != nil {
		return fmt.Errorf("install proxy config: %w", err)
	}
	e.logger.Info("proxy config written",
		zap.String("path", e.configPath), zap.Int("routes", len(enabled)))
	return nil
}

func (e *Emitter) reload() error {
	switch {
	case e.reloadCmd != "":
		parts := strings.Fields(e.reloadCmd)
		out, err := exec.Command(parts[0], parts[1:]...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %v (%s)", e.reloadCmd, err, strings.TrimSpace(string(out)))
		}
	case e.pidFile != "":
		data, err := os.ReadFile(e.pidFile)
		if err != nil {
			return fmt.Errorf("read pid file: %w", err)
		}
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return fmt.Errorf("parse pid file: %w", err)
		}
		if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
			return fmt.Errorf("signal pid %d: %w", pid, err)
		}
	}
	return nil
}
