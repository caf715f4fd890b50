package proxy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/openharbor-io/beacon/internal/registry/model"
)

func TestEmit_writesEnabledRoutesSorted(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "beacon_routes.conf")
	e := NewEmitter(confPath, "", "", zap.NewNop())

	err := e.Emit([]model.Server{
		{Path: "/zeta", ProxyPassURL: "http://zeta:9000", IsEnabled: true},
		{Path: "/alpha", ProxyPassURL: "http://alpha:9000", IsEnabled: true},
		{Path: "/off", ProxyPassURL: "http://off:9000", IsEnabled: false},
		{Path: "/nourl", IsEnabled: true},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	data, err := os.ReadFile(confPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	conf := string(data)

	if strings.Contains(conf, "/off") || strings.Contains(conf, "/nourl") {
		t.Errorf("disabled or URL-less servers leaked into config:\n%s", conf)
	}
	alpha := strings.Index(conf, "location /alpha/")
	zeta := strings.Index(conf, "location /zeta/")
	if alpha < 0 || zeta < 0 || alpha > zeta {
		t.Errorf("routes missing or unsorted:\n%s", conf)
	}
	if !strings.Contains(conf, "proxy_pass http://alpha:9000;") {
		t.Errorf("proxy_pass missing:\n%s", conf)
	}
}

func TestEmit_noopWithoutConfigPath(t *testing.T) {
	e := NewEmitter("", "", "", zap.NewNop())
	if err := e.Emit([]model.Server{{Path: "/a", ProxyPassURL: "http://a", IsEnabled: true}}); err != nil {
		t.Errorf("Emit without config path should be a no-op, got %v", err)
	}
}

func TestEmit_runsReloadCommand(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "routes.conf")
	marker := filepath.Join(dir, "reloaded")

	e := NewEmitter(confPath, "touch "+marker, "", zap.NewNop())
	if err := e.Emit(nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("reload command did not run: %v", err)
	}
}

func TestEmit_reloadFailureReported(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "routes.conf")
	e := NewEmitter(confPath, "false", "", zap.NewNop())

	err := e.Emit(nil)
	if err == nil {
		t.Fatal("expected reload failure")
	}
	// The write must survive the failed reload.
	if _, statErr := os.Stat(confPath); statErr != nil {
		t.Errorf("config not written despite reload failure: %v", statErr)
	}
}
