package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spacedatanetwork/sdn-swarm/internal/config"
)

const (
	marsID  = "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"
	venusID = "12D3KooWLr1gYejUTeriAsSu6roR2aQ423G3Q4fFTqzqSwTsMz9n"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func writeConfig(t *testing.T, deny []string) string {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Swarm.RegistryPath = filepath.Join(dir, "registry.json")
	cfg.Swarm.DenyList = deny

	path := filepath.Join(dir, "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func TestRegisterAndListPeers(t *testing.T) {
	path := writeConfig(t, []string{venusID})
	mars := "/ip4/10.0.0.1/tcp/4001/p2p/" + marsID
	venus := "/ip4/10.0.0.2/tcp/4001/p2p/" + venusID

	out := execute(t, "--config", path, "register", mars, "not-a-multiaddr", venus, "/ip4/10.0.0.3/tcp/4001")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected one line per argument, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], "error      not-a-multiaddr") {
		t.Errorf("unparsable argument not reported in place: %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "error      /ip4/10.0.0.3/tcp/4001") {
		t.Errorf("address without peer ID not reported: %q", lines[3])
	}
	if !strings.Contains(out, "registered "+mars) {
		t.Errorf("expected %s to be registered:\n%s", mars, out)
	}
	if !strings.Contains(out, "skipped    "+venus) {
		t.Errorf("expected denied %s to be skipped:\n%s", venus, out)
	}

	// Registry survives across invocations
	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "registry.json")); err != nil {
		t.Fatalf("registry not written: %v", err)
	}

	out = execute(t, "--config", path, "register", mars)
	if !strings.Contains(out, "skipped    "+mars) {
		t.Errorf("expected known %s to be skipped:\n%s", mars, out)
	}

	out = execute(t, "--config", path, "peers", "--json")
	var listed []struct {
		ID    string   `json:"id"`
		Addrs []string `json:"addrs"`
	}
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode peers output: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0].ID != marsID || len(listed[0].Addrs) != 1 || listed[0].Addrs[0] != mars {
		t.Errorf("unexpected peers: %+v", listed)
	}
	jsonOutput = false
}

func TestCheck(t *testing.T) {
	path := writeConfig(t, []string{venusID})

	out := execute(t, "--config", path, "check",
		"/ip4/10.0.0.1/tcp/4001/p2p/"+marsID,
		"/ip4/10.0.0.2/tcp/4001/p2p/"+venusID,
		"nonsense",
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "allowed") {
		t.Errorf("expected mars allowed: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "denied") {
		t.Errorf("expected venus denied: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "invalid") {
		t.Errorf("expected invalid address: %s", lines[2])
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	execute(t, "--config", path, "init")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Swarm.Timeout() != config.DefaultPolicyTimeout {
		t.Errorf("unexpected policy timeout %v", cfg.Swarm.Timeout())
	}
}
