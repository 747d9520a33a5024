package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	yml := `
node:
  id: node-a
cluster:
  peers:
    - id: node-b
      addr: http://localhost:8081
  replicationTimeout: 2s
analyzer:
  mode: prefix
cache:
  ttl: 5s
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PS_CLUSTER_PEERS", "node-b=http://b:8080, node-c=http://c:8080")
	t.Setenv("PS_SERVER_PORT", "9191")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Node.ID != "node-a" {
		t.Errorf("Node.ID = %q", cfg.Node.ID)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if len(cfg.Cluster.Peers) != 2 || cfg.Cluster.Peers[1].Addr != "http://c:8080" {
		t.Errorf("Cluster.Peers = %+v", cfg.Cluster.Peers)
	}
	if cfg.Cluster.ReplicationTimeout != 2*time.Second {
		t.Errorf("ReplicationTimeout = %v", cfg.Cluster.ReplicationTimeout)
	}
	if cfg.Analyzer.Mode != "prefix" || cfg.Cache.TTL != 5*time.Second {
		t.Errorf("analyzer/cache not loaded: %+v %+v", cfg.Analyzer, cfg.Cache)
	}
	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("default not kept: DefaultLimit = %d", cfg.Search.DefaultLimit)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Node.ID = ""
	cfg.Cluster.Peers = []PeerConfig{{ID: "b", Addr: "x"}, {ID: "b", Addr: "y"}}
	cfg.Analyzer.Mode = "ngram"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"node.id", "listed twice", "analyzer.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParsePeersMalformed(t *testing.T) {
	if _, err := ParsePeers("node-b"); err == nil {
		t.Error("expected error for entry without '='")
	}
}
