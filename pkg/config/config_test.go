package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validRequestConfig = `
server:
  host: 0.0.0.0
  port: 3012
  cert_file: /etc/hydromaas/certs/requestd.crt
  key_file: /etc/hydromaas/certs/requestd.key
scheduler:
  host: scheduler.internal
  port: 3013
  request_timeout: 10
sessions:
  store_path: /var/lib/hydromaas/sessions
shutdown:
  grace_period: 15
logging:
  level: info
  format: json
`

func TestLoadRequestServiceConfig(t *testing.T) {
	path := writeConfig(t, validRequestConfig)

	cfg, err := LoadRequestServiceConfig(path)
	if err != nil {
		t.Fatalf("LoadRequestServiceConfig() error = %v", err)
	}

	if cfg.Server.Port != 3012 {
		t.Errorf("Server.Port = %d, want 3012", cfg.Server.Port)
	}
	if cfg.Scheduler.Host != "scheduler.internal" {
		t.Errorf("Scheduler.Host = %q, want scheduler.internal", cfg.Scheduler.Host)
	}
	if cfg.Scheduler.RequestTimeout != 10 {
		t.Errorf("Scheduler.RequestTimeout = %d, want 10", cfg.Scheduler.RequestTimeout)
	}
	if cfg.Sessions.StorePath != "/var/lib/hydromaas/sessions" {
		t.Errorf("Sessions.StorePath = %q", cfg.Sessions.StorePath)
	}
	if cfg.Shutdown.GracePeriod != 15 {
		t.Errorf("Shutdown.GracePeriod = %d, want 15", cfg.Shutdown.GracePeriod)
	}
}

func TestLoadRequestServiceConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing file",
			content: "",
			wantErr: "failed to read config file",
		},
		{
			name:    "malformed yaml",
			content: "server: [not a mapping",
			wantErr: "failed to parse config file",
		},
		{
			name: "missing cert file",
			content: `
server:
  host: 0.0.0.0
  port: 3012
  key_file: /tmp/k.pem
scheduler:
  host: localhost
  port: 3013
sessions:
  store_path: /tmp/sessions
`,
			wantErr: "server.cert_file is required",
		},
		{
			name: "bad port",
			content: `
server:
  host: 0.0.0.0
  port: 70000
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
scheduler:
  host: localhost
  port: 3013
sessions:
  store_path: /tmp/sessions
`,
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name: "missing store path",
			content: `
server:
  host: 0.0.0.0
  port: 3012
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
scheduler:
  host: localhost
  port: 3013
`,
			wantErr: "sessions.store_path is required",
		},
		{
			name: "negative request timeout",
			content: `
server:
  host: 0.0.0.0
  port: 3012
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
scheduler:
  host: localhost
  port: 3013
  request_timeout: -1
sessions:
  store_path: /tmp/sessions
`,
			wantErr: "scheduler.request_timeout must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			if tt.content == "" {
				path = filepath.Join(t.TempDir(), "does-not-exist.yaml")
			} else {
				path = writeConfig(t, tt.content)
			}

			_, err := LoadRequestServiceConfig(path)
			if err == nil {
				t.Fatalf("LoadRequestServiceConfig() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

const validSchedulerConfig = `
server:
  host: 0.0.0.0
  port: 3013
  cert_file: /etc/hydromaas/certs/schedulerd.crt
  key_file: /etc/hydromaas/certs/schedulerd.key
nodes:
  heartbeat_timeout: 60
  sweep_interval: 20
  static:
    - node_id: node-01
      hostname: node-01.internal
      cpu_count: 16
      memory_bytes: 68719476736
jobs:
  default_cpus: 4
  default_memory_bytes: 4294967296
shutdown:
  grace_period: 15
logging:
  level: info
  format: json
`

func TestLoadSchedulerServiceConfig(t *testing.T) {
	path := writeConfig(t, validSchedulerConfig)

	cfg, err := LoadSchedulerServiceConfig(path)
	if err != nil {
		t.Fatalf("LoadSchedulerServiceConfig() error = %v", err)
	}

	if cfg.Nodes.HeartbeatTimeout != 60 {
		t.Errorf("Nodes.HeartbeatTimeout = %d, want 60", cfg.Nodes.HeartbeatTimeout)
	}
	if len(cfg.Nodes.Static) != 1 {
		t.Fatalf("len(Nodes.Static) = %d, want 1", len(cfg.Nodes.Static))
	}
	n := cfg.Nodes.Static[0]
	if n.NodeID != "node-01" || n.CPUCount != 16 || n.MemoryBytes != 68719476736 {
		t.Errorf("static node = %+v", n)
	}
	if cfg.Jobs.DefaultCPUs != 4 {
		t.Errorf("Jobs.DefaultCPUs = %d, want 4", cfg.Jobs.DefaultCPUs)
	}
	if cfg.Jobs.DefaultMemoryBytes != 4294967296 {
		t.Errorf("Jobs.DefaultMemoryBytes = %d, want 4294967296", cfg.Jobs.DefaultMemoryBytes)
	}
}

func TestLoadSchedulerServiceConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "static node without id",
			content: `
server:
  host: 0.0.0.0
  port: 3013
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
nodes:
  static:
    - hostname: node-01.internal
      cpu_count: 16
`,
			wantErr: "nodes.static[0].node_id is required",
		},
		{
			name: "static node without cpus",
			content: `
server:
  host: 0.0.0.0
  port: 3013
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
nodes:
  static:
    - node_id: node-01
`,
			wantErr: "nodes.static[0].cpu_count must be positive",
		},
		{
			name: "negative heartbeat timeout",
			content: `
server:
  host: 0.0.0.0
  port: 3013
  cert_file: /tmp/c.pem
  key_file: /tmp/k.pem
nodes:
  heartbeat_timeout: -5
`,
			wantErr: "nodes.heartbeat_timeout must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := LoadSchedulerServiceConfig(path)
			if err == nil {
				t.Fatalf("LoadSchedulerServiceConfig() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNodeAgentConfig(t *testing.T) {
	path := writeConfig(t, `
node:
  id: node-07
scheduler:
  host: scheduler.internal
  port: 3013
agent:
  heartbeat_interval: 15
  retry_interval: 5
logging:
  level: debug
`)

	cfg, err := LoadNodeAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeAgentConfig() error = %v", err)
	}

	if cfg.Node.ID != "node-07" {
		t.Errorf("Node.ID = %q, want node-07", cfg.Node.ID)
	}
	if cfg.Agent.HeartbeatInterval != 15 || cfg.Agent.RetryInterval != 5 {
		t.Errorf("agent intervals = %d/%d, want 15/5", cfg.Agent.HeartbeatInterval, cfg.Agent.RetryInterval)
	}
}

func TestLoadNodeAgentConfigDefaultsNodeID(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  host: scheduler.internal
  port: 3013
`)

	cfg, err := LoadNodeAgentConfig(path)
	if err != nil {
		t.Fatalf("LoadNodeAgentConfig() error = %v", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		t.Fatalf("hostname: %v", err)
	}
	if cfg.Node.ID != hostname {
		t.Errorf("Node.ID = %q, want hostname %q", cfg.Node.ID, hostname)
	}
}

func TestLoadNodeAgentConfigInvalid(t *testing.T) {
	path := writeConfig(t, `
node:
  id: node-07
scheduler:
  port: 3013
`)

	_, err := LoadNodeAgentConfig(path)
	if err == nil {
		t.Fatal("LoadNodeAgentConfig() error = nil, want scheduler.host error")
	}
	if !strings.Contains(err.Error(), "scheduler.host is required") {
		t.Errorf("error = %q, want it to contain %q", err, "scheduler.host is required")
	}
}
