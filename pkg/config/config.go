package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TLSServer holds the listening endpoint and certificate material for a
// TLS-secured daemon socket.
type TLSServer struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SchedulerEndpoint identifies the scheduler service a client connects to.
type SchedulerEndpoint struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	CAFile         string `yaml:"ca_file"`
	RequestTimeout int    `yaml:"request_timeout"` // seconds, 0 means default
}

// RequestServiceConfig represents the requestd configuration
type RequestServiceConfig struct {
	Server TLSServer `yaml:"server"`

	Scheduler SchedulerEndpoint `yaml:"scheduler"`

	Sessions struct {
		StorePath string `yaml:"store_path"`
	} `yaml:"sessions"`

	Shutdown struct {
		GracePeriod int `yaml:"grace_period"` // seconds
	} `yaml:"shutdown"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// StaticNode describes a compute node registered from configuration rather
// than by a live node agent.
type StaticNode struct {
	NodeID      string `yaml:"node_id"`
	Hostname    string `yaml:"hostname"`
	CPUCount    int    `yaml:"cpu_count"`
	MemoryBytes uint64 `yaml:"memory_bytes"`
}

// SchedulerServiceConfig represents the schedulerd configuration
type SchedulerServiceConfig struct {
	Server TLSServer `yaml:"server"`

	Nodes struct {
		HeartbeatTimeout int          `yaml:"heartbeat_timeout"` // seconds
		SweepInterval    int          `yaml:"sweep_interval"`    // seconds
		Static           []StaticNode `yaml:"static"`
	} `yaml:"nodes"`

	Jobs struct {
		DefaultCPUs        int    `yaml:"default_cpus"`
		DefaultMemoryBytes uint64 `yaml:"default_memory_bytes"`
	} `yaml:"jobs"`

	Shutdown struct {
		GracePeriod int `yaml:"grace_period"` // seconds
	} `yaml:"shutdown"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// NodeAgentConfig represents the nodeagent configuration
type NodeAgentConfig struct {
	Node struct {
		ID string `yaml:"id"`
	} `yaml:"node"`

	Scheduler SchedulerEndpoint `yaml:"scheduler"`

	Agent struct {
		HeartbeatInterval int `yaml:"heartbeat_interval"` // seconds
		RetryInterval     int `yaml:"retry_interval"`     // seconds
	} `yaml:"agent"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// LoadRequestServiceConfig loads requestd configuration from file
func LoadRequestServiceConfig(path string) (*RequestServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg RequestServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateRequestServiceConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadSchedulerServiceConfig loads schedulerd configuration from file
func LoadSchedulerServiceConfig(path string) (*SchedulerServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg SchedulerServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateSchedulerServiceConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadNodeAgentConfig loads nodeagent configuration from file
func LoadNodeAgentConfig(path string) (*NodeAgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg NodeAgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Default node id to the hostname, the common deployment case
	if cfg.Node.ID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.ID = hostname
	}

	if err := validateNodeAgentConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validateTLSServer validates a listening endpoint block
func validateTLSServer(s *TLSServer, prefix string) error {
	if s.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535", prefix)
	}
	if s.CertFile == "" {
		return fmt.Errorf("%s.cert_file is required", prefix)
	}
	if s.KeyFile == "" {
		return fmt.Errorf("%s.key_file is required", prefix)
	}
	return nil
}

// validateSchedulerEndpoint validates a scheduler endpoint block
func validateSchedulerEndpoint(e *SchedulerEndpoint) error {
	if e.Host == "" {
		return fmt.Errorf("scheduler.host is required")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("scheduler.port must be between 1 and 65535")
	}
	if e.RequestTimeout < 0 {
		return fmt.Errorf("scheduler.request_timeout must not be negative")
	}
	return nil
}

// validateRequestServiceConfig validates requestd configuration
func validateRequestServiceConfig(cfg *RequestServiceConfig) error {
	if err := validateTLSServer(&cfg.Server, "server"); err != nil {
		return err
	}
	if err := validateSchedulerEndpoint(&cfg.Scheduler); err != nil {
		return err
	}
	if cfg.Sessions.StorePath == "" {
		return fmt.Errorf("sessions.store_path is required")
	}
	return nil
}

// validateSchedulerServiceConfig validates schedulerd configuration
func validateSchedulerServiceConfig(cfg *SchedulerServiceConfig) error {
	if err := validateTLSServer(&cfg.Server, "server"); err != nil {
		return err
	}
	if cfg.Nodes.HeartbeatTimeout < 0 {
		return fmt.Errorf("nodes.heartbeat_timeout must not be negative")
	}
	for i, n := range cfg.Nodes.Static {
		if n.NodeID == "" {
			return fmt.Errorf("nodes.static[%d].node_id is required", i)
		}
		if n.CPUCount <= 0 {
			return fmt.Errorf("nodes.static[%d].cpu_count must be positive", i)
		}
	}
	if cfg.Jobs.DefaultCPUs < 0 {
		return fmt.Errorf("jobs.default_cpus must not be negative")
	}
	return nil
}

// validateNodeAgentConfig validates nodeagent configuration
func validateNodeAgentConfig(cfg *NodeAgentConfig) error {
	if cfg.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if err := validateSchedulerEndpoint(&cfg.Scheduler); err != nil {
		return err
	}
	if cfg.Agent.HeartbeatInterval < 0 {
		return fmt.Errorf("agent.heartbeat_interval must not be negative")
	}
	return nil
}
