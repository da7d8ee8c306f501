// Package config loads the router daemon's configuration from environment
// variables, with an optional YAML file overlay, grounded on
// registry/cmd/registry/main.go's envOr/envIntOr/envDurationOr idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the router daemon's full runtime configuration.
type Config struct {
	// HTTPAddr is the HTTP front-end's listen address (spec.md §6).
	HTTPAddr string `yaml:"httpAddr"`

	// WorkflowProvider selects the Orchestration Engine's Adapter Port:
	// "temporal" or "inmem".
	WorkflowProvider string `yaml:"workflowProvider"`
	TemporalHostPort string `yaml:"temporalHostPort"`
	TemporalNamespace string `yaml:"temporalNamespace"`
	TemporalTaskQueue string `yaml:"temporalTaskQueue"`

	// WorkerBaseURL is the base URL remote workers use to reach this
	// process's /workers/callback endpoint.
	WorkerBaseURL string `yaml:"workerBaseUrl"`
	// WorkersTriggerAPIKey authenticates inbound worker-trigger requests.
	WorkersTriggerAPIKey string `yaml:"-"`
	// WebhookSecret signs/verifies the x-webhook-signature header on
	// /workers/callback (spec.md §6).
	WebhookSecret string `yaml:"-"`

	RedisURL      string `yaml:"redisUrl"`
	RedisPassword string `yaml:"-"`

	MongoURI string `yaml:"mongoUri"`
	MongoDB  string `yaml:"mongoDatabase"`

	JobStoreBackend string `yaml:"jobStoreBackend"` // "memory" | "fs" | "mongo"
	JobStoreFSDir   string `yaml:"jobStoreFsDir"`

	DispatchInitialDPM float64       `yaml:"dispatchInitialDpm"`
	DispatchMaxDPM     float64       `yaml:"dispatchMaxDpm"`
	HookTimeout        time.Duration `yaml:"hookTimeout"`

	// NexusBaseURL, when set, points at the Nexus endpoint used to resolve
	// StepWorkflow targets not registered in this process (spec.md §4.4
	// cross-service dispatch). Empty disables remote workflow resolution.
	NexusBaseURL string `yaml:"nexusBaseUrl"`
	NexusService string `yaml:"nexusService"`

	// CatalogGRPCAddr, when set, serves this process's tool catalog over
	// gRPC for other router processes to federate against (spec.md §3
	// "registry()" extended to multi-process deployments).
	CatalogGRPCAddr string `yaml:"catalogGrpcAddr"`
}

// Default returns Config populated with the same fallbacks
// registry/cmd/registry/main.go uses: sane local-development values.
func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		WorkflowProvider:   "inmem",
		TemporalTaskQueue:  "agentmesh-router",
		RedisURL:           "localhost:6379",
		MongoDB:            "agentmesh",
		JobStoreBackend:    "memory",
		JobStoreFSDir:      "./data/jobs",
		DispatchInitialDPM: 600,
		DispatchMaxDPM:     6000,
		HookTimeout:        7 * 24 * time.Hour,
	}
}

// Load builds a Config starting from Default, overlaid by yamlPath's
// contents (if yamlPath is non-empty and the file exists), overlaid last by
// environment variables — the same precedence registry/cmd/registry/main.go
// applies to its own env-only configuration, extended here with a YAML
// layer per SPEC_FULL.md's ambient configuration requirement.
func Load(yamlPath string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.WorkflowProvider = envOr("WORKFLOW_PROVIDER", cfg.WorkflowProvider)
	cfg.TemporalHostPort = envOr("TEMPORAL_HOST_PORT", cfg.TemporalHostPort)
	cfg.TemporalNamespace = envOr("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = envOr("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)
	cfg.WorkerBaseURL = envOr("WORKER_BASE_URL", cfg.WorkerBaseURL)
	cfg.WorkersTriggerAPIKey = envOr("WORKERS_TRIGGER_API_KEY", cfg.WorkersTriggerAPIKey)
	cfg.WebhookSecret = envOr("WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.RedisURL = envOr("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = envOr("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.MongoURI = envOr("MONGO_URI", cfg.MongoURI)
	cfg.MongoDB = envOr("MONGO_DATABASE", cfg.MongoDB)
	cfg.JobStoreBackend = envOr("JOB_STORE_BACKEND", cfg.JobStoreBackend)
	cfg.JobStoreFSDir = envOr("JOB_STORE_FS_DIR", cfg.JobStoreFSDir)
	cfg.DispatchInitialDPM = envFloatOr("DISPATCH_INITIAL_DPM", cfg.DispatchInitialDPM)
	cfg.DispatchMaxDPM = envFloatOr("DISPATCH_MAX_DPM", cfg.DispatchMaxDPM)
	cfg.HookTimeout = envDurationOr("HOOK_TIMEOUT", cfg.HookTimeout)
	cfg.NexusBaseURL = envOr("NEXUS_BASE_URL", cfg.NexusBaseURL)
	cfg.NexusService = envOr("NEXUS_SERVICE", cfg.NexusService)
	cfg.CatalogGRPCAddr = envOr("CATALOG_GRPC_ADDR", cfg.CatalogGRPCAddr)

	if cfg.WorkflowProvider == "temporal" && cfg.TemporalHostPort == "" {
		return Config{}, fmt.Errorf("config: TEMPORAL_HOST_PORT is required when WORKFLOW_PROVIDER=temporal")
	}
	return cfg, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
