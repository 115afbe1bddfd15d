// Package types holds configuration structures shared across the engine's
// internal packages, kept separate from internal/config so that packages
// under pkg/ can depend on the shape of the configuration without pulling
// in the YAML-loading and validation logic.
package types

// Config is the root configuration object for a CMIP-IMR run.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Repair    RepairConfig    `yaml:"repair"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name      string `yaml:"name"`       // application name for identification
	LogLevel  string `yaml:"log_level"`  // logrus level (trace, debug, info, warn, error)
	LogFormat string `yaml:"log_format"` // "json" or "text"
}

// ServerConfig contains the batch front-end HTTP server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// IngestConfig describes the input log's column contract (§6) and the log
// file to read.
type IngestConfig struct {
	LogPath          string   `yaml:"log_path"`
	CaseIDColumn     string   `yaml:"case_id_column"`
	ActivityColumn   string   `yaml:"activity_column"`
	TimestampColumn  string   `yaml:"timestamp_column"`
	RolesColumn      string   `yaml:"roles_column"`
	SendMsgColumn    string   `yaml:"send_msg_column"`
	RecvMsgColumn    string   `yaml:"recv_msg_column"`
	ReqResColumn     string   `yaml:"req_res_column"`
	RelResColumn     string   `yaml:"rel_res_column"`
	TimestampFormats []string `yaml:"timestamp_formats"`
}

// DiscoveryConfig configures the per-department inductive-miner invocation (C3).
type DiscoveryConfig struct {
	NoiseThreshold      float64 `yaml:"noise_threshold"`
	ParallelDepartments bool    `yaml:"parallel_departments"`
}

// RepairConfig configures the CE-PNR loop (C7).
type RepairConfig struct {
	TargetFMeasure              float64 `yaml:"target_f_measure"`
	MaxIterations               int     `yaml:"max_iterations"`
	RemoveResourcesIfLowFitness bool    `yaml:"remove_resources_if_low_fitness"`
	FitnessThreshold            float64 `yaml:"fitness_threshold"`
	DefaultResourceCapacity     int     `yaml:"default_resource_capacity"`
}
