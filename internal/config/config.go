// Package config provides configuration structures and loading for bulkvault.
package config

// Config represents the complete application configuration.
type Config struct {
	Remote     RemoteConfig         `yaml:"remote" mapstructure:"remote"`
	Output     OutputConfig         `yaml:"output" mapstructure:"output"`
	Jobs       map[string]JobConfig `yaml:"jobs" mapstructure:"jobs"`
	Processing ProcessingConfig     `yaml:"processing" mapstructure:"processing"`
	Logging    LoggingConfig        `yaml:"logging" mapstructure:"logging"`
}

// RemoteConfig represents the remote bulk-query endpoint.
type RemoteConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	APIVersion     string `yaml:"api_version" mapstructure:"api_version"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
}

// OutputConfig represents where exported data lands.
type OutputConfig struct {
	Folder   string         `yaml:"folder" mapstructure:"folder"`
	Sink     string         `yaml:"sink" mapstructure:"sink"` // "csv" or "database"
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig represents a relational sink connection.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // "mysql" or "postgres"
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// JobConfig represents one export job: a set of root entities plus traversal
// and filtering options.
type JobConfig struct {
	Entities       []string            `yaml:"entities" mapstructure:"entities"`
	Where          string              `yaml:"where" mapstructure:"where"`
	RecordLimit    int                 `yaml:"record_limit" mapstructure:"record_limit"`
	Fields         map[string][]string `yaml:"fields" mapstructure:"fields"` // entity -> selected fields
	IncludeRelated bool                `yaml:"include_related" mapstructure:"include_related"`
	MaxDepth       int                 `yaml:"max_depth" mapstructure:"max_depth"`
	PriorityOnly   bool                `yaml:"priority_only" mapstructure:"priority_only"`
	FetchBlobs     bool                `yaml:"fetch_blobs" mapstructure:"fetch_blobs"`
	Processing     *ProcessingConfig   `yaml:"processing,omitempty" mapstructure:"processing"`
}

// ProcessingConfig represents polling and traversal settings.
type ProcessingConfig struct {
	PollIntervalSeconds  int `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	MaxPollAttempts      int `yaml:"max_poll_attempts" mapstructure:"max_poll_attempts"`
	MaxConcurrentExports int `yaml:"max_concurrent_exports" mapstructure:"max_concurrent_exports"`
	PredicateIDLimit     int `yaml:"predicate_id_limit" mapstructure:"predicate_id_limit"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			APIVersion:     "62.0",
			TimeoutSeconds: 1800,
			MaxConnections: 20,
		},
		Output: OutputConfig{
			Folder: "backup",
			Sink:   "csv",
			Database: DatabaseConfig{
				Driver: "mysql",
				Port:   3306,
			},
		},
		Processing: ProcessingConfig{
			PollIntervalSeconds:  1,
			MaxPollAttempts:      300,
			MaxConcurrentExports: 4,
			PredicateIDLimit:     200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// GetJob retrieves a specific job configuration by name.
func (c *Config) GetJob(name string) (*JobConfig, error) {
	job, exists := c.Jobs[name]
	if !exists {
		return nil, &JobNotFoundError{Name: name}
	}
	return &job, nil
}

// ListJobs returns all job names defined in the configuration.
func (c *Config) ListJobs() []string {
	jobs := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		jobs = append(jobs, name)
	}
	return jobs
}

// JobNotFoundError is returned when a named job is not configured.
type JobNotFoundError struct {
	Name string
}

func (e *JobNotFoundError) Error() string {
	return "job \"" + e.Name + "\" not found in configuration"
}

// GetJobProcessing returns the processing config for a job, falling back to
// global values for fields the job does not override.
func (jc *JobConfig) GetJobProcessing(global ProcessingConfig) ProcessingConfig {
	if jc.Processing == nil {
		return global
	}
	effective := global
	if jc.Processing.PollIntervalSeconds > 0 {
		effective.PollIntervalSeconds = jc.Processing.PollIntervalSeconds
	}
	if jc.Processing.MaxPollAttempts > 0 {
		effective.MaxPollAttempts = jc.Processing.MaxPollAttempts
	}
	if jc.Processing.MaxConcurrentExports > 0 {
		effective.MaxConcurrentExports = jc.Processing.MaxConcurrentExports
	}
	if jc.Processing.PredicateIDLimit > 0 {
		effective.PredicateIDLimit = jc.Processing.PredicateIDLimit
	}
	return effective
}

// ApplyOverrides applies CLI flag values over the loaded configuration.
// Zero values leave the configured value untouched.
func (c *Config) ApplyOverrides(logLevel, logFormat string, maxDepth, recordLimit int) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if maxDepth <= 0 && recordLimit <= 0 {
		return
	}
	for name, job := range c.Jobs {
		if maxDepth > 0 {
			job.MaxDepth = maxDepth
		}
		if recordLimit > 0 {
			job.RecordLimit = recordLimit
		}
		c.Jobs[name] = job
	}
}
