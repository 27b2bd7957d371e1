package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	// JobsDir is the root of the local job tree: jobs_dir/<job_id>/{input.mp3,metadata.json,output.musicxml}.
	JobsDir  string `toml:"jobs_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Store selects the job descriptor backend.
type Store struct {
	// Backend is one of "file", "sqlite", "object".
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// Objects selects the artifact object store backend.
type Objects struct {
	// Backend is one of "local", "gcs", "s3".
	Backend string `toml:"backend"`
	Bucket  string `toml:"bucket"`
	Prefix  string `toml:"prefix"`

	// S3-compatible endpoint settings (ignored for local and gcs).
	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`
}

// Delivery selects how new jobs are discovered.
type Delivery struct {
	// Mode is one of "poller", "broker".
	Mode         string `toml:"mode"`
	PollInterval int    `toml:"poll_interval"`
	// StaleJobTimeout is the age in seconds after which a non-terminal job is
	// considered abandoned and eligible for re-dispatch. Zero disables the check.
	StaleJobTimeout int `toml:"stale_job_timeout"`
}

// Broker contains push delivery transport settings.
type Broker struct {
	// Transport is one of "pubsub", "amqp".
	Transport    string `toml:"transport"`
	Project      string `toml:"project"`
	Subscription string `toml:"subscription"`
	AMQPURL      string `toml:"amqp_url"`
	AMQPQueue    string `toml:"amqp_queue"`
	// DeadlineExtensionInterval is how often the in-flight message's ack
	// deadline is extended, in seconds.
	DeadlineExtensionInterval int `toml:"deadline_extension_interval"`
	// DeadlineExtension is how far each extension pushes the deadline, in seconds.
	DeadlineExtension int `toml:"deadline_extension"`
}

// Workflow contains pipeline scheduling settings.
type Workflow struct {
	MaxConcurrentJobs int  `toml:"max_concurrent_jobs"`
	CleanupInputs     bool `toml:"cleanup_inputs"`
}

// Collaborator configures one external model service endpoint.
type Collaborator struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications configures push notifications for job outcomes.
type Notifications struct {
	// NtfyTopic is a full ntfy topic URL. Empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for groovesheet.
//
// Configuration sections by subsystem:
//   - Paths: local job tree, log directory, API bind address
//   - Store: job descriptor persistence backend
//   - Objects: artifact object store backend
//   - Delivery: poller vs. broker job discovery
//   - Broker: push transport settings and deadline extension
//   - Workflow: worker pool sizing and input cleanup
//   - Separator/Transcriber/Sheet: model service endpoints
//   - Logging: log format and level
type Config struct {
	Paths       Paths         `toml:"paths"`
	Store       Store         `toml:"store"`
	Objects     Objects       `toml:"objects"`
	Delivery    Delivery      `toml:"delivery"`
	Broker      Broker        `toml:"broker"`
	Workflow    Workflow      `toml:"workflow"`
	Separator   Collaborator  `toml:"separator"`
	Transcriber Collaborator  `toml:"transcriber"`
	Sheet       Collaborator  `toml:"sheet"`
	Notify      Notifications `toml:"notifications"`
	Logging     Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/groovesheet/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("groovesheet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.JobsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// PollInterval returns the poller scan interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Delivery.PollInterval) * time.Second
}

// StaleJobTimeout returns the stale-job re-dispatch threshold as a duration.
func (c *Config) StaleJobTimeout() time.Duration {
	return time.Duration(c.Delivery.StaleJobTimeout) * time.Second
}

// DeadlineExtensionInterval returns the broker extension cadence as a duration.
func (c *Config) DeadlineExtensionInterval() time.Duration {
	return time.Duration(c.Broker.DeadlineExtensionInterval) * time.Second
}

// DeadlineExtension returns the per-extension deadline bump as a duration.
func (c *Config) DeadlineExtension() time.Duration {
	return time.Duration(c.Broker.DeadlineExtension) * time.Second
}

// ObjectPrefix returns the key prefix for job objects. The local backend is
// already rooted at jobs_dir, so its keys carry no prefix; that keeps the
// on-disk layout at jobs_dir/<job_id>/... where the poller and file store
// expect it.
func (c *Config) ObjectPrefix() string {
	if c.Objects.Backend == "local" {
		return ""
	}
	return c.Objects.Prefix
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.JobsDir, err = expandPath(c.Paths.JobsDir); err != nil {
		return fmt.Errorf("paths.jobs_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.LogDir, "jobs.db")
	} else if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}

	c.Objects.Backend = strings.ToLower(strings.TrimSpace(c.Objects.Backend))
	if c.Objects.Backend == "" {
		c.Objects.Backend = defaultObjectsBackend
	}
	c.Objects.Prefix = strings.Trim(strings.TrimSpace(c.Objects.Prefix), "/")
	if c.Objects.Prefix == "" {
		c.Objects.Prefix = defaultObjectsPrefix
	}

	c.Delivery.Mode = strings.ToLower(strings.TrimSpace(c.Delivery.Mode))
	if c.Delivery.Mode == "" {
		c.Delivery.Mode = defaultDeliveryMode
	}
	if c.Delivery.PollInterval <= 0 {
		c.Delivery.PollInterval = defaultPollInterval
	}
	if c.Delivery.StaleJobTimeout < 0 {
		c.Delivery.StaleJobTimeout = 0
	}

	c.Broker.Transport = strings.ToLower(strings.TrimSpace(c.Broker.Transport))
	if c.Broker.Transport == "" {
		c.Broker.Transport = defaultBrokerTransport
	}
	if c.Broker.DeadlineExtensionInterval <= 0 {
		c.Broker.DeadlineExtensionInterval = defaultDeadlineExtensionInterval
	}
	if c.Broker.DeadlineExtension <= 0 {
		c.Broker.DeadlineExtension = defaultDeadlineExtension
	}

	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}

	normalizeCollaborator(&c.Separator)
	normalizeCollaborator(&c.Transcriber)
	normalizeCollaborator(&c.Sheet)

	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.TimeoutSeconds <= 0 {
		c.Notify.TimeoutSeconds = defaultNotifyTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

func normalizeCollaborator(c *Collaborator) {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultCollaboratorTimeout
	}
}
