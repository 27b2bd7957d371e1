package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateObjects(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateCollaborators(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.JobsDir) == "" {
		return errors.New("paths.jobs_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "file", "sqlite", "object":
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected file, sqlite, or object)", c.Store.Backend)
	}
}

func (c *Config) validateObjects() error {
	switch c.Objects.Backend {
	case "local":
		return nil
	case "gcs":
		if strings.TrimSpace(c.Objects.Bucket) == "" {
			return errors.New("objects.bucket is required for the gcs backend")
		}
		return nil
	case "s3":
		if strings.TrimSpace(c.Objects.Bucket) == "" {
			return errors.New("objects.bucket is required for the s3 backend")
		}
		if strings.TrimSpace(c.Objects.S3Endpoint) == "" {
			return errors.New("objects.s3_endpoint is required for the s3 backend")
		}
		if strings.TrimSpace(c.Objects.S3AccessKey) == "" || strings.TrimSpace(c.Objects.S3SecretKey) == "" {
			return errors.New("objects.s3_access_key and objects.s3_secret_key are required for the s3 backend")
		}
		return nil
	default:
		return fmt.Errorf("objects.backend: unsupported value %q (expected local, gcs, or s3)", c.Objects.Backend)
	}
}

func (c *Config) validateDelivery() error {
	switch c.Delivery.Mode {
	case "poller":
		// The poller scans descriptors and inputs on the local job tree.
		if c.Store.Backend != "file" {
			return fmt.Errorf("delivery.mode poller requires store.backend file, got %q", c.Store.Backend)
		}
		if c.Objects.Backend != "local" {
			return fmt.Errorf("delivery.mode poller requires objects.backend local, got %q", c.Objects.Backend)
		}
		return nil
	case "broker":
	default:
		return fmt.Errorf("delivery.mode: unsupported value %q (expected poller or broker)", c.Delivery.Mode)
	}

	switch c.Broker.Transport {
	case "pubsub":
		if strings.TrimSpace(c.Broker.Project) == "" || strings.TrimSpace(c.Broker.Subscription) == "" {
			return errors.New("broker.project and broker.subscription are required for the pubsub transport")
		}
	case "amqp":
		if strings.TrimSpace(c.Broker.AMQPURL) == "" || strings.TrimSpace(c.Broker.AMQPQueue) == "" {
			return errors.New("broker.amqp_url and broker.amqp_queue are required for the amqp transport")
		}
	default:
		return fmt.Errorf("broker.transport: unsupported value %q (expected pubsub or amqp)", c.Broker.Transport)
	}

	if c.Broker.DeadlineExtension < c.Broker.DeadlineExtensionInterval {
		return errors.New("broker.deadline_extension must be at least broker.deadline_extension_interval")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrentJobs < 1 {
		return errors.New("workflow.max_concurrent_jobs must be at least 1")
	}
	return nil
}

func (c *Config) validateCollaborators() error {
	for _, entry := range []struct {
		name string
		cfg  Collaborator
	}{
		{"separator", c.Separator},
		{"transcriber", c.Transcriber},
		{"sheet", c.Sheet},
	} {
		if strings.TrimSpace(entry.cfg.BaseURL) == "" {
			return fmt.Errorf("%s.base_url must be set", entry.name)
		}
		if !strings.HasPrefix(entry.cfg.BaseURL, "http://") && !strings.HasPrefix(entry.cfg.BaseURL, "https://") {
			return fmt.Errorf("%s.base_url must be an http(s) URL", entry.name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
