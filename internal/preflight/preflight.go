// Package preflight runs startup environment checks so misconfiguration
// surfaces as readable warnings instead of mid-job failures.
package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"groovesheet/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable checks for the given config. Checks only
// cover what the configuration actually enables; a broker deployment does
// not get poller checks and vice versa.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Jobs directory", cfg.Paths.JobsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckCollaborator(ctx, "Separator service", cfg.Separator.BaseURL),
		CheckCollaborator(ctx, "Transcriber service", cfg.Transcriber.BaseURL),
		CheckCollaborator(ctx, "Sheet service", cfg.Sheet.BaseURL),
	}

	if cfg.Delivery.Mode == "broker" {
		results = append(results, CheckBrokerSettings(cfg))
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable,
// writable, and traversable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCollaborator verifies that the model service endpoint answers HTTP.
// Any HTTP response counts as reachable; only transport errors fail the
// check, since the service may not expose a root route.
func CheckCollaborator(ctx context.Context, name, baseURL string) Result {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base_url: %v", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable: %v", err)}
	}
	_ = resp.Body.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
}

// CheckBrokerSettings verifies that the configured broker transport has the
// settings it needs to connect.
func CheckBrokerSettings(cfg *config.Config) Result {
	const name = "Broker settings"

	switch cfg.Broker.Transport {
	case "pubsub":
		if strings.TrimSpace(cfg.Broker.Project) == "" || strings.TrimSpace(cfg.Broker.Subscription) == "" {
			return Result{Name: name, Detail: "pubsub requires broker.project and broker.subscription"}
		}
	case "amqp":
		if strings.TrimSpace(cfg.Broker.AMQPURL) == "" || strings.TrimSpace(cfg.Broker.AMQPQueue) == "" {
			return Result{Name: name, Detail: "amqp requires broker.amqp_url and broker.amqp_queue"}
		}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unknown transport %q", cfg.Broker.Transport)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.Broker.Transport + " configured"}
}
