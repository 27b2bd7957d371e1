package config

const (
	defaultJobsDir                   = "~/.local/share/groovesheet/jobs"
	defaultLogDir                    = "~/.local/share/groovesheet/logs"
	defaultAPIBind                   = "127.0.0.1:8470"
	defaultStoreBackend              = "file"
	defaultObjectsBackend            = "local"
	defaultObjectsPrefix             = "jobs"
	defaultDeliveryMode              = "poller"
	defaultPollInterval              = 5
	defaultStaleJobTimeout           = 7200
	defaultBrokerTransport           = "pubsub"
	defaultDeadlineExtensionInterval = 300
	defaultDeadlineExtension         = 600
	defaultMaxConcurrentJobs         = 2
	defaultCollaboratorTimeout       = 1800
	defaultSeparatorBaseURL          = "http://127.0.0.1:9101"
	defaultTranscriberBaseURL        = "http://127.0.0.1:9102"
	defaultSheetBaseURL              = "http://127.0.0.1:9103"
	defaultNotifyTimeout             = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			JobsDir: defaultJobsDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		Objects: Objects{
			Backend: defaultObjectsBackend,
			Prefix:  defaultObjectsPrefix,
		},
		Delivery: Delivery{
			Mode:            defaultDeliveryMode,
			PollInterval:    defaultPollInterval,
			StaleJobTimeout: defaultStaleJobTimeout,
		},
		Broker: Broker{
			Transport:                 defaultBrokerTransport,
			DeadlineExtensionInterval: defaultDeadlineExtensionInterval,
			DeadlineExtension:         defaultDeadlineExtension,
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			CleanupInputs:     true,
		},
		Separator: Collaborator{
			BaseURL:        defaultSeparatorBaseURL,
			TimeoutSeconds: defaultCollaboratorTimeout,
		},
		Transcriber: Collaborator{
			BaseURL:        defaultTranscriberBaseURL,
			TimeoutSeconds: defaultCollaboratorTimeout,
		},
		Sheet: Collaborator{
			BaseURL:        defaultSheetBaseURL,
			TimeoutSeconds: defaultCollaboratorTimeout,
		},
		Notify: Notifications{
			TimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
