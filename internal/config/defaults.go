package config

const (
	defaultDataDir    = "~/.local/share/arkiv"
	defaultPackageDir = "~/.local/share/arkiv/packages"
	defaultArchiveDir = "~/.local/share/arkiv/archive"
	defaultLogDir     = "~/.local/share/arkiv/logs"

	defaultCatalogPageSize       = 500
	defaultCatalogRequestTimeout = 60

	defaultPackagingTimeout = 3600

	defaultPreservationRequestTimeout = 120
	defaultPreservationPollInterval   = 900
	defaultPreservationStalledAfter   = 30 * 24 * 3600

	defaultPreservationDelayDays = 30
	defaultUpdateDelayDays       = 30

	defaultDownloadWorkers = 2
	defaultPackageWorkers  = 2
	defaultSubmitWorkers   = 1
	defaultConfirmWorkers  = 1

	defaultMaxAttempts        = 5
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10

	defaultTaskLease       = 900
	defaultObjectLockLease = 900
	defaultSyncLockLease   = 300

	defaultEnqueueInterval = 3600
	defaultEnqueueBatch    = 10

	defaultSyncChunkSize     = 500
	defaultHeartbeatInterval = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			PackageDir: defaultPackageDir,
			ArchiveDir: defaultArchiveDir,
			LogDir:     defaultLogDir,
		},
		Catalog: Catalog{
			PageSize:       defaultCatalogPageSize,
			RequestTimeout: defaultCatalogRequestTimeout,
		},
		Packaging: Packaging{
			Timeout: defaultPackagingTimeout,
		},
		Preservation: Preservation{
			RequestTimeout: defaultPreservationRequestTimeout,
			PollInterval:   defaultPreservationPollInterval,
			StalledAfter:   defaultPreservationStalledAfter,
		},
		Workflow: Workflow{
			PreservationDelayDays: defaultPreservationDelayDays,
			UpdateDelayDays:       defaultUpdateDelayDays,
			DownloadWorkers:       defaultDownloadWorkers,
			PackageWorkers:        defaultPackageWorkers,
			SubmitWorkers:         defaultSubmitWorkers,
			ConfirmWorkers:        defaultConfirmWorkers,
			MaxAttempts:           defaultMaxAttempts,
			QueuePollInterval:     defaultQueuePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			TaskLease:             defaultTaskLease,
			ObjectLockLease:       defaultObjectLockLease,
			SyncLockLease:         defaultSyncLockLease,
			EnqueueInterval:       defaultEnqueueInterval,
			EnqueueBatch:          defaultEnqueueBatch,
			SyncChunkSize:         defaultSyncChunkSize,
			HeartbeatInterval:     defaultHeartbeatInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
