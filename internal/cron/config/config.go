package cron_config

import "time"

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Scheduled sync dispatch for stale integrations, every 5 minutes
	CronScheduleSyncDispatch string `env:"CRON_SCHEDULE_SYNC_DISPATCH" envDefault:"0 */5 * * * *"`
	// An integration whose last successful sync is older than this gets a
	// scheduled sync request
	SyncMaxAge time.Duration `env:"SYNC_MAX_AGE" envDefault:"1h"`
}
