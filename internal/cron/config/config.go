package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Dispatch due delivery triggers, every 15 seconds
	CronScheduleDispatchTriggers string `env:"CRON_SCHEDULE_DISPATCH_TRIGGERS" envDefault:"*/15 * * * * *"`
	// Purge expired jobs, triggers and events, every hour
	CronSchedulePurgeExpired string `env:"CRON_SCHEDULE_PURGE_EXPIRED" envDefault:"0 0 * * * *"`
}
