package config

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"11000"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL,required"`
}

type DatabaseConfig struct {
	Host            string `env:"TRICKLE_POSTGRES_HOST,required"`
	Port            string `env:"TRICKLE_POSTGRES_PORT,required"`
	User            string `env:"TRICKLE_POSTGRES_USER,required"`
	DBName          string `env:"TRICKLE_POSTGRES_DB_NAME,required"`
	Password        string `env:"TRICKLE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"TRICKLE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"TRICKLE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"TRICKLE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"TRICKLE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"TRICKLE_POSTGRES_SSL_MODE" envDefault:"require"`
}

type StorageConfig struct {
	Region           string `env:"AWS_REGION" envDefault:"eu-west-1"`
	AccessKeyID      string `env:"AWS_ACCESS_KEY_ID,required"`
	AccessKeySecret  string `env:"AWS_SECRET_ACCESS_KEY,required"`
	AttachmentBucket string `env:"BUCKET_NAME_JOB_ATTACHMENT" envDefault:"trickle-attachments"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST,required"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
}

type DeliveryConfig struct {
	// DefaultRateIntervalSeconds spaces per-recipient triggers when the
	// submission does not specify an interval.
	DefaultRateIntervalSeconds int `env:"DELIVERY_DEFAULT_RATE_INTERVAL_SECONDS" envDefault:"60"`
	// MaxRecipients is the hard ceiling on unique recipients per job.
	MaxRecipients int `env:"DELIVERY_MAX_RECIPIENTS" envDefault:"500"`
	// DispatchBatchSize bounds how many due triggers one dispatcher tick
	// publishes.
	DispatchBatchSize int `env:"DELIVERY_DISPATCH_BATCH_SIZE" envDefault:"100"`
	// JobRetentionDays and EventRetentionDays set the expiry horizon on
	// job records and delivery events.
	JobRetentionDays   int `env:"DELIVERY_JOB_RETENTION_DAYS" envDefault:"90"`
	EventRetentionDays int `env:"DELIVERY_EVENT_RETENTION_DAYS" envDefault:"90"`
	// TriggerGraceHours is how long past its fire time an unfired trigger
	// stays around before the purge removes it.
	TriggerGraceHours int `env:"DELIVERY_TRIGGER_GRACE_HOURS" envDefault:"24"`
}
