package config

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"11000"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"SYNCSTACK_POSTGRES_HOST,required"`
	Port            string `env:"SYNCSTACK_POSTGRES_PORT,required"`
	User            string `env:"SYNCSTACK_POSTGRES_USER,required"`
	DBName          string `env:"SYNCSTACK_POSTGRES_DB_NAME,required"`
	Password        string `env:"SYNCSTACK_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"SYNCSTACK_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"SYNCSTACK_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"SYNCSTACK_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"SYNCSTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"SYNCSTACK_POSTGRES_SSL_MODE"`
}
