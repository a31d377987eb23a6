package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		SiteURL                   string
		DefaultFromEmail          mail.Address
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Paystack PaystackConfig
		Redis    RedisConfig
		Kafka    KafkaConfig
		Search   SearchConfig
		Media    MediaConfig
		Ledger   LedgerConfig
		Jobs     JobsConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	PaystackConfig struct {
		BaseURL     string
		SecretKey   string
		PublicKey   string
		CallbackURL string
		Currency    string
		Timeout     time.Duration
	}

	RedisConfig struct {
		Addr        string
		Password    string
		DB          int
		WebhookTTL  time.Duration
		DialTimeout time.Duration
	}

	KafkaConfig struct {
		Brokers     []string
		TopicPrefix string
	}

	SearchConfig struct {
		ElasticURLs []string
		CourseIndex string
	}

	MediaConfig struct {
		Root string
	}

	LedgerConfig struct {
		Driver string // postgres | sqlite
		DSN    string
	}

	JobsConfig struct {
		StaleOrderSchedule string
		StaleOrderAfter    time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` (if it exists)
// and `<ENV>_`-prefixed environment variables.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		SiteURL:                   strings.TrimSuffix(v.GetString("siteURL"), "/"),
		DefaultFromEmail:          mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Paystack: PaystackConfig{
			BaseURL:     v.GetString("paystack.baseURL"),
			SecretKey:   v.GetString("paystack.secretKey"),
			PublicKey:   v.GetString("paystack.publicKey"),
			CallbackURL: v.GetString("paystack.callbackURL"),
			Currency:    v.GetString("paystack.currency"),
			Timeout:     v.GetDuration("paystack.timeout"),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("redis.addr"),
			Password:    v.GetString("redis.password"),
			DB:          v.GetInt("redis.db"),
			WebhookTTL:  v.GetDuration("redis.webhookTTL"),
			DialTimeout: v.GetDuration("redis.dialTimeout"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("kafka.brokers")),
			TopicPrefix: v.GetString("kafka.topicPrefix"),
		},
		Search: SearchConfig{
			ElasticURLs: splitList(v.GetString("search.elasticURLs")),
			CourseIndex: v.GetString("search.courseIndex"),
		},
		Media: MediaConfig{
			Root: v.GetString("media.root"),
		},
		Ledger: LedgerConfig{
			Driver: v.GetString("ledger.driver"),
			DSN:    v.GetString("ledger.dsn"),
		},
		Jobs: JobsConfig{
			StaleOrderSchedule: v.GetString("jobs.staleOrderSchedule"),
			StaleOrderAfter:    v.GetDuration("jobs.staleOrderAfter"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "E-miningCampus")
	v.SetDefault("secretKey", "x7!kd0-q2#mz9w=ff^1l8r&p6c@e$3vbt+h5(ugy)ojn4s")
	v.SetDefault("siteURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "campus")
	v.SetDefault("database.user", "campus")
	v.SetDefault("database.password", "campus")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("paystack.baseURL", "https://api.paystack.co")
	v.SetDefault("paystack.secretKey", "")
	v.SetDefault("paystack.publicKey", "")
	v.SetDefault("paystack.callbackURL", "http://localhost:8000/v1/payments/verify")
	v.SetDefault("paystack.currency", "GHS")
	v.SetDefault("paystack.timeout", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.webhookTTL", 24*time.Hour)
	v.SetDefault("redis.dialTimeout", 5*time.Second)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topicPrefix", "campus.")

	v.SetDefault("search.elasticURLs", "")
	v.SetDefault("search.courseIndex", "courses")

	v.SetDefault("media.root", "media")

	v.SetDefault("ledger.driver", "postgres")
	v.SetDefault("ledger.dsn", "")

	v.SetDefault("jobs.staleOrderSchedule", "@every 15m")
	v.SetDefault("jobs.staleOrderAfter", 24*time.Hour)
}

func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
