package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"meetsync/models"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/google/generative-ai-go/genai"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB           *gorm.DB
	Redis        *redis.Client
	GeminiClient *genai.GenerativeModel
	AppConfig    Config
	envLoaded    bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMSGatewayConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"-"`
	Sender string `json:"sender"`
}

// SchedulingConfig holds the engine-wide dispatch and loop knobs. Per-user
// preferences (working hours, buffers, caps) live on the user record.
type SchedulingConfig struct {
	HumanizeDelayMinSec int `json:"humanize_delay_min_sec"`
	HumanizeDelayMaxSec int `json:"humanize_delay_max_sec"`
	BlackoutStartHour   int `json:"blackout_start_hour"`
	BlackoutEndHour     int `json:"blackout_end_hour"`
	MaxAgentRounds      int `json:"max_agent_rounds"`
}

type Config struct {
	Environment    string           `json:"environment"`
	ServerPort     string           `json:"server_port"`
	DBHost         string           `json:"db_host"`
	DBPort         string           `json:"db_port"`
	DBUser         string           `json:"db_user"`
	DBPassword     string           `json:"-"`
	DBName         string           `json:"db_name"`
	DBSSLMode      string           `json:"db_ssl_mode"`
	DBMaxIdleConns int              `json:"db_max_idle_conns"`
	DBMaxOpenConns int              `json:"db_max_open_conns"`
	Redis          RedisConfig      `json:"redis"`
	SentryDSN      string           `json:"-"`
	GeminiAPIKey   string           `json:"-"`
	GeminiModel    string           `json:"gemini_model"`
	SMTPHost       string           `json:"smtp_host"`
	SMTPPort       int              `json:"smtp_port"`
	SMTPUsername   string           `json:"smtp_username"`
	SMTPPassword   string           `json:"-"`
	IMAPHost       string           `json:"imap_host"`
	IMAPPort       int              `json:"imap_port"`
	IMAPUsername   string           `json:"imap_username"`
	IMAPPassword   string           `json:"-"`
	IMAPMailbox    string           `json:"imap_mailbox"`
	FromEmail      string           `json:"from_email"`
	FromName       string           `json:"from_name"`
	SMSGateway     SMSGatewayConfig `json:"sms_gateway"`
	WebhookAPIKey  string           `json:"-"`
	Scheduling     SchedulingConfig `json:"scheduling"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "meetsync"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "true") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN:    getEnv("SENTRY_DSN", ""),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvAsInt("IMAP_PORT", 993),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		FromEmail:    getEnv("FROM_EMAIL", ""),
		FromName:     getEnv("FROM_NAME", "MeetSync Assistant"),
		SMSGateway: SMSGatewayConfig{
			URL:    getEnv("SMS_GATEWAY_URL", ""),
			APIKey: getEnv("SMS_GATEWAY_API_KEY", ""),
			Sender: getEnv("SMS_GATEWAY_SENDER", ""),
		},
		WebhookAPIKey: getEnv("WEBHOOK_API_KEY", ""),
		Scheduling: SchedulingConfig{
			HumanizeDelayMinSec: getEnvAsInt("HUMANIZE_DELAY_MIN_SEC", 60),
			HumanizeDelayMaxSec: getEnvAsInt("HUMANIZE_DELAY_MAX_SEC", 300),
			BlackoutStartHour:   getEnvAsInt("BLACKOUT_START_HOUR", 0),
			BlackoutEndHour:     getEnvAsInt("BLACKOUT_END_HOUR", 5),
			MaxAgentRounds:      getEnvAsInt("MAX_AGENT_ROUNDS", 10),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the decision service")
	}
	if AppConfig.Scheduling.HumanizeDelayMinSec > AppConfig.Scheduling.HumanizeDelayMaxSec {
		return fmt.Errorf("HUMANIZE_DELAY_MIN_SEC must not exceed HUMANIZE_DELAY_MAX_SEC")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTPHost == "" || AppConfig.SMTPUsername == "" {
			return fmt.Errorf("SMTP credentials are required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

func ConnectRedis() error {
	if !AppConfig.Redis.Enabled {
		log.Println("Redis disabled - job scheduling will not be available")
		return nil
	}

	Redis = redis.NewClient(&redis.Options{
		Addr:     AppConfig.Redis.Address,
		Password: AppConfig.Redis.Password,
		DB:       AppConfig.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to Redis")
	return nil
}

// InitGemini initializes the decision-service client.
func InitGemini() error {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, option.WithAPIKey(AppConfig.GeminiAPIKey))
	if err != nil {
		return fmt.Errorf("unable to create Gemini client: %w", err)
	}
	GeminiClient = client.GenerativeModel(AppConfig.GeminiModel)

	log.Println("✅ Gemini API client initialized")
	return nil
}

func InitSentry() error {
	if AppConfig.SentryDSN == "" {
		log.Println("Sentry DSN not configured - error reporting disabled")
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         AppConfig.SentryDSN,
		Environment: AppConfig.Environment,
	})
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Channels: SMTP(%t), IMAP(%t), SMS(%t)",
		AppConfig.SMTPHost != "",
		AppConfig.IMAPHost != "",
		AppConfig.SMSGateway.URL != "")
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.SchedulingPreference{},
		&models.Contact{},
		&models.SchedulingRequest{},
		&models.Message{},
		&models.Confirmation{},
	)
}
