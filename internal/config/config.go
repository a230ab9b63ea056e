package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	JWT       JWTConfig       `yaml:"jwt"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Booking   BookingConfig   `yaml:"booking"`
	Payment   PaymentConfig   `yaml:"payment"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// LedgerConfig selects the store holding availability cells
type LedgerConfig struct {
	Backend string `yaml:"backend"` // "postgres", "firestore" or "memory"
}

// FirestoreConfig contains Cloud Firestore settings for the ledger backend
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	CellCollection  string `yaml:"cell_collection"`
}

// FirebaseConfig contains Firebase Cloud Messaging settings
type FirebaseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	StaffTopic      string `yaml:"staff_topic"`
}

// SendGridConfig contains staff e-mail settings
type SendGridConfig struct {
	Enabled     bool     `yaml:"enabled"`
	APIKey      string   `yaml:"api_key"`
	FromEmail   string   `yaml:"from_email"`
	FromName    string   `yaml:"from_name"`
	TemplateID  string   `yaml:"template_id"`
	StaffEmails []string `yaml:"staff_emails"`
}

// JWTConfig contains identity token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// StorageConfig contains proof-of-payment storage settings
type StorageConfig struct {
	Type           string   `yaml:"type"`       // "mock"
	UploadDir      string   `yaml:"upload_dir"` // For mock storage
	BaseURL        string   `yaml:"base_url"`   // Server base URL for mock URLs
	URLExpiryMins  int      `yaml:"url_expiry_minutes"`
	AllowedTypes   []string `yaml:"allowed_types"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// BookingConfig bounds reservations and holds
type BookingConfig struct {
	HoldDuration           time.Duration `yaml:"hold_duration"`
	HorizonDays            int           `yaml:"horizon_days"`
	MaxNights              int           `yaml:"max_nights"`
	MaxCellsPerReservation int           `yaml:"max_cells_per_reservation"`
	ReserveAttempts        int           `yaml:"reserve_attempts"`
	TransitionAttempts     int           `yaml:"transition_attempts"`
	JobBatchSize           int32         `yaml:"job_batch_size"`
	// ReconcileLookback is how far back the reconcile job looks for changed bookings.
	ReconcileLookback      time.Duration `yaml:"reconcile_lookback"`
}

// PaymentConfig contains installment policy
type PaymentConfig struct {
	// DownPaymentPercent of the total that confirms a booking; 0 means any verified amount.
	DownPaymentPercent int64 `yaml:"down_payment_percent"`
}

// NotifyConfig sizes the asynchronous event queue
type NotifyConfig struct {
	Workers    int `yaml:"workers"`
	QueueSize  int `yaml:"queue_size"`
	MaxRetries int `yaml:"max_retries"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireTentativeBookings  string `yaml:"expire_tentative_bookings"`
	CompleteFinishedBookings string `yaml:"complete_finished_bookings"`
	ReconcileReservations    string `yaml:"reconcile_reservations"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Ledger
	if val := os.Getenv("LEDGER_BACKEND"); val != "" {
		c.Ledger.Backend = val
	}
	if val := os.Getenv("FIRESTORE_PROJECT_ID"); val != "" {
		c.Firestore.ProjectID = val
	}

	// Notifications
	if val := os.Getenv("FIREBASE_CREDENTIALS_FILE"); val != "" {
		c.Firebase.CredentialsFile = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Storage
	if val := os.Getenv("UPLOAD_DIR"); val != "" {
		c.Storage.UploadDir = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Booking
	if val := os.Getenv("BOOKING_HOLD_DURATION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Booking.HoldDuration = d
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = c.Database.Driver
	}
	switch c.Ledger.Backend {
	case "postgres", "memory":
		if c.Ledger.Backend != c.Database.Driver {
			return fmt.Errorf("ledger backend %s requires database driver %s", c.Ledger.Backend, c.Ledger.Backend)
		}
	case "firestore":
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore project id is required for the firestore ledger")
		}
		if c.Firestore.CellCollection == "" {
			c.Firestore.CellCollection = "availability_cells"
		}
	default:
		return fmt.Errorf("unsupported ledger backend: %s", c.Ledger.Backend)
	}

	if c.Firebase.Enabled && c.Firebase.StaffTopic == "" {
		c.Firebase.StaffTopic = "staff"
	}
	if c.SendGrid.Enabled {
		if c.SendGrid.APIKey == "" {
			return fmt.Errorf("sendgrid api key is required when sendgrid is enabled")
		}
		if c.SendGrid.FromEmail == "" {
			return fmt.Errorf("sendgrid from email is required when sendgrid is enabled")
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}
	if c.Storage.URLExpiryMins <= 0 {
		c.Storage.URLExpiryMins = 15
	}
	if c.Storage.MaxUploadBytes <= 0 {
		c.Storage.MaxUploadBytes = 10 << 20
	}

	// Booking defaults
	if c.Booking.HoldDuration <= 0 {
		c.Booking.HoldDuration = 24 * time.Hour
	}
	if c.Booking.HorizonDays <= 0 {
		c.Booking.HorizonDays = 365
	}
	if c.Booking.MaxNights <= 0 {
		c.Booking.MaxNights = 30
	}
	if c.Booking.MaxCellsPerReservation <= 0 {
		c.Booking.MaxCellsPerReservation = 120
	}
	if c.Booking.ReserveAttempts <= 0 {
		c.Booking.ReserveAttempts = 3
	}
	if c.Booking.TransitionAttempts <= 0 {
		c.Booking.TransitionAttempts = 5
	}
	if c.Booking.JobBatchSize <= 0 {
		c.Booking.JobBatchSize = 100
	}
	if c.Booking.ReconcileLookback <= 0 {
		c.Booking.ReconcileLookback = 26 * time.Hour
	}

	if c.Payment.DownPaymentPercent < 0 || c.Payment.DownPaymentPercent > 100 {
		return fmt.Errorf("down payment percent must be between 0 and 100: %d", c.Payment.DownPaymentPercent)
	}

	if c.Notify.Workers <= 0 {
		c.Notify.Workers = 2
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 256
	}
	if c.Notify.MaxRetries < 0 {
		c.Notify.MaxRetries = 0
	}

	// Scheduler defaults
	if c.Scheduler.ExpireTentativeBookings == "" {
		c.Scheduler.ExpireTentativeBookings = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.CompleteFinishedBookings == "" {
		c.Scheduler.CompleteFinishedBookings = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ReconcileReservations == "" {
		c.Scheduler.ReconcileReservations = "0 30 3 * * *" // 3:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
