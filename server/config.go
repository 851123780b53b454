package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config конфигурация сервера
type Config struct {
	// Сервер
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	// База определений отчетов
	DatabasePath    string        `yaml:"database_path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// Google Cloud
	GCPProjectID          string `yaml:"gcp_project_id"`
	BigQueryLocation      string `yaml:"bigquery_location"`
	CredentialsFile       string `yaml:"credentials_file"`
	GCSBucket             string `yaml:"gcs_bucket"`
	SystemInstructionPath string `yaml:"system_instruction_path"`

	// Gemini
	GeminiAPIKey            string        `yaml:"gemini_api_key"`
	GeminiModel             string        `yaml:"gemini_model"`
	GeminiTimeout           time.Duration `yaml:"gemini_timeout"`
	GeminiMaxRetries        int           `yaml:"gemini_max_retries"`
	GeminiRequestsPerSecond float64       `yaml:"gemini_requests_per_second"`

	// Рендеринг отчетов
	LookImageURLTemplate string        `yaml:"look_image_url_template"`
	AllowRawStaticText   bool          `yaml:"allow_raw_static_text"`
	GeneratedReportTTL   time.Duration `yaml:"generated_report_ttl"`
	QueryConcurrency     int           `yaml:"query_concurrency"`

	// Логирование
	LogBufferSize int `yaml:"log_buffer_size"`
}

// DefaultConfig конфигурация по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Port:                    "8080",
		ReadTimeout:             5 * time.Minute,
		WriteTimeout:            10 * time.Minute, // Генерация шаблона моделью бывает долгой
		DatabasePath:            "reports.db",
		MaxOpenConns:            25,
		MaxIdleConns:            5,
		ConnMaxLifetime:         5 * time.Minute,
		BigQueryLocation:        "US",
		SystemInstructionPath:   "system_instructions/default_system_instruction.txt",
		GeminiTimeout:           180 * time.Second,
		GeminiMaxRetries:        3,
		GeminiRequestsPerSecond: 1,
		GeneratedReportTTL:      time.Hour,
		QueryConcurrency:        4,
		LogBufferSize:           100,
	}
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем файл CONFIG_FILE, затем переменные окружения
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	// Валидация
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// loadFile накладывает YAML файл на текущие значения
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Сервер
	c.Port = getEnv("SERVER_PORT", getEnv("PORT", c.Port))
	c.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.WriteTimeout)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)

	// База данных
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns)
	c.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.ConnMaxLifetime)

	// Google Cloud
	c.GCPProjectID = getEnv("GCP_PROJECT_ID", c.GCPProjectID)
	c.BigQueryLocation = getEnv("BIGQUERY_LOCATION", c.BigQueryLocation)
	c.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.CredentialsFile)
	c.GCSBucket = getEnv("GCS_BUCKET_NAME", c.GCSBucket)
	c.SystemInstructionPath = getEnv("GCS_SYSTEM_INSTRUCTION_PATH", c.SystemInstructionPath)

	// Gemini
	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnv("GEMINI_MODEL", c.GeminiModel)
	c.GeminiTimeout = getEnvDuration("GEMINI_TIMEOUT", c.GeminiTimeout)
	c.GeminiMaxRetries = getEnvInt("GEMINI_MAX_RETRIES", c.GeminiMaxRetries)
	c.GeminiRequestsPerSecond = getEnvFloat("GEMINI_REQUESTS_PER_SECOND", c.GeminiRequestsPerSecond)

	// Рендеринг
	c.LookImageURLTemplate = getEnv("LOOKER_LOOK_IMAGE_URL", c.LookImageURLTemplate)
	c.AllowRawStaticText = getEnvBool("ALLOW_RAW_STATIC_TEXT", c.AllowRawStaticText)
	c.GeneratedReportTTL = getEnvDuration("GENERATED_REPORT_TTL", c.GeneratedReportTTL)
	c.QueryConcurrency = getEnvInt("QUERY_CONCURRENCY", c.QueryConcurrency)

	// Логирование
	c.LogBufferSize = getEnvInt("LOG_BUFFER_SIZE", c.LogBufferSize)
}

// Validate валидирует конфигурацию
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}

	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be greater than 0")
	}

	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max idle connections must be greater than 0")
	}

	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle connections cannot be greater than max open connections")
	}

	if c.GeminiMaxRetries < 0 {
		return fmt.Errorf("gemini max retries cannot be negative")
	}

	if c.GeminiRequestsPerSecond <= 0 {
		return fmt.Errorf("gemini requests per second must be greater than 0")
	}

	if c.GeneratedReportTTL <= 0 {
		return fmt.Errorf("generated report TTL must be greater than 0")
	}

	if c.QueryConcurrency <= 0 {
		return fmt.Errorf("query concurrency must be greater than 0")
	}

	if c.LookImageURLTemplate != "" && !strings.Contains(c.LookImageURLTemplate, "{look_id}") {
		return fmt.Errorf("look image URL template must contain {look_id}")
	}

	return nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения как float64 или возвращает значение по умолчанию
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool получает переменную окружения как bool или возвращает значение по умолчанию
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList получает список через запятую
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
