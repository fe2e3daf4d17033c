package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// DefaultScannerReadLimit bounds one scanner message.
const DefaultScannerReadLimit = 64 << 10

// Config holds the relay server settings.
type Config struct {
	Port               int
	PasswordHash       []byte // bcrypt hash of PASSWORD, the plaintext is not kept
	LogDirectory       string
	DatabasePath       string
	SessionTTL         time.Duration
	RotationInterval   time.Duration // Jak często animacja odświeża kod
	RotationDuration   time.Duration // Jak długo animacja trwa po start_qr_rotation
	ScanFlushInterval  time.Duration
	ScanBufferLimit    int
	ScanRetention      time.Duration // 0 = log skanów bez limitu
	QRPixelsPerModule  int
	ViewerReadLimit    int64
	ScannerReadLimit   int64 // Musi pomieścić największy kod QR (7089 cyfr) w kopercie JSON
	ConnectionDeadline time.Duration
}

// ScannerConfig holds the screen scanner (client) settings.
type ScannerConfig struct {
	ServerURL      string
	RegionX        int
	RegionY        int
	RegionWidth    int
	RegionHeight   int
	ScanInterval   time.Duration
	ErrorBackoff   time.Duration
	Cooldown       time.Duration
	StatusInterval time.Duration
	WeChatModelDir string
	BandsFile      string
	LogDirectory   string
}

// Load reads the server configuration from the environment (and .env when present).
func Load() *Config {
	loadDotEnv()

	return &Config{
		Port:               getEnvAsInt("PORT", 5000),
		PasswordHash:       HashPassword(getEnv("PASSWORD", "bankid-relay")),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:       getEnv("DB_PATH", filepath.Join(".", "data", "scans.db")),
		SessionTTL:         getEnvAsDuration("SESSION_TTL", 10*time.Minute),
		RotationInterval:   getEnvAsDuration("ROTATION_INTERVAL", time.Second),
		RotationDuration:   getEnvAsDuration("ROTATION_DURATION", 30*time.Second),
		ScanFlushInterval:  getEnvAsDuration("SCAN_FLUSH_INTERVAL", 30*time.Second),
		ScanBufferLimit:    getEnvAsInt("SCAN_BUFFER_LIMIT", 100),
		ScanRetention:      getEnvAsDuration("SCAN_RETENTION", 30*24*time.Hour),
		QRPixelsPerModule:  getEnvAsInt("QR_PIXELS_PER_MODULE", 10),
		ViewerReadLimit:    getEnvAsInt64("VIEWER_READ_LIMIT", 4096),
		ScannerReadLimit:   getEnvAsInt64("SCANNER_READ_LIMIT", DefaultScannerReadLimit),
		ConnectionDeadline: getEnvAsDuration("CONNECTION_DEADLINE", 60*time.Second),
	}
}

// LoadScanner reads the scanner configuration from the environment (and .env when present).
func LoadScanner() *ScannerConfig {
	loadDotEnv()

	return &ScannerConfig{
		ServerURL:      getEnv("SERVER_URL", "ws://127.0.0.1:5000/ws/scanner"),
		RegionX:        getEnvAsInt("REGION_X", 0),
		RegionY:        getEnvAsInt("REGION_Y", 0),
		RegionWidth:    getEnvAsInt("REGION_W", 400),
		RegionHeight:   getEnvAsInt("REGION_H", 300),
		ScanInterval:   getEnvAsDuration("SCAN_INTERVAL", 500*time.Millisecond),
		ErrorBackoff:   getEnvAsDuration("ERROR_BACKOFF", time.Second),
		Cooldown:       getEnvAsDuration("COOLDOWN", 3*time.Second),
		StatusInterval: getEnvAsDuration("STATUS_INTERVAL", time.Second),
		WeChatModelDir: getEnv("WECHAT_MODEL_DIR", ""),
		BandsFile:      getEnv("BANDS_FILE", ""),
		LogDirectory:   getEnv("LOG_DIR", filepath.Join(".", "logs")),
	}
}

// CheckPassword reports whether password matches the configured one.
func (c *Config) CheckPassword(password string) bool {
	if len(c.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(password)) == nil
}

func loadDotEnv() {
	// Brak pliku .env nie jest błędem
	_ = godotenv.Load()
}

// HashPassword returns the bcrypt hash of password, nil for an empty one.
func HashPassword(password string) []byte {
	if password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil
	}
	return hash
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("500ms") or plain seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
