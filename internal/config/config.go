package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	Device  DeviceConfig
	Camera  CameraConfig
	Redis   RedisConfig
	Devices DevicesConfig
}

// ServerConfig holds control-API server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// DeviceConfig holds the HTTP timeouts used against the display devices.
// Uploads get their own longer timeout; the firmware writes flash while the
// request is in flight.
type DeviceConfig struct {
	RequestTimeout int // seconds
	UploadTimeout  int // seconds
}

// CameraConfig holds snapshot-fetch configuration
type CameraConfig struct {
	FetchTimeout int // seconds, applied per camera per cycle
}

// RedisConfig holds the optional control-bus configuration. An empty Addr
// disables the bus entirely.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	CommandStream string
	ConsumerGroup string
	ConsumerName  string
}

// DevicesConfig locates the device registry file
type DevicesConfig struct {
	Path string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Device: DeviceConfig{
			RequestTimeout: getEnvAsInt("DEVICE_REQUEST_TIMEOUT", 10),
			UploadTimeout:  getEnvAsInt("DEVICE_UPLOAD_TIMEOUT", 30),
		},
		Camera: CameraConfig{
			FetchTimeout: getEnvAsInt("CAMERA_FETCH_TIMEOUT", 10),
		},
		Redis: RedisConfig{
			Addr:          getRedisAddr(),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			CommandStream: getEnv("REDIS_COMMAND_STREAM", "smalltv:commands"),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "smalltv-cameras"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", ""),
		},
		Devices: DevicesConfig{
			Path: getEnv("DEVICES_PATH", "devices.yaml"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getRedisAddr resolves the Redis address from REDIS_URL (with or without the
// redis:// scheme) or REDIS_ADDR. Empty disables the control bus.
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "")
}
