package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port             string
	AllowedOrigins   []string
	HistoryLimit     int
	MaxMessageLength int
	LogLevel         string
}

func Load() Config {
	port := getEnv("PORT", "4000")
	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	historyLimit := getEnvAsInt("HISTORY_LIMIT", 50)
	maxMsgLen := getEnvAsInt("MAX_MESSAGE_LENGTH", 1000)
	logLevel := getEnv("LOG_LEVEL", "info")

	allowed := strings.Split(origins, ",")
	for i := range allowed {
		allowed[i] = strings.TrimSpace(allowed[i])
	}

	return Config{
		Port:             port,
		AllowedOrigins:   allowed,
		HistoryLimit:     historyLimit,
		MaxMessageLength: maxMsgLen,
		LogLevel:         logLevel,
	}
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
