package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/grovelabs/leafsense-backend/internal/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as int, using default", "provided", valStr, "default", defaultVal, "error", err)
		}
		return defaultVal
	}
	return i
}

func GetEnvAsFloat(key string, defaultVal float64, log *logger.Logger) float64 {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	f, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as float, using default", "provided", valStr, "default", defaultVal, "error", err)
		}
		return defaultVal
	}
	return f
}

func GetEnvAsDuration(key string, defaultVal time.Duration, log *logger.Logger) time.Duration {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Environment variable could not be parsed as duration, using default", "provided", valStr, "default", defaultVal, "error", err)
		}
		return defaultVal
	}
	return d
}
