// Package config reads process configuration from the environment.
//
// Values come from OS environment variables, optionally seeded from a .env
// file. Existing variables always win over the file unless DOTENV_OVERLOAD=1.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// LoadDotenv loads a .env file once per process.
// Priority: ENV_FILE if set, else .env in the working directory and up to
// two parents. Skipped when NO_DOTENV=1. Missing files are not an error.
func LoadDotenv() {
	dotenvOnce.Do(loadDotenv)
}

func loadDotenv() {
	if os.Getenv("NO_DOTENV") == "1" {
		return
	}

	overload := os.Getenv("DOTENV_OVERLOAD") == "1"
	load := func(path string) bool {
		if !fileExists(path) {
			return false
		}
		var err error
		if overload {
			err = godotenv.Overload(path)
		} else {
			err = godotenv.Load(path)
		}
		if err != nil {
			slog.Warn("[config] could not load env file", "path", path, "error", err)
			return false
		}
		slog.Info("[config] loaded env file", "path", path)
		return true
	}

	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		load(envFile)
		return
	}

	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 3; i++ {
		if load(filepath.Join(dir, ".env")) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// GetEnv returns the trimmed value of key, or fallback when unset or blank.
func GetEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// GetEnvInt returns key as a positive int. Unset, unparsable or non-positive
// values fall back with a warning.
func GetEnvInt(key string, fallback int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		slog.Warn("[config] invalid positive integer, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

// GetEnvMillis reads key as a positive number of milliseconds.
func GetEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := GetEnvInt(key, int(fallback/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
