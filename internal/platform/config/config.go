package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of key ("1", "true", "yes", "on" and
// their negatives), or fallback.
func GetEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

// GetEnvDuration parses key as a Go duration ("600ms"). A bare integer is
// read as milliseconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

// Media holds the recording options shared by senders.
type Media struct {
	AudioBitsPerSecond int
	VideoBitsPerSecond int
	RecorderPeriod     time.Duration
	MIME               string
}

// MediaFromEnv reads AUDIO_BITRATE, VIDEO_BITRATE, RECORDER_PERIOD and
// MEDIA_MIME.
func MediaFromEnv() Media {
	return Media{
		AudioBitsPerSecond: GetEnvInt("AUDIO_BITRATE", 320000),
		VideoBitsPerSecond: GetEnvInt("VIDEO_BITRATE", 500000),
		RecorderPeriod:     GetEnvDuration("RECORDER_PERIOD", 600*time.Millisecond),
		MIME:               GetEnv("MEDIA_MIME", "video/webm;codecs=vp8,opus"),
	}
}
