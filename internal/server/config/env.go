package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/userhub/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// parseEnv overlays Config with environment variables.
//
// A dotenv file is loaded first: the path given with -env, or ./.env when
// present. Variables already set in the process environment win over the
// file. A missing explicit -env file or a malformed value panics, matching
// the JSON and flag layers.
//
// Recognized variables:
//
//	HTTP_ADDR, GRPC_ADDR, DATABASE_DSN, JWT_SECRET, ACCESS_TOKEN_TTL,
//	S3_ROOT_USER, S3_ROOT_PASSWORD, S3_BUCKET, S3_REGION, S3_BASE_ENDPOINT,
//	S3_PUBLIC_URL, UPLOAD_DIR, MAX_PHOTO_SIZE, LOGIN_RATE_INTERVAL,
//	LOGIN_RATE_BURST, PHOTO_SWEEP_SCHEDULE, PHOTO_SWEEP_GRACE, LOG_LEVEL
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString("HTTP_ADDR", &config.HTTPAddr)
	envString("GRPC_ADDR", &config.GRPCAddr)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("JWT_SECRET", &config.SecretKey)
	envDuration("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString("S3_PUBLIC_URL", &config.S3PublicURL)
	envString("UPLOAD_DIR", &config.UploadDir)
	envInt64("MAX_PHOTO_SIZE", &config.MaxPhotoSize)
	envDuration("LOGIN_RATE_INTERVAL", &config.LoginRateInterval)

	burst := int64(config.LoginRateBurst)
	envInt64("LOGIN_RATE_BURST", &burst)
	config.LoginRateBurst = int(burst)

	if v, ok := os.LookupEnv("PHOTO_SWEEP_SCHEDULE"); ok {
		// an explicitly empty schedule disables the sweeper
		config.PhotoSweepSchedule = v
	}
	envDuration("PHOTO_SWEEP_GRACE", &config.PhotoSweepGrace)
	envString("LOG_LEVEL", &config.LogLevel)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt64(key string, dst *int64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(err)
	}
	*dst = n
}
