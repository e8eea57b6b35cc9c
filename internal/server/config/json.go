package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/userhub/internal/flagx"
	"github.com/dmitrijs2005/userhub/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON configuration file.
// Durations accept both "1h" strings and integer nanoseconds.
type JsonConfig struct {
	HTTPAddr                    string          `json:"http_addr"`
	GRPCAddr                    string          `json:"grpc_addr"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	S3RootUser                  string          `json:"s3_root_user"`
	S3RootPassword              string          `json:"s3_root_password"`
	S3Bucket                    string          `json:"s3_bucket"`
	S3Region                    string          `json:"s3_region"`
	S3BaseEndpoint              string          `json:"s3_base_endpoint"`
	S3PublicURL                 string          `json:"s3_public_url"`
	UploadDir                   string          `json:"upload_dir"`
	MaxPhotoSize                *int64          `json:"max_photo_size"`
	LoginRateInterval           *timex.Duration `json:"login_rate_interval"`
	LoginRateBurst              *int            `json:"login_rate_burst"`
	PhotoSweepSchedule          *string         `json:"photo_sweep_schedule"`
	PhotoSweepGrace             *timex.Duration `json:"photo_sweep_grace"`
	LogLevel                    string          `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag into config. Without the flag nothing is loaded.
//
// Only keys present in the file override the current values. If the file
// cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicURL, c.S3PublicURL)
	setString(&config.UploadDir, c.UploadDir)
	if c.MaxPhotoSize != nil {
		config.MaxPhotoSize = *c.MaxPhotoSize
	}
	if c.LoginRateInterval != nil {
		config.LoginRateInterval = c.LoginRateInterval.Duration
	}
	if c.LoginRateBurst != nil {
		config.LoginRateBurst = *c.LoginRateBurst
	}
	if c.PhotoSweepSchedule != nil {
		config.PhotoSweepSchedule = *c.PhotoSweepSchedule
	}
	if c.PhotoSweepGrace != nil {
		config.PhotoSweepGrace = c.PhotoSweepGrace.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
