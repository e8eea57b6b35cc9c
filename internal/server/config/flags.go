package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/userhub/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   REST API bind address (e.g., ":8080")
//	-m string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w string   public base URL for hosted photos
//	-f string   upload staging directory
//	-z int      max profile photo size, bytes
//	-o string   photo sweep cron schedule ("" disables)
//	-l string   log level
//
// Duration flags are accepted as integers in minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-w", "-f", "-z", "-o", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run REST API")
	fs.StringVar(&config.GRPCAddr, "m", config.GRPCAddr, "address and port to run gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3PublicURL, "w", config.S3PublicURL, "public base URL of hosted photos")
	fs.StringVar(&config.UploadDir, "f", config.UploadDir, "upload staging directory")
	fs.Int64Var(&config.MaxPhotoSize, "z", config.MaxPhotoSize, "max profile photo size (in bytes)")
	fs.StringVar(&config.PhotoSweepSchedule, "o", config.PhotoSweepSchedule, "photo sweep cron schedule")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// only an explicit -t replaces the value; sub-minute durations from
	// other layers would otherwise be truncated
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
		}
	})
}
