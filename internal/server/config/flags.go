package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-k string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN, or "memory"
//	-t int      session validity, minutes
//	-r int      "remember me" session validity, minutes
//	-m int      failed logins before lockout
//	-l int      lockout duration, minutes
//	-i int      expired-session sweep interval, minutes (0 disables)
//	-f string   threat rules TOML file
//	-x int      audit export interval, minutes (0 disables)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-y string   comma-separated trusted proxy addresses or CIDRs
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-k", "-d", "-t", "-r", "-m", "-l", "-i", "-f", "-x", "-u", "-p", "-b", "-g", "-e", "-y",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port to run server")
	fs.StringVar(&config.EndpointAddrGRPC, "k", config.EndpointAddrGRPC, "gRPC address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN or \"memory\"")

	sessionValidity := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session validity (in minutes)")
	rememberValidity := fs.Int("r", int(config.RememberValidityDuration.Minutes()), "remembered session validity (in minutes)")
	fs.IntVar(&config.MaxLoginAttempts, "m", config.MaxLoginAttempts, "failed logins before lockout")
	lockout := fs.Int("l", int(config.LockoutDuration.Minutes()), "lockout duration (in minutes)")
	cleanup := fs.Int("i", int(config.SessionCleanupInterval.Minutes()), "expired session sweep interval (in minutes)")
	fs.StringVar(&config.ThreatRulesFile, "f", config.ThreatRulesFile, "threat rules TOML file")
	export := fs.Int("x", int(config.AuditExportInterval.Minutes()), "audit export interval (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	proxies := fs.String("y", strings.Join(config.TrustedProxies, ","), "trusted proxy addresses or CIDRs, comma-separated")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.RememberValidityDuration = time.Duration(*rememberValidity) * time.Minute
	config.LockoutDuration = time.Duration(*lockout) * time.Minute
	config.SessionCleanupInterval = time.Duration(*cleanup) * time.Minute
	config.AuditExportInterval = time.Duration(*export) * time.Minute
	config.TrustedProxies = splitList(*proxies)
}

// splitList splits a comma-separated flag value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
