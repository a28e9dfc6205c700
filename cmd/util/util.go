package util

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ozonedb/ozone/lib/ozone"
	"github.com/ozonedb/ozone/lib/scheme"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	saltFileName = ".salt"
	saltLen      = 16
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupDBFlags adds the database configuration flags to a command
func SetupDBFlags(cmd *cobra.Command) {
	key := "dir"
	cmd.PersistentFlags().String(key, "./ozone-data", WrapString("Root directory of the database"))

	key = "zones"
	cmd.PersistentFlags().Int(key, 4, WrapString("Number of keyspace shards. Must stay constant for the lifetime of a database directory"))

	key = "workers"
	cmd.PersistentFlags().Int(key, 2, WrapString("Worker bots per zone"))

	key = "request-timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("How long to wait for a single operation (in seconds)"))

	key = "shutdown-timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("How long to wait for the drain on shutdown (in seconds)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warning", WrapString("Log level (debug, info, warning, error)"))

	key = "key-hash"
	cmd.PersistentFlags().String(key, "xxhash", WrapString("Key hashing scheme (xxhash, blake2b)"))

	key = "checksum"
	cmd.PersistentFlags().String(key, "crc32c", WrapString("Value checksum scheme (crc32c, sha256)"))

	key = "sign"
	cmd.PersistentFlags().String(key, "none", WrapString("Value signing scheme (none, hmac-sha256). Requires a passphrase"))

	key = "encrypt"
	cmd.PersistentFlags().String(key, "none", WrapString("Value encryption scheme (none, aes-gcm, chacha20). Requires a passphrase"))

	key = "passphrase"
	cmd.PersistentFlags().String(key, "", WrapString("Passphrase the signing and encryption keys are derived from. Can also be given via OZONE_PASSPHRASE"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ozone")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetDBConfig reads the database configuration from viper and derives the
// signing and encryption keys from the passphrase if needed.
func GetDBConfig() (ozone.Config, error) {
	cfg := ozone.DefaultConfig(viper.GetString("dir"))
	cfg.Zones = viper.GetInt("zones")
	cfg.WorkersPerZone = viper.GetInt("workers")
	cfg.RequestTimeout = time.Duration(viper.GetInt("request-timeout")) * time.Second
	cfg.ShutdownTimeout = time.Duration(viper.GetInt("shutdown-timeout")) * time.Second
	cfg.LogLevel = viper.GetString("log-level")
	cfg.Schemes = ozone.SchemeConfig{
		KeyHash:  viper.GetString("key-hash"),
		Checksum: viper.GetString("checksum"),
		Sign:     viper.GetString("sign"),
		Encrypt:  viper.GetString("encrypt"),
	}

	needsKeys := cfg.Schemes.Sign != "none" || cfg.Schemes.Encrypt != "none"
	if !needsKeys {
		return cfg, nil
	}

	passphrase := viper.GetString("passphrase")
	if passphrase == "" {
		return cfg, fmt.Errorf("scheme %q/%q needs a passphrase (--passphrase or OZONE_PASSPHRASE)",
			cfg.Schemes.Sign, cfg.Schemes.Encrypt)
	}

	salt, err := loadOrCreateSalt(cfg.Dir)
	if err != nil {
		return cfg, err
	}

	// Distinct keys per concern, derived from the same passphrase.
	deriver := scheme.NewArgon2Deriver()
	if cfg.Schemes.Sign != "none" {
		cfg.Schemes.SignKey = deriver.Derive([]byte(passphrase+"/sign"), salt)
	}
	if cfg.Schemes.Encrypt != "none" {
		cfg.Schemes.EncryptKey = deriver.Derive([]byte(passphrase+"/encrypt"), salt)
	}
	return cfg, nil
}

// loadOrCreateSalt returns the database's key derivation salt, creating it
// on first use. The salt is not secret, it only has to stay stable.
func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFileName)

	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) != saltLen {
			return nil, fmt.Errorf("salt file %s is damaged (%d bytes)", path, len(salt))
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read salt file %s: %w", path, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write salt file %s: %w", path, err)
	}
	return salt, nil
}
