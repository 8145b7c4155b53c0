// Package config provides the daemon configuration: command-line flags, an
// optional JSON config file and environment variable overrides.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/GophLock/internal/seal"
)

// Store drivers accepted by Options.StoreDriver.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options holds the configuration values for the daemon.
type Options struct {
	// Address is the listening address (ip:port).
	Address string `json:"address"`

	// StoreDriver selects the secure store: file, sqlite, postgres or memory.
	StoreDriver string `json:"store"`

	// DatabaseDSN is the PostgreSQL connection string.
	DatabaseDSN string `json:"database_dsn"`

	// DataDir holds the store, the SQLite database and the device key unless
	// their paths are set explicitly.
	DataDir string `json:"data_dir"`

	// StorePath is the file store or SQLite database path.
	StorePath string `json:"store_path"`

	// DeviceKeyFile holds the key the file store is encrypted under.
	DeviceKeyFile string `json:"device_key_file"`

	// KDFIterations is the PBKDF2 iteration count.
	KDFIterations int `json:"kdf_iterations"`

	// Sentinel replaces the security-code sentinel. Empty means the OS name.
	Sentinel string `json:"sentinel"`

	// BiometricCommand is run to authenticate biometrically. Empty disables
	// biometrics.
	BiometricCommand string `json:"biometric_command"`

	// FilesRoot confines gated file actions.
	FilesRoot string `json:"files_root"`

	// ShareDir receives shared copies.
	ShareDir string `json:"share_dir"`

	// ExportDir receives saved copies.
	ExportDir string `json:"export_dir"`

	// LogLevel is a zap level name.
	LogLevel string `json:"log_level"`

	// VerifyRate is the sustained security-code verifications per second.
	VerifyRate float64 `json:"verify_rate"`

	// VerifyBurst is the verification burst size.
	VerifyBurst int `json:"verify_burst"`

	// SweepInterval is how often SQL stores drop expired lockouts.
	SweepInterval time.Duration `json:"-"`

	// Config is the path to the config file.
	Config string `json:"-"`
}

// Parse builds Options from args and the environment. Precedence, lowest
// first: defaults, the config file, explicitly set flags, environment.
func Parse(args []string) (*Options, error) {
	opts := &Options{}
	fs := flag.NewFlagSet("gophlockd", flag.ContinueOnError)
	fs.StringVar(&opts.Address, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&opts.StoreDriver, "s", DriverFile, "store driver: file, sqlite, postgres or memory")
	fs.StringVar(&opts.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&opts.DataDir, "data", defaultDataDir(), "data directory")
	fs.StringVar(&opts.StorePath, "store-path", "", "store file or sqlite database path")
	fs.StringVar(&opts.DeviceKeyFile, "device-key", "", "device key file")
	fs.IntVar(&opts.KDFIterations, "kdf-iterations", seal.DefaultParams().Iterations, "PBKDF2 iterations")
	fs.StringVar(&opts.Sentinel, "sentinel", "", "security code sentinel")
	fs.StringVar(&opts.BiometricCommand, "biometric-cmd", "", "biometric authentication command")
	fs.StringVar(&opts.FilesRoot, "files-root", "", "root directory for gated file actions")
	fs.StringVar(&opts.ShareDir, "share-dir", "", "directory shared files are copied to")
	fs.StringVar(&opts.ExportDir, "export-dir", "", "directory saved files are copied to")
	fs.StringVar(&opts.LogLevel, "l", "info", "log level")
	fs.Float64Var(&opts.VerifyRate, "verify-rate", 1, "security code verifications per second")
	fs.IntVar(&opts.VerifyBurst, "verify-burst", 5, "security code verification burst")
	fs.DurationVar(&opts.SweepInterval, "sweep", time.Minute, "expired lockout sweep interval")
	fs.StringVar(&opts.Config, "config", "config.json", "path to config file")
	fs.StringVar(&opts.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		opts.Config = configPath
	}

	if opts.Config != "" {
		if err := opts.loadFile(fs); err != nil {
			return nil, err
		}
	}

	opts.applyEnv()
	opts.fillPaths()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// loadFile applies the config file, then re-applies the flags set on the
// command line so they win over it.
func (o *Options) loadFile(fs *flag.FlagSet) error {
	data, err := os.ReadFile(o.Config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}

	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" && f.Name != "c" {
			explicit[f.Name] = f.Value.String()
		}
	})

	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	for name, val := range explicit {
		if err := fs.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) applyEnv() {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		o.Address = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		o.DatabaseDSN = v
	}
	if v := os.Getenv("GOPHLOCK_STORE"); v != "" {
		o.StoreDriver = v
	}
	if v := os.Getenv("GOPHLOCK_DATA_DIR"); v != "" {
		o.DataDir = v
	}
	if v := os.Getenv("GOPHLOCK_BIOMETRIC_CMD"); v != "" {
		o.BiometricCommand = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
}

func (o *Options) fillPaths() {
	if o.StorePath == "" {
		name := "store.json"
		if o.StoreDriver == DriverSQLite {
			name = "store.db"
		}
		o.StorePath = filepath.Join(o.DataDir, name)
	}
	if o.DeviceKeyFile == "" {
		o.DeviceKeyFile = filepath.Join(o.DataDir, "device.key")
	}
	if o.FilesRoot == "" {
		o.FilesRoot = filepath.Join(o.DataDir, "files")
	}
	if o.ShareDir == "" {
		o.ShareDir = filepath.Join(o.DataDir, "shared")
	}
	if o.ExportDir == "" {
		o.ExportDir = filepath.Join(o.DataDir, "exported")
	}
}

// Validate reports the first inconsistent option.
func (o *Options) Validate() error {
	switch o.StoreDriver {
	case DriverFile, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres store requires a database DSN")
		}
	default:
		return fmt.Errorf("unknown store driver %q", o.StoreDriver)
	}
	if err := (seal.Params{Iterations: o.KDFIterations, KeySize: seal.DefaultParams().KeySize}).Validate(); err != nil {
		return err
	}
	if o.VerifyRate <= 0 || o.VerifyBurst < 1 {
		return errors.New("verify rate and burst must be positive")
	}
	if o.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "gophlock")
	}
	return ".gophlock"
}
