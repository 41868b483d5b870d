// Package config loads minefleet's TOML configuration, adapted from the
// teacher's cmd/berith/config.go (naoina/toml with a field-name-preserving
// codec, dumpconfig-style marshal-back).
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/naoina/toml"
)

// tomlSettings mirrors the teacher's codec: TOML keys use the same names
// as the Go struct fields, and an unknown field reports its Go type.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see %s#%s", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// RegistryConfig names the object-store bucket/prefix the registry lives
// in (§6: "<prefix>-<account>-<region>"), resolving the open question in
// DESIGN.md in favor of the account-qualified naming scheme.
type RegistryConfig struct {
	Prefix               string `toml:",omitempty"`
	Account              string
	Region               string
	AddressesPerInstance int
}

// AllocatorConfig tunes the allocator's tight reclaim threshold and retry
// schedule (spec.md §4.2).
type AllocatorConfig struct {
	StaleThreshold  time.Duration `toml:",omitempty"` // default 90s
	ReserveAttempts int           `toml:",omitempty"` // default 10
	SeedWaitRetries int           `toml:",omitempty"` // default 10, 5s apart
}

// ReclaimerConfig tunes the loose periodic reclaim pass (spec.md §4.3).
type ReclaimerConfig struct {
	Interval       time.Duration `toml:",omitempty"` // default 20m
	StaleThreshold time.Duration `toml:",omitempty"` // default 30m
	CASAttempts    int           `toml:",omitempty"` // default 60
}

// OrchestratorConfig tunes the mining Tick loop (spec.md §4.4).
type OrchestratorConfig struct {
	WorkCheckInterval     time.Duration `toml:",omitempty"` // default 5s
	ChallengeFetchInterval time.Duration `toml:",omitempty"` // default 5m
	ExpiryScanInterval    time.Duration `toml:",omitempty"` // default 10s
	Workers               int           `toml:",omitempty"` // default host CPU count
	DonationEvery         int           `toml:",omitempty"` // default 20
}

// MineAPIConfig points at the external Mine API (spec.md §6).
type MineAPIConfig struct {
	BaseURL string
	Timeout time.Duration `toml:",omitempty"`
}

// MinerConfig selects the external miner-binary backend (spec.md §4.6).
type MinerConfig struct {
	Backend    string // "exec" or "docker"
	BinaryPath string `toml:",omitempty"`
	Image      string `toml:",omitempty"`
	GraceWait  time.Duration `toml:",omitempty"`
}

// CacheConfig locates the worker-local disk cache (spec.md §4.2 step 1).
type CacheConfig struct {
	Dir string
}

// DonationConfig points at the external donation address endpoint
// (spec.md §9: "treated here as an injected capability that may be
// unavailable").
type DonationConfig struct {
	Endpoint string `toml:",omitempty"`
}

// ObjectStoreConfig selects and locates the backing object store.
// Backend "memory" is for local/dev runs (objectstore/memstore); "azure"
// wires objectstore/azureblob. The account key itself is never read from
// this file — it comes from the MINEFLEET_AZURE_ACCOUNT_KEY environment
// variable, the same secret-outside-TOML convention the teacher follows
// for its account passphrases.
type ObjectStoreConfig struct {
	Backend     string `toml:",omitempty"` // "memory" or "azure"
	AccountName string `toml:",omitempty"`
	Bucket      string `toml:",omitempty"`
}

// MetadataConfig points at the instance metadata service (spec.md §6).
type MetadataConfig struct {
	BaseURL string `toml:",omitempty"`
}

// SignerConfig carries the worker's already-derived signing key handle
// (spec.md §1: key generation is out of scope, only the key itself).
type SignerConfig struct {
	PrivateKeyHex string `toml:",omitempty"`
}

// Config is the complete minefleet.toml document shared by both binaries.
type Config struct {
	WorkerID     string `toml:",omitempty"`
	Registry     RegistryConfig
	ObjectStore  ObjectStoreConfig
	Allocator    AllocatorConfig
	Reclaimer    ReclaimerConfig
	Orchestrator OrchestratorConfig
	MineAPI      MineAPIConfig
	Metadata     MetadataConfig
	Signer       SignerConfig
	Miner        MinerConfig
	Cache        CacheConfig
	Donation     DonationConfig
	MetricsAddr  string `toml:",omitempty"`
	IPCPath      string `toml:",omitempty"`
}

// Default returns a Config with spec-mandated defaults filled in.
func Default() Config {
	return Config{
		ObjectStore: ObjectStoreConfig{
			Backend: "memory",
		},
		Allocator: AllocatorConfig{
			StaleThreshold:  90 * time.Second,
			ReserveAttempts: 10,
			SeedWaitRetries: 10,
		},
		Reclaimer: ReclaimerConfig{
			Interval:       20 * time.Minute,
			StaleThreshold: 30 * time.Minute,
			CASAttempts:    60,
		},
		Orchestrator: OrchestratorConfig{
			WorkCheckInterval:      5 * time.Second,
			ChallengeFetchInterval: 5 * time.Minute,
			ExpiryScanInterval:     10 * time.Second,
			DonationEvery:          20,
		},
		Miner: MinerConfig{
			Backend:   "exec",
			GraceWait: 10 * time.Second,
		},
		Cache: CacheConfig{
			Dir: "/var/lib/minefleet",
		},
		MetricsAddr: ":9400",
		IPCPath:     "minefleet.ipc",
	}
}

// Load reads and decodes a TOML file into cfg, same error-wrapping
// behavior as the teacher's loadConfig (file name attached to line
// errors).
func Load(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// Dump marshals cfg back to TOML, as the teacher's `dumpconfig` command
// does for operator inspection.
func Dump(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
