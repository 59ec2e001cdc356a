package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config stores repository-local settings as TOML, covering named remotes
// plus every key a repo can tune: author identity, object compression,
// GC/prune policy, commit signing, at-rest encryption, per-memory-class
// merge strategy overrides, pack delta selection, similarity thresholds,
// and the default trust level assigned to newly seen keys.
type Config struct {
	Remotes map[string]string `toml:"remotes,omitempty"`

	Author     AuthorConfig     `toml:"author"`
	Core       CoreConfig       `toml:"core"`
	GC         GCConfig         `toml:"gc"`
	Signing    SigningConfig    `toml:"signing"`
	Encryption EncryptionConfig `toml:"encryption"`
	Merge      MergeConfig      `toml:"merge"`
	Pack       PackConfig       `toml:"pack"`
	Similarity SimilarityConfig `toml:"similarity"`
	Trust      TrustConfig      `toml:"trust"`
}

// AuthorConfig identifies the default commit author.
type AuthorConfig struct {
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// CoreConfig covers the basic repository-wide switches.
type CoreConfig struct {
	DefaultBranch string `toml:"default_branch"`
	Compression   bool   `toml:"compression"`
}

// GCConfig controls reflog-root retention during garbage collection.
type GCConfig struct {
	PruneDays int `toml:"prune_days"`
}

// SigningConfig controls whether commits are signed by default (without
// passing --sign explicitly). Every commit carries a Merkle root whether or
// not it is signed.
type SigningConfig struct {
	Enabled bool `toml:"enabled"`
}

// EncryptionConfig controls at-rest blob encryption and its KDF hardness.
type EncryptionConfig struct {
	Enabled bool                `toml:"enabled"`
	KDF     EncryptionKDFConfig `toml:"kdf"`
}

// EncryptionKDFConfig mirrors pkg/crypto's Argon2id parameters.
type EncryptionKDFConfig struct {
	Memory uint32 `toml:"memory"` // KiB
	Passes uint32 `toml:"passes"`
}

// MergeConfig holds per-memory-class overrides of the default merge
// strategy (episodic append-only, semantic diff3, procedural last-write-wins).
type MergeConfig struct {
	StrategyOverride map[string]string `toml:"strategy_override,omitempty"`
}

// PackConfig controls delta selection during repack/GC.
type PackConfig struct {
	Delta PackDeltaConfig `toml:"delta"`
}

// PackDeltaConfig holds the pack.delta settings. GC does not read them:
// delta selection always runs, and selectDeltaBases produces chains of
// depth one at most, whatever MaxChain says.
type PackDeltaConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxChain int  `toml:"max_chain"`
}

// SimilarityConfig holds the three-tier matcher's thresholds, in the same
// order as similarity.Matcher's fields: length-ratio cutoff, SimHash
// Hamming-distance cutoff, and minimum reported Levenshtein similarity.
type SimilarityConfig struct {
	Tau1 float64 `toml:"tau1"`
	Tau2 float64 `toml:"tau2"`
	Tau3 float64 `toml:"tau3"`
}

// TrustConfig sets the trust level assigned to a signing key the trust
// store has never seen before.
type TrustConfig struct {
	DefaultLevel string `toml:"default_level"`
}

func defaultConfig() *Config {
	return &Config{
		Remotes: make(map[string]string),
		Core: CoreConfig{
			DefaultBranch: "main",
			Compression:   true,
		},
		GC: GCConfig{PruneDays: 30},
		Encryption: EncryptionConfig{
			KDF: EncryptionKDFConfig{Memory: 64 * 1024, Passes: 3},
		},
		Pack: PackConfig{
			Delta: PackDeltaConfig{Enabled: true, MaxChain: 1},
		},
		Similarity: SimilarityConfig{Tau1: 0.5, Tau2: 15, Tau3: 0.7},
		Trust:      TrustConfig{DefaultLevel: "untrusted"},
	}
}

func (r *Repo) configPath() string {
	return filepath.Join(r.GotDir, "config")
}

// ReadConfig reads .mem/config. Missing config returns the default config.
func (r *Repo) ReadConfig() (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(r.configPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("read config: unmarshal: %w", err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]string)
	}
	return cfg, nil
}

// WriteConfig atomically writes .mem/config.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if cfg.Remotes == nil {
		cfg.Remotes = make(map[string]string)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.GotDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, r.configPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetRemote stores/updates a named remote URL in repository config.
func (r *Repo) SetRemote(name, remoteURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("set remote: remote name is required")
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return fmt.Errorf("set remote: remote URL is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return err
	}
	cfg.Remotes[name] = remoteURL
	return r.WriteConfig(cfg)
}

// RemoteURL returns the configured URL for the given remote name.
func (r *Repo) RemoteURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("remote name is required")
	}

	cfg, err := r.ReadConfig()
	if err != nil {
		return "", err
	}
	url, ok := cfg.Remotes[name]
	if !ok || strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("remote %q is not configured", name)
	}
	return url, nil
}
