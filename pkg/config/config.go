// Package config loads the docs agent's settings from defaults, an optional
// YAML file, an optional .env file and the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/holon-run/docsagent/pkg/branch"
	"github.com/holon-run/docsagent/pkg/git"
	"github.com/holon-run/docsagent/pkg/github"
	"github.com/holon-run/docsagent/pkg/pathutil"
)

// Environment variable names.
const (
	EnvRepoURL      = "REPO_URL"
	EnvOwner        = "GITHUB_OWNER"
	EnvRepo         = "GITHUB_REPO"
	EnvToken        = "GITHUB_TOKEN"
	EnvTokenAlt     = "GH_TOKEN"
	EnvAPIURL       = "GITHUB_API_URL"
	EnvBaseDir      = "DOCS_AGENT_BASE_DIR"
	EnvBranchPrefix = "DOCS_AGENT_BRANCH_PREFIX"
	EnvBaseBranch   = "DOCS_AGENT_BASE_BRANCH"
	EnvAuthorName   = "DOCS_AGENT_AUTHOR_NAME"
	EnvAuthorEmail  = "DOCS_AGENT_AUTHOR_EMAIL"
	EnvListen       = "DOCS_AGENT_LISTEN"
	EnvPort         = "PORT"
	EnvLogLevel     = "DOCS_AGENT_LOG_LEVEL"
	EnvLogFormat    = "DOCS_AGENT_LOG_FORMAT"
	EnvConfigFile   = "DOCS_AGENT_CONFIG"
)

// Defaults.
const (
	DefaultBaseDir    = "/tmp/docs-agent"
	DefaultBaseBranch = "main"
	DefaultListen     = ":3000"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultEnvFile    = ".env"
)

// Config is the resolved runtime configuration.
type Config struct {
	RepoURL      string `yaml:"repo_url"`
	Owner        string `yaml:"owner"`
	Repo         string `yaml:"repo"`
	Token        string `yaml:"token,omitempty"`
	GitHubAPIURL string `yaml:"github_api_url,omitempty"`

	BaseDir      string `yaml:"base_dir"`
	BranchPrefix string `yaml:"branch_prefix"`
	BaseBranch   string `yaml:"base_branch"`
	Remote       string `yaml:"remote"`

	AuthorName  string `yaml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty"`

	Listen string    `yaml:"listen"`
	Log    LogConfig `yaml:"log"`

	lookup func(string) (string, bool)
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with built-in defaults only.
func Default() *Config {
	return &Config{
		BaseDir:      DefaultBaseDir,
		BranchPrefix: branch.DefaultPrefix,
		BaseBranch:   DefaultBaseBranch,
		Remote:       git.DefaultRemote,
		Listen:       DefaultListen,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		lookup: os.LookupEnv,
	}
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ConfigFile is a YAML file. Empty falls back to DOCS_AGENT_CONFIG; if
	// that is empty too, no file is read.
	ConfigFile string

	// EnvFile is a dotenv file. Empty means ".env" in the working directory,
	// which may be absent. An explicitly named file must exist.
	EnvFile string

	// LookupEnv replaces os.LookupEnv, mainly for tests.
	LookupEnv func(string) (string, bool)
}

// Load builds a Config from defaults, the YAML file, the dotenv file and the
// environment, in that order. Real environment variables win over dotenv
// values. Load does not validate; call Validate once flags are applied.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	envLookup := opts.LookupEnv
	if envLookup == nil {
		envLookup = os.LookupEnv
	}

	dotenv, err := readEnvFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg.lookup = func(key string) (string, bool) {
		if v, ok := envLookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	path := opts.ConfigFile
	if path == "" {
		path, _ = cfg.lookup(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.deriveRepository()
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return values, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := c.lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	set(&c.RepoURL, EnvRepoURL)
	set(&c.Owner, EnvOwner)
	set(&c.Repo, EnvRepo)
	set(&c.Token, EnvToken, EnvTokenAlt)
	set(&c.GitHubAPIURL, EnvAPIURL)
	set(&c.BaseDir, EnvBaseDir)
	set(&c.BranchPrefix, EnvBranchPrefix)
	set(&c.BaseBranch, EnvBaseBranch)
	set(&c.AuthorName, EnvAuthorName)
	set(&c.AuthorEmail, EnvAuthorEmail)
	set(&c.Log.Level, EnvLogLevel)
	set(&c.Log.Format, EnvLogFormat)

	if port, ok := c.lookup(EnvPort); ok && strings.TrimSpace(port) != "" {
		c.Listen = ":" + strings.TrimPrefix(strings.TrimSpace(port), ":")
	}
	set(&c.Listen, EnvListen)
}

// deriveRepository fills Owner and Repo from RepoURL when they are unset.
func (c *Config) deriveRepository() {
	if c.RepoURL == "" || (c.Owner != "" && c.Repo != "") {
		return
	}
	ref, err := github.ParseRef(c.RepoURL)
	if err != nil {
		return
	}
	if c.Owner == "" {
		c.Owner = ref.Owner
	}
	if c.Repo == "" {
		c.Repo = ref.Repo
	}
}

// Getenv returns a variable from the environment or the loaded dotenv file.
func (c *Config) Getenv(key string) string {
	if c.lookup == nil {
		return os.Getenv(key)
	}
	v, _ := c.lookup(key)
	return v
}

// Author resolves the commit author: configured values, then
// GIT_AUTHOR_NAME/GIT_AUTHOR_EMAIL, then global git config, then the default.
func (c *Config) Author() git.Author {
	return git.ResolveAuthor(git.AuthorOptions{
		ExplicitName:  c.AuthorName,
		ExplicitEmail: c.AuthorEmail,
		EnvName:       c.Getenv("GIT_AUTHOR_NAME"),
		EnvEmail:      c.Getenv("GIT_AUTHOR_EMAIL"),
	})
}

// ValidationError lists every configuration problem found at startup.
type ValidationError struct {
	Missing  []string
	Problems []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Validate reports missing repository or credential settings and unsafe
// workspace locations. It returns nil or a *ValidationError.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if c.RepoURL == "" {
		verr.Missing = append(verr.Missing, EnvRepoURL)
	}
	if c.Owner == "" {
		verr.Missing = append(verr.Missing, EnvOwner)
	}
	if c.Repo == "" {
		verr.Missing = append(verr.Missing, EnvRepo)
	}
	if c.Token == "" {
		verr.Missing = append(verr.Missing, EnvToken)
	}

	switch {
	case strings.TrimSpace(c.BaseDir) == "":
		verr.Missing = append(verr.Missing, EnvBaseDir)
	case pathutil.IsFilesystemRoot(c.BaseDir):
		verr.Problems = append(verr.Problems, fmt.Sprintf("base directory cannot be filesystem root: %q", c.BaseDir))
	case !filepath.IsAbs(c.BaseDir):
		abs, err := filepath.Abs(c.BaseDir)
		if err != nil {
			verr.Problems = append(verr.Problems, fmt.Sprintf("cannot resolve base directory %q: %v", c.BaseDir, err))
		} else {
			c.BaseDir = abs
		}
	}

	if strings.Trim(c.BranchPrefix, "/ ") == "" {
		verr.Problems = append(verr.Problems, "branch prefix cannot be empty")
	}
	if strings.TrimSpace(c.BaseBranch) == "" {
		verr.Problems = append(verr.Problems, "base branch cannot be empty")
	}

	if len(verr.Missing) == 0 && len(verr.Problems) == 0 {
		return nil
	}
	return verr
}
