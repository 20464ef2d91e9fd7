// Package config loads the lanceiro YAML configuration with environment
// variable overrides for credentials and URLs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"lanceiro/internal/browser"
)

// Config holds all lanceiro configuration.
type Config struct {
	// Portal URLs
	SiteURL   string `yaml:"site_url"`
	LancesURL string `yaml:"lances_url"`

	// Login credentials (normally supplied via CPF_CNPJ / SENHA env vars)
	Credentials CredentialsConfig `yaml:"credentials"`

	// Free-bid form values, applied to every free-bid record
	Bid BidConfig `yaml:"bid"`

	// Root folder the per-operator destination folders live under
	LancesRoot string `yaml:"lances_root"`

	// Append-only error report file
	ErrorReportFile string `yaml:"error_report_file"`

	// General run log file
	LogFile string `yaml:"log_file"`

	// Browser session settings
	Browser browser.Config `yaml:"browser"`
}

// CredentialsConfig is the portal login pair.
type CredentialsConfig struct {
	CPFCNPJ string `yaml:"cpf_cnpj"`
	Senha   string `yaml:"senha"`
}

// BidConfig holds the free-bid percentual and letter-discount values.
type BidConfig struct {
	Percentual     int `yaml:"percentual"`
	DescontarCarta int `yaml:"descontar_carta"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LancesURL:       "https://www.consorcioservopa.com.br/vendas/lances",
		Bid:             BidConfig{Percentual: 40, DescontarCarta: 30},
		LancesRoot:      "Lances",
		ErrorReportFile: "erros_lances.txt",
		LogFile:         "automacao.log",
		Browser:         browser.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Credentials are
// usually only present in the environment, never in the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CPF_CNPJ"); v != "" {
		c.Credentials.CPFCNPJ = v
	}
	if v := os.Getenv("SENHA"); v != "" {
		c.Credentials.Senha = v
	}
	if v := os.Getenv("SERVOPA_URL"); v != "" {
		c.SiteURL = v
	}
	if v := os.Getenv("SERVOPA_LANCES_URL"); v != "" {
		c.LancesURL = v
	}
	if v := os.Getenv("ERROS_FILE"); v != "" {
		c.ErrorReportFile = v
	}
	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		c.Browser.DownloadDir = filepath.Clean(v)
	}
	if v := os.Getenv("LANCE_LIVRE_PERCENTUAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bid.Percentual = n
		}
	}
	if v := os.Getenv("LANCE_LIVRE_DESCONTAR_CARTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Bid.DescontarCarta = n
		}
	}
}

// Validate checks that everything a run needs is present.
func (c *Config) Validate() error {
	if c.SiteURL == "" {
		return fmt.Errorf("site URL not configured (set SERVOPA_URL or site_url)")
	}
	if c.Credentials.CPFCNPJ == "" || c.Credentials.Senha == "" {
		return fmt.Errorf("credentials not configured (set CPF_CNPJ and SENHA)")
	}
	if c.Browser.DownloadDir == "" {
		return fmt.Errorf("download directory not configured (set DOWNLOAD_DIR or browser.download_dir)")
	}
	return nil
}

// OperatorDir returns the destination folder for one operator.
func (c *Config) OperatorDir(operator string) string {
	return filepath.Join(c.LancesRoot, operator)
}

// PercentualText returns the percentual as typed into the form field.
func (c *Config) PercentualText() string {
	return strconv.Itoa(c.Bid.Percentual)
}

// DescontarText returns the letter discount as typed into the form field.
func (c *Config) DescontarText() string {
	return strconv.Itoa(c.Bid.DescontarCarta)
}
