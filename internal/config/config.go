package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
)

// PortalConfig holds the library portal login.
type PortalConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserID    string `yaml:"user_id"`
	Password  string `yaml:"password"`
	ListCount int    `yaml:"list_count"`
}

// GoogleConfig holds the service account and target calendar.
// CredentialsFile takes precedence over the inline key fields.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	ClientEmail     string `yaml:"client_email"`
	PrivateKeyID    string `yaml:"private_key_id"`
	PrivateKey      string `yaml:"private_key"`
	CalendarID      string `yaml:"calendar_id"`
	TokenURL        string `yaml:"token_url"`
}

// CalDAVConfig holds the CalDAV account and target calendar.
type CalDAVConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CalendarName string `yaml:"calendar_name"`
}

// Config is the top-level application configuration.
type Config struct {
	Backend  string       `yaml:"backend"`
	LogLevel string       `yaml:"log_level"`
	Portal   PortalConfig `yaml:"portal"`
	Google   GoogleConfig `yaml:"google"`
	CalDAV   CalDAVConfig `yaml:"caldav"`
}

// Load reads the optional YAML file at path and applies environment
// overrides on top of it. An empty path means environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("CALENDAR_BACKEND", &c.Backend)
	str("LOG_LEVEL", &c.LogLevel)
	str("PORTAL_BASE_URL", &c.Portal.BaseURL)
	str("PORTAL_USER_ID", &c.Portal.UserID)
	str("PORTAL_PASSWORD", &c.Portal.Password)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.Google.CredentialsFile)
	str("GOOGLE_CLIENT_EMAIL", &c.Google.ClientEmail)
	str("GOOGLE_PRIVATE_KEY_ID", &c.Google.PrivateKeyID)
	str("GOOGLE_PRIVATE_KEY", &c.Google.PrivateKey)
	str("GOOGLE_CALENDAR_ID", &c.Google.CalendarID)
	str("GOOGLE_TOKEN_URL", &c.Google.TokenURL)
	str("CALDAV_ENDPOINT", &c.CalDAV.Endpoint)
	str("CALDAV_USERNAME", &c.CalDAV.Username)
	str("CALDAV_PASSWORD", &c.CalDAV.Password)
	str("CALDAV_CALENDAR_NAME", &c.CalDAV.CalendarName)

	if v, ok := lookup("PORTAL_LIST_COUNT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORTAL_LIST_COUNT %q: %w", v, err)
		}
		c.Portal.ListCount = n
	}
	return nil
}

func (c *Config) normalize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = BackendGoogle
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// Keys pasted into a single-line env var usually carry literal \n.
	c.Google.PrivateKey = strings.ReplaceAll(c.Google.PrivateKey, `\n`, "\n")
}

// Validate reports every missing setting required by the selected backend.
func (c *Config) Validate() error {
	var missing []string
	need := func(v, name string) {
		if v == "" {
			missing = append(missing, name)
		}
	}

	need(c.Portal.BaseURL, "portal.base_url")
	need(c.Portal.UserID, "portal.user_id")
	need(c.Portal.Password, "portal.password")

	switch c.Backend {
	case BackendGoogle:
		missing = append(missing, c.missingGoogle()...)
	case BackendCalDAV:
		need(c.CalDAV.Username, "caldav.username")
		need(c.CalDAV.Password, "caldav.password")
		need(c.CalDAV.CalendarName, "caldav.calendar_name")
	default:
		return fmt.Errorf("unknown calendar backend %q", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateGoogle checks the settings needed for the token exchange and the Google calendar.
func (c *Config) ValidateGoogle() error {
	if missing := c.missingGoogle(); len(missing) > 0 {
		return errors.New("missing configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) missingGoogle() []string {
	var missing []string
	if c.Google.CredentialsFile == "" {
		if c.Google.ClientEmail == "" {
			missing = append(missing, "google.client_email")
		}
		if c.Google.PrivateKey == "" {
			missing = append(missing, "google.private_key")
		}
	}
	if c.Google.CalendarID == "" {
		missing = append(missing, "google.calendar_id")
	}
	return missing
}
