package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

// ctlConfig is the YAML file read by --config. Environment variables fill in
// anything the file leaves empty.
type ctlConfig struct {
	Shop        string `yaml:"shop"`
	AccessToken string `yaml:"access_token"`
	APIVersion  string `yaml:"api_version,omitempty"`
	SettingsDSN string `yaml:"settings_dsn,omitempty"`
	AdminSecret string `yaml:"admin_secret,omitempty"`
	Mock        bool   `yaml:"mock,omitempty"`

	// Defaults seeds the settings store when it holds nothing yet.
	Defaults *settingsYAML `yaml:"settings,omitempty"`
}

type settingsYAML struct {
	SearchDays     int    `yaml:"search_days,omitempty"`
	TagName        string `yaml:"tag_name,omitempty"`
	TagColor       string `yaml:"tag_color,omitempty"`
	AutoCancel     *bool  `yaml:"auto_cancel,omitempty"`
	WebhookEnabled *bool  `yaml:"webhook_enabled,omitempty"`
}

func (s *settingsYAML) toSettings() dupes.Settings {
	out := dupes.DefaultSettings()
	if s == nil {
		return out
	}
	if s.SearchDays != 0 {
		out.SearchDays = s.SearchDays
	}
	if s.TagName != "" {
		out.TagName = s.TagName
	}
	if s.TagColor != "" {
		out.TagColor = s.TagColor
	}
	if s.AutoCancel != nil {
		out.AutoCancel = *s.AutoCancel
	}
	if s.WebhookEnabled != nil {
		out.WebhookEnabled = *s.WebhookEnabled
	}
	return out.Normalize()
}

func loadConfig(path string) (*ctlConfig, error) {
	cfg := &ctlConfig{}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	fillFromEnv(&cfg.Shop, "SHOPIFY_SHOP")
	fillFromEnv(&cfg.AccessToken, "SHOPIFY_ACCESS_TOKEN")
	fillFromEnv(&cfg.APIVersion, "SHOPIFY_API_VERSION")
	fillFromEnv(&cfg.SettingsDSN, "DUPEGUARD_SETTINGS_DSN")
	fillFromEnv(&cfg.AdminSecret, "DUPEGUARD_ADMIN_JWT_SECRET")
	return cfg, nil
}

func fillFromEnv(dst *string, name string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	*dst = strings.TrimSpace(os.Getenv(name))
}
