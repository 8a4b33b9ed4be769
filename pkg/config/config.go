package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for offlinegen
type Config struct {
	Host        string           `mapstructure:"host"`
	Index       IndexConfig      `mapstructure:"index"`
	Output      OutputConfig     `mapstructure:"output"`
	Fetch       FetchConfig      `mapstructure:"fetch"`
	Media       MediaConfig      `mapstructure:"media"`
	Hierarchy   HierarchyConfig  `mapstructure:"hierarchy"`
	Renditions  RenditionsConfig `mapstructure:"renditions"`
	Concurrency int              `mapstructure:"concurrency"`
	Pages       PagesConfig      `mapstructure:"pages"`
	Generate    GenerateConfig   `mapstructure:"generate"`
	Delivery    DeliveryConfig   `mapstructure:"delivery"`
	Validate    bool             `mapstructure:"validate"`
}

// IndexConfig locates the published sheets on the origin
type IndexConfig struct {
	Pages    string `mapstructure:"pages"`
	Channels string `mapstructure:"channels"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	Catalog string `mapstructure:"catalog"`
}

// FetchConfig holds HTTP client settings
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	AllowlistKey string        `mapstructure:"allowlist_key"`
}

// MediaConfig holds the media-hosting markers
type MediaConfig struct {
	Prefix       string `mapstructure:"prefix"`
	Scene7Prefix string `mapstructure:"scene7_prefix"`
}

type HierarchyConfig struct {
	Root string `mapstructure:"root"`
}

type RenditionsConfig struct {
	Adaptive bool `mapstructure:"adaptive"`
}

// PagesConfig filters the page index with doublestar globs
type PagesConfig struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// GenerateConfig controls per-page HTML generation
type GenerateConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Registry string `mapstructure:"registry"`
}

// DeliveryConfig is written to every manifest's contentDelivery block
type DeliveryConfig struct {
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
}

var defaultConfig = Config{
	Index:  IndexConfig{Pages: "/manifest", Channels: "/channels"},
	Output: OutputConfig{Dir: ".", Catalog: "screens/channels.json"},
	Fetch:  FetchConfig{Timeout: parseDurationDefault("30s")},
	Media: MediaConfig{
		Prefix:       "media_",
		Scene7Prefix: "/is/image/",
	},
	Hierarchy: HierarchyConfig{Root: "/content"},
	Pages:     PagesConfig{Include: []string{}, Exclude: []string{}},
	Generate:  GenerateConfig{Enabled: true},
	Delivery:  DeliveryConfig{Provider: "franklin", Endpoint: "/"},
	Validate:  true,
}

// flagKeys maps config keys to the command-line flags that override them.
var flagKeys = map[string]string{
	"host":                "host",
	"index.pages":         "pages-index",
	"index.channels":      "channels-index",
	"output.dir":          "output-dir",
	"fetch.timeout":       "timeout",
	"renditions.adaptive": "adaptive-renditions",
	"concurrency":         "concurrency",
	"pages.include":       "include",
	"pages.exclude":       "exclude",
	"generate.enabled":    "generate",
	"generate.registry":   "generators",
	"validate":            "validate",
}

// Load reads configuration from defaults, an optional offlinegen.yaml (in
// the working directory or $HOME, or the file named by a "config" flag), the
// OFFLINEGEN_* environment and finally the given flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("host", defaultConfig.Host)
	v.SetDefault("index.pages", defaultConfig.Index.Pages)
	v.SetDefault("index.channels", defaultConfig.Index.Channels)
	v.SetDefault("output.dir", defaultConfig.Output.Dir)
	v.SetDefault("output.catalog", defaultConfig.Output.Catalog)
	v.SetDefault("fetch.timeout", defaultConfig.Fetch.Timeout)
	v.SetDefault("fetch.allowlist_key", "")
	v.SetDefault("media.prefix", defaultConfig.Media.Prefix)
	v.SetDefault("media.scene7_prefix", defaultConfig.Media.Scene7Prefix)
	v.SetDefault("hierarchy.root", defaultConfig.Hierarchy.Root)
	v.SetDefault("renditions.adaptive", defaultConfig.Renditions.Adaptive)
	v.SetDefault("concurrency", defaultConfig.Concurrency)
	v.SetDefault("pages.include", defaultConfig.Pages.Include)
	v.SetDefault("pages.exclude", defaultConfig.Pages.Exclude)
	v.SetDefault("generate.enabled", defaultConfig.Generate.Enabled)
	v.SetDefault("generate.registry", defaultConfig.Generate.Registry)
	v.SetDefault("delivery.provider", defaultConfig.Delivery.Provider)
	v.SetDefault("delivery.endpoint", defaultConfig.Delivery.Endpoint)
	v.SetDefault("validate", defaultConfig.Validate)

	explicit := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			explicit = f.Value.String()
		}
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("offlinegen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("OFFLINEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The allowlist key keeps its historical variable name as a fallback.
	if err := v.BindEnv("fetch.allowlist_key", "OFFLINEGEN_FETCH_ALLOWLIST_KEY", "franklinAllowlistKey"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Check(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Check reports the first invalid setting.
func (c *Config) Check() error {
	if c.Host != "" {
		u, err := url.Parse(c.Host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("host must be an http(s) URL, got %q", c.Host)
		}
	}
	for key, p := range map[string]string{"index.pages": c.Index.Pages, "index.channels": c.Index.Channels} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/', got %q", key, p)
		}
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.Media.Prefix == "" || c.Media.Scene7Prefix == "" {
		return errors.New("media prefixes must not be empty")
	}
	if c.Delivery.Provider == "" {
		return errors.New("delivery.provider must not be empty")
	}
	if c.Output.Catalog == "" {
		return errors.New("output.catalog must not be empty")
	}
	return nil
}

// PagesIndexPath is the origin path of the page index sheet.
func (c *Config) PagesIndexPath() string { return sheetPath(c.Index.Pages) }

// ChannelsIndexPath is the origin path of the channel metadata sheet.
func (c *Config) ChannelsIndexPath() string { return sheetPath(c.Index.Channels) }

func sheetPath(p string) string {
	if strings.HasSuffix(p, ".json") {
		return p
	}
	return p + ".json"
}

// parseDurationDefault is a helper to create default duration values from string literal
func parseDurationDefault(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
