// Package config loads magicwand.yaml: local database settings, clone presets
// and the paths of the local Flow installation.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/log"
)

var (
	ErrPresetNotFound  = errors.New("clone preset not found")
	ErrNoDefaultPreset = errors.New("no default clone preset configured")
)

// Config is the decoded configuration file.
type Config struct {
	// RootPath is the local Flow root (FLOW_PATH_ROOT).
	RootPath      string            `mapstructure:"rootPath" validate:"required"`
	FlowCommand   string            `mapstructure:"flowCommand" validate:"required"`
	FlowContext   string            `mapstructure:"flowContext" validate:"required"`
	DefaultPreset string            `mapstructure:"defaultPreset"`
	MetadataPath  string            `mapstructure:"metadataPath"`
	Database      Database          `mapstructure:"database"`
	Presets       map[string]Preset `mapstructure:"clonePresets" validate:"dive"`
	Stash         Stash             `mapstructure:"stash"`
	Resources     Resources         `mapstructure:"resources"`
	Server        Server            `mapstructure:"server"`
}

// Database holds the local connection settings.
type Database struct {
	Driver   string `mapstructure:"driver" validate:"required"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"dbname" validate:"required"`
	Charset  string `mapstructure:"charset"`
}

// Preset describes one remote environment that can be cloned.
type Preset struct {
	Name string `mapstructure:"-"`

	Host        string `mapstructure:"host"`
	User        string `mapstructure:"user"`
	Port        int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	SSHOptions  string `mapstructure:"sshOptions"`
	SSHKey      string `mapstructure:"sshKey"`
	InsecureSSH bool   `mapstructure:"insecureSsh"`

	K8sConfigFile       string `mapstructure:"k8sConfigFile"`
	K8sContextName      string `mapstructure:"k8sContextName"`
	K8sNamespace        string `mapstructure:"k8sNamespace"`
	K8sPodLabelSelector string `mapstructure:"k8sPodLabelSelector"`
	K8sContainerName    string `mapstructure:"k8sContainerName"`

	Path        string         `mapstructure:"path" validate:"required"`
	Context     string         `mapstructure:"context"`
	Clone       CloneOptions   `mapstructure:"clone"`
	PostClone   []string       `mapstructure:"postClone"`
	FlowCommand string         `mapstructure:"flowCommand"`
	DumpCommand string         `mapstructure:"dumpCommand"`
	Proxy       *ResourceProxy `mapstructure:"resourceProxy"`
}

// CloneOptions tunes what a clone transfers.
type CloneOptions struct {
	Database struct {
		ExcludeTableContent []string `mapstructure:"excludeTableContent"`
	} `mapstructure:"database"`
	SkipResourcePublishStep bool `mapstructure:"skipResourcePublishStep"`
}

// ResourceProxy points at the origin serving resources missing locally.
type ResourceProxy struct {
	BaseURI   string `mapstructure:"baseUri" validate:"required,url"`
	Subdivide bool   `mapstructure:"subdivideHashPathSegment"`
	HTTP      HTTP   `mapstructure:"http"`
}

// HTTP are client options for origin requests.
type HTTP struct {
	Timeout            time.Duration     `mapstructure:"timeout"`
	InsecureSkipVerify bool              `mapstructure:"insecureSkipVerify"`
	Proxy              string            `mapstructure:"proxy" validate:"omitempty,url"`
	Headers            map[string]string `mapstructure:"headers"`
}

// Stash settings.
type Stash struct {
	Path         string `mapstructure:"path"`
	MinFreeBytes uint64 `mapstructure:"minFreeBytes"`
}

// Resources locates local resource storage and the public web directory.
type Resources struct {
	StoragePath string `mapstructure:"storagePath"`
	PublicPath  string `mapstructure:"publicPath"`
	BaseURI     string `mapstructure:"baseUri"`
}

// Server settings for the redirect endpoint.
type Server struct {
	Listen string `mapstructure:"listen"`
}

// IsKubernetes reports whether the preset targets a pod instead of an SSH host.
func (p Preset) IsKubernetes() bool {
	return p.K8sNamespace != "" || p.K8sPodLabelSelector != "" || p.K8sConfigFile != ""
}

// RemoteFlowCommand returns the preset's flow command or the global one.
func (c *Config) RemoteFlowCommand(p Preset) string {
	if p.FlowCommand != "" {
		return p.FlowCommand
	}
	return c.FlowCommand
}

// Profile converts the local database settings.
func (d Database) Profile() (dbcmd.Profile, error) {
	drv, err := dbcmd.ParseDriver(d.Driver)
	if err != nil {
		return dbcmd.Profile{}, err
	}
	return dbcmd.Profile{
		Driver:   drv,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		Charset:  d.Charset,
	}.WithDefaults(), nil
}

// Preset looks a preset up by name.
func (c *Config) Preset(name string) (Preset, error) {
	p, ok := c.Presets[strings.ToLower(name)]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	return p, nil
}

// Default returns the preset named by defaultPreset.
func (c *Config) Default() (Preset, error) {
	if c.DefaultPreset == "" {
		return Preset{}, ErrNoDefaultPreset
	}
	return c.Preset(c.DefaultPreset)
}

// PresetNames returns preset names sorted.
func (c *Config) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for n := range c.Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PersistentPath is the local Data/Persistent directory.
func (c *Config) PersistentPath() string { return filepath.Join(c.RootPath, "Data", "Persistent") }

// TranslationsPath is the local Data/Translations directory.
func (c *Config) TranslationsPath() string { return filepath.Join(c.RootPath, "Data", "Translations") }

// StashPath is the stash root.
func (c *Config) StashPath() string {
	if c.Stash.Path != "" {
		return c.Stash.Path
	}
	return filepath.Join(c.RootPath, "Data", "MagicWandStash")
}

// StatusPath is the directory holding the status manifest.
func (c *Config) StatusPath() string {
	if c.MetadataPath != "" {
		return c.MetadataPath
	}
	return filepath.Join(c.RootPath, "Data", "MagicWand")
}

// ResourceStoragePath is where resources are stored by hash.
func (c *Config) ResourceStoragePath() string {
	if c.Resources.StoragePath != "" {
		return c.Resources.StoragePath
	}
	return filepath.Join(c.PersistentPath(), "Resources")
}

// PublicPath is the web root resources get published into.
func (c *Config) PublicPath() string {
	if c.Resources.PublicPath != "" {
		return c.Resources.PublicPath
	}
	return filepath.Join(c.RootPath, "Web")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rootPath", ".")
	v.SetDefault("flowCommand", "./flow")
	v.SetDefault("flowContext", "Development")
	v.SetDefault("database.driver", "pdo_mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("stash.minFreeBytes", 0)
	v.SetDefault("server.listen", "127.0.0.1:8081")
}

// Load reads the configuration. When path is empty, magicwand.yaml is searched
// in the working directory and in $HOME/.magicwand. A .env file in the working
// directory is loaded into the environment first; MAGICWAND_* variables
// override file values (MAGICWAND_DATABASE_PASSWORD and so on).
func Load(path string) (*Config, error) {
	lg := log.Component("config")
	if err := godotenv.Load(); err != nil {
		lg.Debug().Err(err).Msg("no .env loaded")
	}

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("magicwand")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.magicwand")
	}
	v.SetEnvPrefix("magicwand")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		lg.Debug().Msg("no config file found, using defaults")
	} else {
		lg.Debug().Str("file", v.ConfigFileUsed()).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for name, p := range cfg.Presets {
		p.Name = name
		if p.Context == "" {
			p.Context = "Production"
		}
		cfg.Presets[name] = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Database.Profile(); err != nil {
		return fmt.Errorf("invalid config: database: %w", err)
	}
	for _, name := range c.PresetNames() {
		if err := c.Presets[name].validateTarget(); err != nil {
			return fmt.Errorf("invalid config: preset %q: %w", name, err)
		}
	}
	if c.DefaultPreset != "" {
		if _, err := c.Default(); err != nil {
			return fmt.Errorf("invalid config: defaultPreset: %w", err)
		}
	}
	return nil
}

func (p Preset) validateTarget() error {
	if p.IsKubernetes() {
		if p.Host != "" {
			return errors.New("host and k8s settings are mutually exclusive")
		}
		if p.K8sNamespace == "" || p.K8sPodLabelSelector == "" {
			return errors.New("k8sNamespace and k8sPodLabelSelector are required")
		}
		if p.Proxy == nil {
			return errors.New("kubernetes presets require resourceProxy, files are not transferred")
		}
		return nil
	}
	if p.Host == "" || p.User == "" {
		return errors.New("host and user are required")
	}
	return nil
}
