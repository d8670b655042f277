package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"docsync/internal/model"

	"github.com/spf13/viper"
)

type Rule struct {
	SourceDir     string `mapstructure:"source_dir"`
	TargetPattern string `mapstructure:"target_pattern"`
	Template      string `mapstructure:"template"`
}

type ValidationConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	SchemaValidation bool `mapstructure:"schema_validation"`
}

type BackupConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type GitConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	AutoCommit            bool   `mapstructure:"auto_commit"`
	CommitMessageTemplate string `mapstructure:"commit_message_template"`
}

type NotificationsConfig struct {
	Channels   []string `mapstructure:"channels"`
	LogFile    string   `mapstructure:"log_file"`
	MaxSizeMB  int      `mapstructure:"max_size_mb"`
	MaxBackups int      `mapstructure:"max_backups"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Workers  int           `mapstructure:"workers"`
}

type Config struct {
	Root         string                    `mapstructure:"root"`
	ConfigDir    string                    `mapstructure:"config_dir"`
	DocsDir      string                    `mapstructure:"docs_dir"`
	TemplatesDir string                    `mapstructure:"templates_dir"`
	SchemasDir   string                    `mapstructure:"schemas_dir"`
	MetadataFile string                    `mapstructure:"metadata_file"`
	ReportFile   string                    `mapstructure:"report_file"`
	DBPath       string                    `mapstructure:"db_path"`
	DaemonPort   int                       `mapstructure:"daemon_port"`
	BufferSize   int                       `mapstructure:"buffer_size"`
	IgnoreList   []string                  `mapstructure:"ignore_list"`
	PruneOrphans bool                      `mapstructure:"prune_orphans"`
	Rules        map[model.EntityType]Rule `mapstructure:"sync_rules"`
	Validation   ValidationConfig          `mapstructure:"validation"`
	Backup       BackupConfig              `mapstructure:"backup"`
	Git          GitConfig                 `mapstructure:"git_integration"`
	Notify       NotificationsConfig       `mapstructure:"notifications"`
	Watch        WatchConfig               `mapstructure:"watch"`
}

var Default = Config{
	Root:         ".",
	ConfigDir:    "config",
	DocsDir:      "docs",
	TemplatesDir: "config/sync-templates",
	SchemasDir:   "config/schemas",
	MetadataFile: ".sync-metadata.json",
	ReportFile:   "consistency_report.md",
	DBPath:       ".docsync/history.db",
	DaemonPort:   9101,
	BufferSize:   100,
	IgnoreList:   []string{".git", ".DS_Store", "*.tmp", "*.swp", "*~", ".#*"},
	Rules: map[model.EntityType]Rule{
		model.EntityAgent: {
			SourceDir:     "agents",
			TargetPattern: "agents/{name}.md",
			Template:      "agent-doc-template.md",
		},
		model.EntityLifecycle: {
			SourceDir:     "lifecycle",
			TargetPattern: "methodology/{name}.md",
			Template:      "lifecycle-doc-template.md",
		},
		model.EntityTool: {
			SourceDir:     "tools",
			TargetPattern: "tools/{name}.md",
			Template:      "tool-doc-template.md",
		},
		model.EntityLLM: {
			SourceDir:     "llms",
			TargetPattern: "llms/{name}.md",
			Template:      "llm-doc-template.md",
		},
	},
	Validation: ValidationConfig{Enabled: true, SchemaValidation: true},
	Backup: BackupConfig{
		Enabled:    true,
		Dir:        "backups/sync",
		MaxBackups: 10,
		Compress:   true,
	},
	Git: GitConfig{
		Enabled:               false,
		AutoCommit:            false,
		CommitMessageTemplate: "docs: sync configuration changes for {files}",
	},
	Notify: NotificationsConfig{
		Channels:   []string{"console"},
		LogFile:    "sync.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
	},
	Watch: WatchConfig{
		Debounce: 2 * time.Second,
		Workers:  4,
	},
}

// Load reads docsync.yaml from the explicit path, or from the working
// directory and ~/.docsync, layering DOCSYNC_* environment variables on top.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("docsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".docsync"))
		}
	}

	v.SetEnvPrefix("DOCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok || cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	v := viper.New()
	setDefaults(v)
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", Default.Root)
	v.SetDefault("config_dir", Default.ConfigDir)
	v.SetDefault("docs_dir", Default.DocsDir)
	v.SetDefault("templates_dir", Default.TemplatesDir)
	v.SetDefault("schemas_dir", Default.SchemasDir)
	v.SetDefault("metadata_file", Default.MetadataFile)
	v.SetDefault("report_file", Default.ReportFile)
	v.SetDefault("db_path", Default.DBPath)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("buffer_size", Default.BufferSize)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("prune_orphans", Default.PruneOrphans)

	rules := make(map[string]any, len(Default.Rules))
	for t, r := range Default.Rules {
		rules[string(t)] = map[string]any{
			"source_dir":     r.SourceDir,
			"target_pattern": r.TargetPattern,
			"template":       r.Template,
		}
	}
	v.SetDefault("sync_rules", rules)

	v.SetDefault("validation.enabled", Default.Validation.Enabled)
	v.SetDefault("validation.schema_validation", Default.Validation.SchemaValidation)

	v.SetDefault("backup.enabled", Default.Backup.Enabled)
	v.SetDefault("backup.dir", Default.Backup.Dir)
	v.SetDefault("backup.max_backups", Default.Backup.MaxBackups)
	v.SetDefault("backup.compress", Default.Backup.Compress)

	v.SetDefault("git_integration.enabled", Default.Git.Enabled)
	v.SetDefault("git_integration.auto_commit", Default.Git.AutoCommit)
	v.SetDefault("git_integration.commit_message_template", Default.Git.CommitMessageTemplate)

	v.SetDefault("notifications.channels", Default.Notify.Channels)
	v.SetDefault("notifications.log_file", Default.Notify.LogFile)
	v.SetDefault("notifications.max_size_mb", Default.Notify.MaxSizeMB)
	v.SetDefault("notifications.max_backups", Default.Notify.MaxBackups)

	v.SetDefault("watch.debounce", Default.Watch.Debounce)
	v.SetDefault("watch.workers", Default.Watch.Workers)
}

func (c *Config) Validate() error {
	if len(c.Rules) == 0 {
		return fmt.Errorf("no sync_rules configured")
	}

	seen := make(map[string]model.EntityType)
	for t, r := range c.Rules {
		if !slices.Contains(model.EntityTypes, t) {
			return fmt.Errorf("sync_rules: unknown entity type %q", t)
		}
		if r.SourceDir == "" || r.TargetPattern == "" {
			return fmt.Errorf("sync_rules.%s: source_dir and target_pattern are required", t)
		}
		if !strings.Contains(r.TargetPattern, "{name}") {
			return fmt.Errorf("sync_rules.%s: target_pattern must contain {name}", t)
		}
		dir := filepath.Clean(r.SourceDir)
		if other, ok := seen[dir]; ok {
			return fmt.Errorf("sync_rules: %s and %s share source_dir %q", other, t, dir)
		}
		seen[dir] = t
	}

	if c.Backup.MaxBackups < 1 {
		c.Backup.MaxBackups = 1
	}
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = Default.Watch.Debounce
	}
	if c.Watch.Workers < 1 {
		c.Watch.Workers = 1
	}
	if c.BufferSize < 1 {
		c.BufferSize = Default.BufferSize
	}

	return nil
}

// Types returns the configured entity types in their canonical order.
func (c *Config) Types() []model.EntityType {
	types := make([]model.EntityType, 0, len(c.Rules))
	for _, t := range model.EntityTypes {
		if _, ok := c.Rules[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

func (c *Config) SourceDirs() map[model.EntityType]string {
	dirs := make(map[model.EntityType]string, len(c.Rules))
	for t, r := range c.Rules {
		dirs[t] = filepath.Clean(r.SourceDir)
	}
	return dirs
}

// Path resolves a workspace-relative path against Root.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

func (c *Config) LogsToConsole() bool {
	return len(c.Notify.Channels) == 0 || slices.Contains(c.Notify.Channels, "console")
}

func (c *Config) LogsToFile() bool {
	return slices.Contains(c.Notify.Channels, "file") && c.Notify.LogFile != ""
}
