package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Download  DownloadConfig  `mapstructure:"download"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	Format    string `mapstructure:"format"`
	FilePath  string `mapstructure:"file_path"`
	Colorize  bool   `mapstructure:"colorize"`
	AddSource bool   `mapstructure:"add_source"`
}

type StorageConfig struct {
	DataDir       string `mapstructure:"data_dir"`       // 状态目录,存放sqlite与密钥文件
	SettingsFile  string `mapstructure:"settings_file"`  // 采集器配置文件
	TaskDBFile    string `mapstructure:"task_db_file"`   // 任务库,默认<data_dir>/tasks.sqlite3
	HistoryLimit  int    `mapstructure:"history_limit"`  // 任务历史保留条数
	SecretKeyFile string `mapstructure:"secret_key_file"` // Cookie加密密钥文件
}

type AuthConfig struct {
	AuthFile          string `mapstructure:"auth_file"`
	TokenTTLSeconds   int    `mapstructure:"token_ttl_seconds"`
	BootstrapPassword string `mapstructure:"bootstrap_password"` // 首次启动时的预置密码
	LoginMaxAttempts  int    `mapstructure:"login_max_attempts"`
	LoginWindowSecs   int    `mapstructure:"login_window_seconds"`
	LoginBlockSecs    int    `mapstructure:"login_block_seconds"`
}

type SchedulerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	TickIntervalSecs int  `mapstructure:"tick_interval_seconds"`
}

type FetcherConfig struct {
	BaseURL string `mapstructure:"base_url"` // 抓取服务地址
	QPS     int    `mapstructure:"qps"`      // 每秒请求数限制,0为不限制
}

type DownloadConfig struct {
	Path         string   `mapstructure:"path"`          // 默认下载目录
	AllowedRoots []string `mapstructure:"allowed_roots"` // 受限模式下允许的下载根目录
	Restricted   bool     `mapstructure:"restricted"`    // 是否限制下载目录在允许根内
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("userfetch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 默认值
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output", "console")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("storage.data_dir", "./data/state")
	viper.SetDefault("storage.settings_file", "./data/config/settings.json")
	viper.SetDefault("storage.history_limit", 200)

	viper.SetDefault("auth.auth_file", "./data/config/auth.json")
	viper.SetDefault("auth.token_ttl_seconds", 12*60*60)
	viper.SetDefault("auth.login_max_attempts", 6)
	viper.SetDefault("auth.login_window_seconds", 300)
	viper.SetDefault("auth.login_block_seconds", 600)

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.tick_interval_seconds", 30)

	viper.SetDefault("fetcher.base_url", "http://localhost:9080")
	viper.SetDefault("fetcher.qps", 10)

	viper.SetDefault("download.path", "./data/downloads")
	viper.SetDefault("download.restricted", false)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Storage.TaskDBFile == "" {
		config.Storage.TaskDBFile = config.Storage.DataDir + "/tasks.sqlite3"
	}
	if config.Storage.SecretKeyFile == "" {
		config.Storage.SecretKeyFile = config.Storage.DataDir + "/settings.secret.key"
	}

	return &config, nil
}
