package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultRoot は静的ファイルのデフォルト配信ディレクトリ
const DefaultRoot = "pointer-website/out"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	Static StaticConfig `yaml:"static" toml:"static"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"` // リッスンするホスト (空なら全インターフェース)
	Port int    `yaml:"port" toml:"port"` // リッスンするポート番号 (0ならランダム)

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`         // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`       // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // シャットダウン待ち時間

	// /-/ 以下の運用エンドポイントを有効にするか (デフォルトは無効)
	OpsEnabled bool `yaml:"ops_enabled" toml:"ops_enabled"`
}

// StaticConfig は静的ファイル配信の設定
type StaticConfig struct {
	Root             string            `yaml:"root" toml:"root"`                           // 配信ルート
	IndexFile        string            `yaml:"index_file" toml:"index_file"`               // ディレクトリ要求時のファイル
	DirectoryListing bool              `yaml:"directory_listing" toml:"directory_listing"` // index がない場合に一覧を返す
	Sniff            bool              `yaml:"sniff" toml:"sniff"`                         // 未知の拡張子を内容から判定する
	MIMETypes        map[string]string `yaml:"mime_types" toml:"mime_types"`               // 拡張子テーブルへの追加
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text または json
}

// Default はデフォルト値を持つ設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            5000,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 5 * time.Second,
			OpsEnabled:      false,
		},
		Static: StaticConfig{
			Root:      DefaultRoot,
			IndexFile: "index.html",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
// デフォルト値、設定ファイル (path が空でなければ)、環境変数の順に上書きする
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("YAMLの解析に失敗 %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("TOMLの解析に失敗 %s: %w", path, err)
		}
	default:
		return fmt.Errorf("未対応の設定ファイル形式: %q", ext)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("環境変数 PORT が不正です: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("STATIC_ROOT"); v != "" {
		c.Static.Root = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	if c.Static.Root == "" {
		return fmt.Errorf("配信ディレクトリが指定されていません")
	}
	if c.Static.IndexFile != "" && strings.ContainsAny(c.Static.IndexFile, `/\`) {
		return fmt.Errorf("index_file はファイル名のみ指定できます: %q", c.Static.IndexFile)
	}
	for ext := range c.Static.MIMETypes {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("拡張子は '.' で始まる必要があります: %q", ext)
		}
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("未対応のログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// DisplayURL はコンソールに表示するURLを返す
func (c *Config) DisplayURL() string {
	return displayURL(c.Server.Host, c.Server.Port)
}

// DisplayURLFor は実際にバインドしたアドレスから表示用URLを作る
func DisplayURLFor(addr string) string {
	host, sport, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	port, _ := strconv.Atoi(sport)
	return displayURL(host, port)
}

func displayURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}
