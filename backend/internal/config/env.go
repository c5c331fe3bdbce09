package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3100"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	// local, s3 or sqlite. sqlite only changes where agent task state lives;
	// everything else stays on the local/s3 document storage.
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".procure/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"procure/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// SQLite settings (used when Type == "sqlite")
	SQLitePath string `envconfig:"SQLITE_PATH" default:".procure/agent_tasks.db"`
}

type DifyEnv struct {
	BaseURL string `envconfig:"DIFY_BASE_URL" default:"https://api.dify.ai/v1"`
	APIKey  string `envconfig:"DIFY_API_KEY"`
	// Per-context overrides, e.g. "casual_chat:app-xxx,standard_sourcing:app-yyy".
	APIKeys map[string]string `envconfig:"DIFY_API_KEYS"`
	Timeout time.Duration     `envconfig:"DIFY_TIMEOUT" default:"5m"`
}

type ClassifierEnv struct {
	// Optional YAML file overriding the stage keyword lists. Watched for changes.
	KeywordsFile string `envconfig:"KEYWORDS_FILE"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:ops@example.com"`
}

type Env struct {
	BaseEnv
	StorageEnv
	DifyEnv
	ClassifierEnv
	VAPIDEnv
}

const namespace = "PROCURE"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *BaseEnv) Addr() string {
	return e.HTTPHost + ":" + e.HTTPPort
}

// Enabled reports whether push notifications can be signed.
func (e *VAPIDEnv) Enabled() bool {
	return e.PublicKey != "" && e.PrivateKey != ""
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func DifyEnvFromEnv(env *Env) *DifyEnv {
	return &env.DifyEnv
}

func ClassifierEnvFromEnv(env *Env) *ClassifierEnv {
	return &env.ClassifierEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
