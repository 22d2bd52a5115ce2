package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Heartbeat HeartbeatConfig
	Cleanup   CleanupConfig
	AI        AIConfig
}

type ServerConfig struct {
	Port     string
	LogLevel string
}

type StorageConfig struct {
	UploadsDir string
	ResultsDir string
	MasksDir   string
}

type SchedulerConfig struct {
	// MaxConcurrentLimit is the hard ceiling on parallel workers; the runtime
	// setting starts at this value and may be lowered through PUT /settings.
	MaxConcurrentLimit int
}

type HeartbeatConfig struct {
	TimeoutSeconds int
}

type CleanupConfig struct {
	IntervalHours float64
	MaxAgeHours   float64
}

type AIConfig struct {
	// Dir holds the worker scripts and the virtualenv installed by the
	// bootstrap script.
	Dir string
	// Python overrides the interpreter; empty means the venv interpreter
	// under Dir.
	Python string
}

// PythonPath returns the interpreter used to run worker scripts.
func (a AIConfig) PythonPath() string {
	if a.Python != "" {
		return a.Python
	}
	return filepath.Join(a.Dir, "venv", "bin", "python3")
}

// ScriptPath resolves a worker script name inside the AI directory.
func (a AIConfig) ScriptPath(name string) string {
	return filepath.Join(a.Dir, name)
}

func Load() (*Config, error) {
	// Cloud-stage API keys may arrive as Docker/Swarm secrets
	readSecret("OPENAI_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("storage.uploads_dir", "UPLOADS_DIR")
	_ = viper.BindEnv("storage.results_dir", "RESULTS_DIR")
	_ = viper.BindEnv("scheduler.max_concurrent", "MAX_CONCURRENT_JOBS")
	_ = viper.BindEnv("heartbeat.timeout_seconds", "HEARTBEAT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("cleanup.interval_hours", "CLEANUP_INTERVAL_HOURS")
	_ = viper.BindEnv("cleanup.max_age_hours", "CLEANUP_MAX_AGE_HOURS")
	_ = viper.BindEnv("ai.dir", "AI_DIR")
	_ = viper.BindEnv("ai.python", "PYTHON_BIN")

	// Defaults
	viper.SetDefault("server.port", "3001")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("storage.uploads_dir", "uploads")
	viper.SetDefault("storage.results_dir", "results")
	viper.SetDefault("scheduler.max_concurrent", 2)
	viper.SetDefault("heartbeat.timeout_seconds", 10)
	viper.SetDefault("cleanup.interval_hours", 2.0)
	viper.SetDefault("cleanup.max_age_hours", 2.0)
	viper.SetDefault("ai.dir", "ai")
	viper.SetDefault("ai.python", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	uploadsDir := viper.GetString("storage.uploads_dir")

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Storage: StorageConfig{
			UploadsDir: uploadsDir,
			ResultsDir: viper.GetString("storage.results_dir"),
			MasksDir:   filepath.Join(filepath.Dir(uploadsDir), "masks"),
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentLimit: viper.GetInt("scheduler.max_concurrent"),
		},
		Heartbeat: HeartbeatConfig{
			TimeoutSeconds: viper.GetInt("heartbeat.timeout_seconds"),
		},
		Cleanup: CleanupConfig{
			IntervalHours: viper.GetFloat64("cleanup.interval_hours"),
			MaxAgeHours:   viper.GetFloat64("cleanup.max_age_hours"),
		},
		AI: AIConfig{
			Dir:    viper.GetString("ai.dir"),
			Python: viper.GetString("ai.python"),
		},
	}

	if cfg.Scheduler.MaxConcurrentLimit < 1 {
		cfg.Scheduler.MaxConcurrentLimit = 1
	}

	return cfg, nil
}
