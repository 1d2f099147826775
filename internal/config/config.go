package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config aggregates every layer of runtime configuration the runner
// recognizes. Fields are grouped by the subsystem that consumes them.
type Config struct {
	Runner   RunnerConfig
	Status   StatusConfig
	Admin    AdminConfig
	Archive  ArchiveConfig
	LogLevel string
}

// RunnerConfig controls admission, scheduling, and timeout behavior of the
// task state machine and its workers.
type RunnerConfig struct {
	MaxParallelTasks int           // cap on the started queue (max_running)
	MaxTriaging      int           // cap on the triaging queue
	Spawner          string        // name of the registered spawner variant to use
	Shuffle          bool          // randomize task order at seeding
	JobTimeout       time.Duration // 0 means unset (no wall-clock cap)
	PerTaskTimeout   time.Duration // soft per-task deadline
	LogDir           string        // root directory for per-task output
	CollationDelay   time.Duration // settling sleep before collating finished tasks
}

// StatusConfig controls the status server's listen endpoint.
type StatusConfig struct {
	ServerURI string // "host:port" for TCP, or a filesystem path for a unix socket
}

// AdminConfig controls the optional read-only introspection HTTP+websocket surface.
type AdminConfig struct {
	Addr         string // empty disables the admin server entirely
	JWTSecret    string
	APIKeys      []string
	RateLimitRPS int
}

// ArchiveConfig controls the optional Redis-backed completed-run archive.
type ArchiveConfig struct {
	RedisAddr string // empty disables archiving
	RedisDB   int
}

// Load reads layered configuration: built-in defaults, an optional YAML file
// discovered on the search path, then environment variables prefixed RUNNER_.
func Load() (*Config, error) {
	viper.Reset()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskrunner")

	setDefaults()

	viper.SetEnvPrefix("RUNNER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("runner.maxparalleltasks", 0) // 0 resolved to runtime.NumCPU() by callers
	viper.SetDefault("runner.maxtriaging", 8)
	viper.SetDefault("runner.spawner", "process")
	viper.SetDefault("runner.shuffle", false)
	viper.SetDefault("runner.jobtimeout", time.Duration(0))
	viper.SetDefault("runner.pertasktimeout", 15*time.Second)
	viper.SetDefault("runner.logdir", "./job-results")
	viper.SetDefault("runner.collationdelay", 2*time.Second)

	viper.SetDefault("status.serveruri", "127.0.0.1:8888")

	viper.SetDefault("admin.addr", "")
	viper.SetDefault("admin.jwtsecret", "")
	viper.SetDefault("admin.apikeys", []string{})
	viper.SetDefault("admin.ratelimitrps", 100)

	viper.SetDefault("archive.redisaddr", "")
	viper.SetDefault("archive.redisdb", 0)

	viper.SetDefault("loglevel", "info")
}
