package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	QueueLog  = "log"
	QueueSQS  = "sqs"
	QueueNATS = "nats"

	LockNone      = "none"
	LockRedis     = "redis"
	LockZooKeeper = "zookeeper"
)

type Config struct {
	Service   ServiceConfig
	Scheduler SchedulerConfig
	Store     StoreConfig
	Queue     QueueConfig
	Lock      LockConfig
	Alert     AlertConfig
}

type ServiceConfig struct {
	Name     string
	NodeID   string
	Port     string
	LogLevel string
	DevLog   bool
}

type SchedulerConfig struct {
	PollInterval    time.Duration
	SweepInterval   time.Duration
	StaleAfter      time.Duration
	DispatchTimeout time.Duration
	MaxConcurrent   int
	BatchSize       int
	DispatchRate    float64
	DispatchBurst   int
	OutcomeRetries  int
}

type StoreConfig struct {
	Driver string
	// DSN is the postgres connection string or the sqlite file path
	DSN           string
	AWSRegion     string
	AWSEndpoint   string
	ScheduleTable string
	RunTable      string
	CreateTables  bool
}

type QueueConfig struct {
	Driver string

	// SQS
	AWSRegion       string
	AWSEndpoint     string
	URLPrefix       string
	DefaultQueue    string
	Routes          map[string]string
	OutcomeQueueURL string

	// NATS JetStream
	NATSURL        string
	JobStream      string
	SubjectPrefix  string
	OutcomeStream  string
	OutcomeSubject string
	Durable        string
}

type LockConfig struct {
	Driver string
	Prefix string
	TTL    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ZKServers        []string
	ZKRoot           string
	ZKSessionTimeout time.Duration
}

type AlertConfig struct {
	Channel         string
	SlackWebhookURL string
}

// Load reads the environment, after applying a .env file when one exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	p := &envParser{}
	nodeID := getEnv("NODE_ID", hostname())

	cfg := &Config{
		Service: ServiceConfig{
			Name:     getEnv("SERVICE_NAME", "kairos"),
			NodeID:   nodeID,
			Port:     getEnv("PORT", "8091"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
			DevLog:   p.bool("LOG_DEV", false),
		},
		Scheduler: SchedulerConfig{
			PollInterval:    p.duration("SCHEDULER_POLL_INTERVAL", 5*time.Second),
			SweepInterval:   p.duration("SCHEDULER_SWEEP_INTERVAL", 30*time.Second),
			StaleAfter:      p.duration("SCHEDULER_STALE_AFTER", time.Hour),
			DispatchTimeout: p.duration("SCHEDULER_DISPATCH_TIMEOUT", 10*time.Second),
			MaxConcurrent:   p.int("SCHEDULER_MAX_CONCURRENT", 8),
			BatchSize:       p.int("SCHEDULER_BATCH_SIZE", 100),
			DispatchRate:    p.float("SCHEDULER_DISPATCH_RATE", 0),
			DispatchBurst:   p.int("SCHEDULER_DISPATCH_BURST", 1),
			OutcomeRetries:  p.int("SCHEDULER_OUTCOME_RETRIES", 5),
		},
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
			DSN:           getEnv("STORE_DSN", ""),
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:   getEnv("DYNAMODB_ENDPOINT", ""),
			ScheduleTable: getEnv("DYNAMODB_SCHEDULE_TABLE", "scheduled_jobs"),
			RunTable:      getEnv("DYNAMODB_RUN_TABLE", "scheduled_job_runs"),
			CreateTables:  p.bool("DYNAMODB_CREATE_TABLES", false),
		},
		Queue: QueueConfig{
			Driver:          strings.ToLower(getEnv("QUEUE_DRIVER", QueueLog)),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:     getEnv("SQS_ENDPOINT", ""),
			URLPrefix:       getEnv("SQS_URL_PREFIX", ""),
			DefaultQueue:    getEnv("SQS_DEFAULT_QUEUE", "default"),
			Routes:          p.routes("QUEUE_ROUTES"),
			OutcomeQueueURL: getEnv("SQS_OUTCOME_QUEUE_URL", ""),
			NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
			JobStream:       getEnv("NATS_JOB_STREAM", "SCHEDULED_JOBS"),
			SubjectPrefix:   getEnv("NATS_SUBJECT_PREFIX", "jobs"),
			OutcomeStream:   getEnv("NATS_OUTCOME_STREAM", "JOB_OUTCOMES"),
			OutcomeSubject:  getEnv("NATS_OUTCOME_SUBJECT", "jobs.outcomes"),
			Durable:         getEnv("NATS_DURABLE", "kairos-scheduler"),
		},
		Lock: LockConfig{
			Driver:           strings.ToLower(getEnv("LOCK_DRIVER", LockNone)),
			Prefix:           getEnv("LOCK_PREFIX", "kairos:lock:"),
			TTL:              p.duration("LOCK_TTL", 0),
			RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:    getEnv("REDIS_PASSWORD", ""),
			RedisDB:          p.int("REDIS_DB", 0),
			ZKServers:        splitList(getEnv("ZK_SERVERS", "localhost:2181")),
			ZKRoot:           getEnv("ZK_ROOT", "/kairos/locks"),
			ZKSessionTimeout: p.duration("ZK_SESSION_TIMEOUT", 30*time.Second),
		},
		Alert: AlertConfig{
			Channel:         getEnv("ALERT_CHANNEL", "#scheduler-alerts"),
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreDynamoDB:
	case StorePostgres, StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("STORE_DSN is required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Queue.Driver {
	case QueueLog, QueueNATS:
	case QueueSQS:
		if c.Queue.URLPrefix == "" {
			return fmt.Errorf("SQS_URL_PREFIX is required for queue driver %q", c.Queue.Driver)
		}
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	switch c.Lock.Driver {
	case LockNone, LockRedis:
	case LockZooKeeper:
		if len(c.Lock.ZKServers) == 0 {
			return fmt.Errorf("ZK_SERVERS is required for lock driver %q", c.Lock.Driver)
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}

	s := c.Scheduler
	if s.PollInterval <= 0 || s.SweepInterval <= 0 || s.StaleAfter <= 0 || s.DispatchTimeout <= 0 {
		return fmt.Errorf("scheduler intervals must be > 0")
	}
	if s.MaxConcurrent <= 0 || s.BatchSize <= 0 {
		return fmt.Errorf("SCHEDULER_MAX_CONCURRENT and SCHEDULER_BATCH_SIZE must be > 0")
	}
	if s.DispatchRate < 0 {
		return fmt.Errorf("SCHEDULER_DISPATCH_RATE must be >= 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "kairos-1"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envParser keeps the first parse failure so Load can report it after reading everything
type envParser struct {
	err error
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *envParser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *envParser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

// routes parses "job_type=queue,other=queue2"
func (p *envParser) routes(key string) map[string]string {
	out := make(map[string]string)
	v := os.Getenv(key)
	for _, pair := range splitList(v) {
		jobType, queueName, ok := strings.Cut(pair, "=")
		jobType, queueName = strings.TrimSpace(jobType), strings.TrimSpace(queueName)
		if !ok || jobType == "" || queueName == "" {
			p.fail(key, v, fmt.Errorf("route %q is not job_type=queue", pair))
			continue
		}
		out[jobType] = queueName
	}
	return out
}
