package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvConfigFile 可選的 YAML 設定檔路徑
const EnvConfigFile = "WORKER_CONFIG"

type binding struct {
	key string
	env string
	def interface{}
}

// bindings 沿用 worker 既有的環境變數名稱
var bindings = []binding{
	{"redis.host", "REDIS_HOST", "redis"},
	{"redis.port", "REDIS_PORT", 6379},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},
	{"redis.master_name", "REDIS_MASTER_NAME", "mymaster"},
	{"redis.sentinel_addrs", "REDIS_SENTINEL_ADDRS", []string{}},
	{"redis.retry_count", "REDIS_RETRY_COUNT", 5},
	{"redis.retry_interval", "REDIS_RETRY_INTERVAL", 2},

	{"queue.request_stream", "JOB_QUEUE_REQUEST_STREAM", "job.requests"},
	{"queue.progress_stream", "JOB_QUEUE_PROGRESS_STREAM", "job.progress"},
	{"queue.result_stream", "JOB_QUEUE_RESULT_STREAM", "job.results"},
	{"queue.consumer_group", "JOB_QUEUE_CONSUMER_GROUP", "replay-jobs"},
	{"queue.consumer_name", "WORKER_ID", "replay-worker"},
	{"queue.block_timeout", "JOB_QUEUE_BLOCK_TIMEOUT", 5 * time.Second},
	{"queue.claim_min_idle", "JOB_QUEUE_CLAIM_MIN_IDLE", 5 * time.Minute},
	{"queue.claim_batch", "JOB_QUEUE_CLAIM_BATCH", 10},

	{"export.root", "JOB_EXPORT_PATH", "/data/replays/exports"},
	{"export.ffmpeg_path", "FFMPEG_PATH", "ffmpeg"},
	{"export.frame_rate", "RENDER_FRAME_RATE", 20},
	{"export.render_width", "RENDER_WIDTH", 1280},
	{"export.render_height", "RENDER_HEIGHT", 720},

	{"log.dir", "WORKER_LOG_DIR", ""},
	{"log.debug", "WORKER_DEBUG", false},

	{"http.addr", "WORKER_HTTP_ADDR", ":8090"},
	{"http.pprof_addr", "WORKER_PPROF_ADDR", ""},

	{"kafka.brokers", "KAFKA_BROKERS", []string{}},
	{"kafka.topic", "KAFKA_RESULT_TOPIC", "job.results"},
	{"kafka.retry_count", "KAFKA_RETRY_COUNT", 3},
	{"kafka.retry_interval", "KAFKA_RETRY_INTERVAL", 2},

	{"rabbitmq.url", "RABBITMQ_URL", ""},
	{"rabbitmq.queue", "RABBITMQ_RESULT_QUEUE", "job.results"},
	{"rabbitmq.retry_count", "RABBITMQ_RETRY_COUNT", 3},
	{"rabbitmq.retry_interval", "RABBITMQ_RETRY_INTERVAL", 2},

	{"ledger.dsn", "JOB_LEDGER_DSN", ""},
	{"ledger.retry_count", "JOB_LEDGER_RETRY_COUNT", 3},
	{"ledger.retry_interval", "JOB_LEDGER_RETRY_INTERVAL", 2},

	{"minio.endpoint", "MINIO_ENDPOINT", ""},
	{"minio.user", "MINIO_USER", ""},
	{"minio.password", "MINIO_PASSWORD", ""},
	{"minio.bucket", "MINIO_BUCKET", "replay-exports"},
	{"minio.use_ssl", "MINIO_USE_SSL", false},
	{"minio.retry_count", "MINIO_RETRY_COUNT", 3},
	{"minio.retry_interval", "MINIO_RETRY_INTERVAL", 2},
}

// Load 讀取 .env、環境變數與可選的 YAML 設定檔，組出 Worker 設定
func Load() (Worker, error) {
	loadDotEnv()

	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Worker{}, fmt.Errorf("bind env %s: %w", b.env, err)
		}
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := readExpandedConfig(v, path); err != nil {
			return Worker{}, err
		}
	}

	var cfg Worker
	if err := v.Unmarshal(&cfg); err != nil {
		return Worker{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(strings.Join(cfg.Kafka.Brokers, ","))
	cfg.Redis.SentinelAddrs = splitList(strings.Join(cfg.Redis.SentinelAddrs, ","))
	if err := cfg.validate(); err != nil {
		return Worker{}, err
	}
	return cfg, nil
}

func (w Worker) validate() error {
	switch {
	case w.Export.Root == "":
		return errors.New("export root is required")
	case w.Queue.RequestStream == "" || w.Queue.ConsumerGroup == "" || w.Queue.ConsumerName == "":
		return errors.New("request stream, consumer group and consumer name are required")
	case w.Export.FrameRate <= 0 || w.Export.FrameRate > 1000:
		return fmt.Errorf("frame rate %d out of range", w.Export.FrameRate)
	case w.Export.RenderWidth <= 0 || w.Export.RenderHeight <= 0:
		return fmt.Errorf("render size %dx%d invalid", w.Export.RenderWidth, w.Export.RenderHeight)
	case w.Queue.BlockTimeout <= 0:
		return errors.New("block timeout must be positive")
	}
	return nil
}

// readExpandedConfig 讀取 YAML，並把 ${} 占位符替換為環境變數的值
func readExpandedConfig(v *viper.Viper, path string) error {
	rawConfig, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expandedConfig := os.ExpandEnv(string(rawConfig))

	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBufferString(expandedConfig)); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv() {
	path, err := GetPath(".env", 5)
	if err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}
}

// GetPath use fileName loop maxCount find file path
func GetPath(fileName string, maxCount int) (string, error) {
	path := "./" + fileName

	for i := 0; i < maxCount; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = "../" + path
	}
	return "", errors.New(fileName + " can't find path")
}

// splitList trims and drops empty entries of a comma separated value
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
