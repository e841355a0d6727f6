package config

import "time"

// Worker definition replay_worker configuration structure
type Worker struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
}

// RedisConfig definition redis setting. SentinelAddrs 不為空時改用哨兵連線
type RedisConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	Password      string   `mapstructure:"password"`
	DB            int      `mapstructure:"db"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	RetryCount    int      `mapstructure:"retry_count"`
	RetryInterval int      `mapstructure:"retry_interval"`
}

// QueueConfig definition stream names and consumer group
type QueueConfig struct {
	RequestStream  string        `mapstructure:"request_stream"`
	ProgressStream string        `mapstructure:"progress_stream"`
	ResultStream   string        `mapstructure:"result_stream"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	ConsumerName   string        `mapstructure:"consumer_name"`
	BlockTimeout   time.Duration `mapstructure:"block_timeout"`
	ClaimMinIdle   time.Duration `mapstructure:"claim_min_idle"`
	ClaimBatch     int64         `mapstructure:"claim_batch"`
}

// ExportConfig definition export root and render/encode settings
type ExportConfig struct {
	Root         string `mapstructure:"root"`
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	FrameRate    int    `mapstructure:"frame_rate"`
	RenderWidth  int    `mapstructure:"render_width"`
	RenderHeight int    `mapstructure:"render_height"`
}

// LogConfig definition log output
type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Debug bool   `mapstructure:"debug"`
}

// HTTPConfig definition health/metrics listener. 空字串代表關閉
type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	PprofAddr string `mapstructure:"pprof_addr"`
}

// KafkaConfig definition optional result mirror
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryCount    int      `mapstructure:"retry_count"`
	RetryInterval int      `mapstructure:"retry_interval"`
}

// RabbitMQConfig definition optional result mirror
type RabbitMQConfig struct {
	URL           string `mapstructure:"url"`
	Queue         string `mapstructure:"queue"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}

// LedgerConfig definition optional postgres export ledger
type LedgerConfig struct {
	DSN           string `mapstructure:"dsn"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}

// MinIOConfig definition optional artifact mirror
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	BucketName    string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}

// FrameInterval 每一幀的間隔 (ms)
func (e ExportConfig) FrameInterval() int64 {
	if e.FrameRate <= 0 {
		return 50
	}
	return int64(1000 / e.FrameRate)
}
