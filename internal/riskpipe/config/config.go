package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the risk pipeline workers.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	KYT      KYTConfig      `mapstructure:"kyt"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Bridges  []BridgeSeed   `mapstructure:"bridges"`
	Whales   []string       `mapstructure:"whale_addresses"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// KafkaConfig names the broker and every topic the workers touch.
// An empty Brokers string means "no broker": workers degrade to inert loops.
type KafkaConfig struct {
	Brokers         string `mapstructure:"brokers"` // comma-separated
	Group           string `mapstructure:"group"`
	TxTopic         string `mapstructure:"tx_topic"`
	AlertTopic      string `mapstructure:"alert_topic"`
	KYTRequestTopic string `mapstructure:"kyt_request_topic"`
	KYTResultTopic  string `mapstructure:"kyt_result_topic"`
	CrossChainTopic string `mapstructure:"cross_chain_topic"`
	DLQTopic        string `mapstructure:"dlq_topic"`
}

type PipelineConfig struct {
	MaxRetries              int     `mapstructure:"max_retries"`
	RetryBackoffBaseSeconds float64 `mapstructure:"retry_backoff_base_seconds"`
	RetryBackoffCapSeconds  float64 `mapstructure:"retry_backoff_cap_seconds"`
	PollTimeoutSeconds      float64 `mapstructure:"poll_timeout_seconds"`
}

func (p PipelineConfig) BackoffBase() time.Duration {
	return time.Duration(p.RetryBackoffBaseSeconds * float64(time.Second))
}

func (p PipelineConfig) BackoffCap() time.Duration {
	return time.Duration(p.RetryBackoffCapSeconds * float64(time.Second))
}

func (p PipelineConfig) PollTimeout() time.Duration {
	return time.Duration(p.PollTimeoutSeconds * float64(time.Second))
}

type AlertsConfig struct {
	DedupWindowSeconds       int      `mapstructure:"dedup_window_seconds"`
	CorrelationWindowSeconds int      `mapstructure:"correlation_window_seconds"`
	CorrelationMaxEntries    int      `mapstructure:"correlation_max_entries"`
	EmailRecipients          []string `mapstructure:"alert_email_recipients"`
	BroadcastChannel         string   `mapstructure:"broadcast_channel"`
	DedupStorePath           string   `mapstructure:"dedup_store_path"` // rocksdb; empty = in-memory only
	TravelRuleThresholdUSD   float64  `mapstructure:"travel_rule_threshold_usd"`
}

func (a AlertsConfig) DedupWindow() time.Duration {
	return time.Duration(a.DedupWindowSeconds) * time.Second
}

func (a AlertsConfig) CorrelationWindow() time.Duration {
	return time.Duration(a.CorrelationWindowSeconds) * time.Second
}

// ScoringConfig carries the combined-score heuristics. The source treats
// these as embedded constants; here they are tunable with the same defaults.
type ScoringConfig struct {
	FromWeight       float64 `mapstructure:"from_weight"`
	ToWeight         float64 `mapstructure:"to_weight"`
	ValueWeight      float64 `mapstructure:"value_weight"`
	ValueNormUSD     float64 `mapstructure:"value_norm_usd"`
	CriticalAt       float64 `mapstructure:"critical_at"`
	HighAt           float64 `mapstructure:"high_at"`
	MediumAt         float64 `mapstructure:"medium_at"`
	LowAt            float64 `mapstructure:"low_at"`
	LargeTransferUSD float64 `mapstructure:"large_transfer_usd"`
	HighRiskAt       float64 `mapstructure:"high_risk_at"`
}

type KYTConfig struct {
	LabelServiceURL     string   `mapstructure:"label_service_url"`
	RiskScorerURL       string   `mapstructure:"risk_scorer_url"`
	CallTimeoutSeconds  float64  `mapstructure:"call_timeout_seconds"`
	SubscriberQueue     int      `mapstructure:"subscriber_queue"`
	PublishTimeoutMs    int      `mapstructure:"publish_timeout_ms"`
	SanctionedAddresses []string `mapstructure:"sanctioned_addresses"`
	MixerAddresses      []string `mapstructure:"mixer_addresses"`
}

func (k KYTConfig) CallTimeout() time.Duration {
	return time.Duration(k.CallTimeoutSeconds * float64(time.Second))
}

func (k KYTConfig) PublishTimeout() time.Duration {
	return time.Duration(k.PublishTimeoutMs) * time.Millisecond
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"` // empty = persistence disabled
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"` // empty = email disabled
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// BridgeSeed registers one bridge contract at startup.
type BridgeSeed struct {
	Address           string   `mapstructure:"address"`
	Chain             string   `mapstructure:"chain"`
	Name              string   `mapstructure:"name"`
	BridgeType        string   `mapstructure:"bridge_type"`
	CounterpartChains []string `mapstructure:"counterpart_chains"`
	MethodSelectors   []string `mapstructure:"method_selectors"`
}

// Load reads configuration from an optional file and RISKPIPE_* env vars.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.group", "riskpipe")
	v.SetDefault("kafka.tx_topic", "chain.transactions")
	v.SetDefault("kafka.alert_topic", "risk.alert_events")
	v.SetDefault("kafka.kyt_request_topic", "risk.kyt_requests")
	v.SetDefault("kafka.kyt_result_topic", "risk.kyt_results")
	v.SetDefault("kafka.cross_chain_topic", "risk.cross_chain_alerts")
	v.SetDefault("kafka.dlq_topic", "risk.dlq")

	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_backoff_base_seconds", 0.2)
	v.SetDefault("pipeline.retry_backoff_cap_seconds", 2.0)
	v.SetDefault("pipeline.poll_timeout_seconds", 1.0)

	v.SetDefault("alerts.dedup_window_seconds", 300)
	v.SetDefault("alerts.correlation_window_seconds", 600)
	v.SetDefault("alerts.correlation_max_entries", 1000)
	v.SetDefault("alerts.alert_email_recipients", []string{})
	v.SetDefault("alerts.broadcast_channel", "riskpipe.alerts")
	v.SetDefault("alerts.dedup_store_path", "")
	v.SetDefault("alerts.travel_rule_threshold_usd", 3000)

	v.SetDefault("scoring.from_weight", 0.4)
	v.SetDefault("scoring.to_weight", 0.4)
	v.SetDefault("scoring.value_weight", 0.2)
	v.SetDefault("scoring.value_norm_usd", 100_000)
	v.SetDefault("scoring.critical_at", 0.9)
	v.SetDefault("scoring.high_at", 0.7)
	v.SetDefault("scoring.medium_at", 0.4)
	v.SetDefault("scoring.low_at", 0.2)
	v.SetDefault("scoring.large_transfer_usd", 100_000)
	v.SetDefault("scoring.high_risk_at", 0.7)

	v.SetDefault("kyt.label_service_url", "http://localhost:8091")
	v.SetDefault("kyt.risk_scorer_url", "http://localhost:8092")
	v.SetDefault("kyt.call_timeout_seconds", 3.0)
	v.SetDefault("kyt.subscriber_queue", 64)
	v.SetDefault("kyt.publish_timeout_ms", 100)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.from", "riskpipe@localhost")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("RISKPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
