package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GibsMichele/WeatherApp/internal/station"
)

const (
	SinkMQTT  = "mqtt"
	SinkKafka = "kafka"
)

// Broker holds the connection parameters shared by the station and the monitor.
type Broker struct {
	Host      string
	Port      int
	ClientID  string
	KeepAlive time.Duration
	QoS       byte
	Topic     string
}

// Config is the station process configuration.
type Config struct {
	AppEnv   string
	LogLevel slog.Level

	StationID   string
	Interval    time.Duration
	DisableMQTT bool

	Sink         string
	Broker       Broker
	KafkaBrokers []string

	FailurePolicy station.FailurePolicy
	// Seed is nil when RANDOM_SEED is unset.
	Seed        *uint64
	MetricsAddr string
}

// MonitorConfig is the monitor process configuration.
type MonitorConfig struct {
	AppEnv   string
	LogLevel slog.Level
	Broker   Broker

	OutageAfter     time.Duration
	RefreshInterval time.Duration
	HideInvalid     bool
	OutageLogPath   string
	SQLitePath      string
}

func LoadFromEnv() (Config, error) {
	appEnv, level, err := loadCommon()
	if err != nil {
		return Config{}, err
	}

	stationID := strings.TrimSpace(os.Getenv("STATION_ID"))
	if stationID == "" {
		stationID = "WS-XX"
	}

	intervalStr := strings.TrimSpace(os.Getenv("INTERVAL"))
	if intervalStr == "" {
		intervalStr = "5"
	}
	intervalSeconds, err := strconv.Atoi(intervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid INTERVAL %q: %w", intervalStr, err)
	}
	if intervalSeconds <= 0 {
		return Config{}, fmt.Errorf("INTERVAL must be positive, got %d", intervalSeconds)
	}

	broker, err := loadBroker("ws-" + stationID + "-" + shortID())
	if err != nil {
		return Config{}, err
	}

	sink := strings.ToLower(strings.TrimSpace(os.Getenv("SINK")))
	if sink == "" {
		sink = SinkMQTT
	}
	switch sink {
	case SinkMQTT, SinkKafka:
	default:
		return Config{}, fmt.Errorf("invalid SINK %q (allowed: mqtt, kafka)", sink)
	}

	kafkaBrokersStr := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if kafkaBrokersStr == "" {
		kafkaBrokersStr = "localhost:9092"
	}
	var kafkaBrokers []string
	for _, b := range strings.Split(kafkaBrokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			kafkaBrokers = append(kafkaBrokers, b)
		}
	}

	policyStr := strings.TrimSpace(os.Getenv("PUBLISH_FAILURE_POLICY"))
	if policyStr == "" {
		policyStr = "continue"
	}
	policy, err := station.ParseFailurePolicy(policyStr)
	if err != nil {
		return Config{}, fmt.Errorf("PUBLISH_FAILURE_POLICY: %w", err)
	}

	var seed *uint64
	if seedStr := strings.TrimSpace(os.Getenv("RANDOM_SEED")); seedStr != "" {
		v, err := strconv.ParseUint(seedStr, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RANDOM_SEED %q: %w", seedStr, err)
		}
		seed = &v
	}

	return Config{
		AppEnv:        appEnv,
		LogLevel:      level,
		StationID:     stationID,
		Interval:      time.Duration(intervalSeconds) * time.Second,
		DisableMQTT:   strings.TrimSpace(os.Getenv("DISABLE_MQTT")) == "1",
		Sink:          sink,
		Broker:        broker,
		KafkaBrokers:  kafkaBrokers,
		FailurePolicy: policy,
		Seed:          seed,
		MetricsAddr:   strings.TrimSpace(os.Getenv("METRICS_ADDR")),
	}, nil
}

func LoadMonitorFromEnv() (MonitorConfig, error) {
	appEnv, level, err := loadCommon()
	if err != nil {
		return MonitorConfig{}, err
	}

	broker, err := loadBroker("weather-monitor-" + shortID())
	if err != nil {
		return MonitorConfig{}, err
	}

	outageStr := strings.TrimSpace(os.Getenv("OUTAGE_SECONDS"))
	if outageStr == "" {
		outageStr = "30"
	}
	outageSeconds, err := strconv.Atoi(outageStr)
	if err != nil {
		return MonitorConfig{}, fmt.Errorf("invalid OUTAGE_SECONDS %q: %w", outageStr, err)
	}
	if outageSeconds <= 0 {
		return MonitorConfig{}, fmt.Errorf("OUTAGE_SECONDS must be positive, got %d", outageSeconds)
	}

	refreshStr := strings.TrimSpace(os.Getenv("REFRESH_MS"))
	if refreshStr == "" {
		refreshStr = "1000"
	}
	refreshMS, err := strconv.Atoi(refreshStr)
	if err != nil {
		return MonitorConfig{}, fmt.Errorf("invalid REFRESH_MS %q: %w", refreshStr, err)
	}
	if refreshMS <= 0 {
		return MonitorConfig{}, fmt.Errorf("REFRESH_MS must be positive, got %d", refreshMS)
	}

	outageLog, ok := os.LookupEnv("OUTAGE_LOG")
	if !ok {
		outageLog = "outages.log"
	}

	return MonitorConfig{
		AppEnv:          appEnv,
		LogLevel:        level,
		Broker:          broker,
		OutageAfter:     time.Duration(outageSeconds) * time.Second,
		RefreshInterval: time.Duration(refreshMS) * time.Millisecond,
		HideInvalid:     strings.TrimSpace(os.Getenv("HIDE_INVALID")) == "1",
		OutageLogPath:   strings.TrimSpace(outageLog),
		SQLitePath:      strings.TrimSpace(os.Getenv("SQLITE_PATH")),
	}, nil
}

func loadCommon() (string, slog.Level, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return "", slog.LevelInfo, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return "", slog.LevelInfo, err
	}
	return appEnv, level, nil
}

func loadBroker(defaultClientID string) (Broker, error) {
	host := strings.TrimSpace(os.Getenv("BROKER_HOST"))
	if host == "" {
		host = "mosquitto"
	}

	portStr := strings.TrimSpace(os.Getenv("BROKER_PORT"))
	if portStr == "" {
		portStr = "1883"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Broker{}, fmt.Errorf("invalid BROKER_PORT %q: %w", portStr, err)
	}
	if port <= 0 || port > 65535 {
		return Broker{}, fmt.Errorf("BROKER_PORT out of range: %d", port)
	}

	clientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if clientID == "" {
		clientID = defaultClientID
	}

	keepAliveStr := strings.TrimSpace(os.Getenv("MQTT_KEEPALIVE"))
	if keepAliveStr == "" {
		keepAliveStr = "60s"
	}
	keepAlive, err := time.ParseDuration(keepAliveStr)
	if err != nil {
		return Broker{}, fmt.Errorf("invalid MQTT_KEEPALIVE %q: %w", keepAliveStr, err)
	}
	if keepAlive <= 0 {
		return Broker{}, fmt.Errorf("MQTT_KEEPALIVE must be positive, got %v", keepAlive)
	}

	qosStr := strings.TrimSpace(os.Getenv("MQTT_QOS"))
	if qosStr == "" {
		qosStr = "0"
	}
	qos, err := strconv.ParseUint(qosStr, 10, 8)
	if err != nil || qos > 2 {
		return Broker{}, fmt.Errorf("invalid MQTT_QOS %q (allowed: 0, 1, 2)", qosStr)
	}

	topic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if topic == "" {
		topic = "weather"
	}

	return Broker{
		Host:      host,
		Port:      port,
		ClientID:  clientID,
		KeepAlive: keepAlive,
		QoS:       byte(qos),
		Topic:     topic,
	}, nil
}

// shortID is the first block of a random UUID, enough to keep client ids
// of parallel instances apart.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
