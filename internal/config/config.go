package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	LogSQL   bool
	HTTPAddr string

	// RecordsDir holds the <YYYYMMDD>-velib-records.csv day files.
	// Set via RECORDS_DIR (relative paths are resolved against the process working directory at startup).
	RecordsDir string
	// RecordsLocation is the zone used to turn query ranges into calendar days.
	RecordsLocation *time.Location

	CORSAllowedOrigins []string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	OpenDataURL     string
	OpenDataTimeout time.Duration

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

const DefaultOpenDataURL = "https://opendata.paris.fr/api/explore/v2.1/catalog/datasets/velib-disponibilite-en-temps-reel/records"

func LoadFromEnv() (Config, error) {
	// .env is optional; real env vars win over it.
	_ = godotenv.Load()

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	logSQL, err := parseBool("LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	recordsDir := strings.TrimSpace(os.Getenv("RECORDS_DIR"))
	if recordsDir == "" {
		recordsDir = "records"
	}
	recordsDir, err = filepath.Abs(recordsDir)
	if err != nil {
		return Config{}, fmt.Errorf("RECORDS_DIR %q: %w", recordsDir, err)
	}

	tzName := strings.TrimSpace(os.Getenv("RECORDS_TZ"))
	if tzName == "" {
		tzName = "Europe/Paris"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid RECORDS_TZ %q: %w", tzName, err)
	}

	corsOrigins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	if driver != "sqlite3" {
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (only sqlite3 is supported)", driver)
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "data/velib.db"
	}

	maxOpenConns, err := parseInt("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := parseInt("DB_MAX_IDLE_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := parseDuration("DB_CONN_MAX_LIFETIME", 0)
	if err != nil {
		return Config{}, err
	}

	mqttEnabled, err := parseBool("MQTT_ENABLED", true)
	if err != nil {
		return Config{}, err
	}
	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}
	mqttPort, err := parseInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "velib-server"
	}
	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "velib/stations/+/snapshot"
	}

	kafkaTopic := strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))
	if kafkaTopic == "" {
		kafkaTopic = "velib.snapshots"
	}
	kafkaGroupID := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID"))
	if kafkaGroupID == "" {
		kafkaGroupID = "velib-server"
	}

	openDataURL := strings.TrimSpace(os.Getenv("OPENDATA_URL"))
	if openDataURL == "" {
		openDataURL = DefaultOpenDataURL
	}
	openDataTimeout, err := parseDuration("OPENDATA_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	if openDataTimeout <= 0 {
		return Config{}, fmt.Errorf("OPENDATA_TIMEOUT must be positive, got %v", openDataTimeout)
	}

	influxURL := strings.TrimSpace(os.Getenv("INFLUX_URL"))
	if influxURL == "" {
		influxURL = "http://localhost:8086"
	}
	influxBucket := strings.TrimSpace(os.Getenv("INFLUX_BUCKET"))
	if influxBucket == "" {
		influxBucket = "velib"
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		LogSQL:                logSQL,
		HTTPAddr:              httpAddr,
		RecordsDir:            recordsDir,
		RecordsLocation:       loc,
		CORSAllowedOrigins:    corsOrigins,
		SQLiteDriver:          driver,
		SQLiteDSN:             dsn,
		SQLitePath:            path,
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		MQTTEnabled:           mqttEnabled,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		MQTTTopic:             mqttTopic,
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            kafkaTopic,
		KafkaGroupID:          kafkaGroupID,
		OpenDataURL:           openDataURL,
		OpenDataTimeout:       openDataTimeout,
		InfluxURL:             influxURL,
		InfluxToken:           strings.TrimSpace(os.Getenv("INFLUX_TOKEN")),
		InfluxOrg:             strings.TrimSpace(os.Getenv("INFLUX_ORG")),
		InfluxBucket:          influxBucket,
	}, nil
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

func parseInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
