package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string
	LogLevel    string

	FirebaseProject            string
	FirebaseServiceAccountJSON string
	FirebaseServiceAccountPath string
	StorageBucket              string

	AuthProvider string // "jwt" or "firebase"
	JWTSecret    string
	JWTJWKSURL   string
	AuthTimeout  time.Duration

	// AuthAutoProvision creates directory entries for unknown subjects.
	// Only honoured with the in-memory stores.
	AuthAutoProvision bool

	AllowedOrigins []string

	WSPingInterval time.Duration
	WSWriteWait    time.Duration
	WSMaxMessage   int64
	WSSendBuffer   int
	WSEventTimeout time.Duration

	KafkaBrokers          []string
	KafkaTopicMessageSent string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StorageBucket:              getEnv("STORAGE_BUCKET", ""),

		AuthProvider: strings.ToLower(getEnv("AUTH_PROVIDER", "jwt")),
		JWTSecret:    getEnv("JWT_SECRET", "your-secret-key"),
		JWTJWKSURL:   getEnv("JWT_JWKS_URL", ""),
		AuthTimeout:  getEnvAsSeconds("AUTH_TIMEOUT_SECONDS", 10),

		AuthAutoProvision: getEnvAsBool("AUTH_AUTO_PROVISION", false),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "*"),

		WSPingInterval: getEnvAsSeconds("WS_PING_INTERVAL_SECONDS", 30),
		WSWriteWait:    getEnvAsSeconds("WS_WRITE_WAIT_SECONDS", 10),
		WSMaxMessage:   getEnvAsInt64("WS_MAX_MESSAGE_BYTES", 64*1024),
		WSSendBuffer:   int(getEnvAsInt64("WS_SEND_BUFFER", 256)),
		WSEventTimeout: getEnvAsSeconds("WS_EVENT_TIMEOUT_SECONDS", 10),

		KafkaBrokers:          getEnvAsList("KAFKA_BROKERS", ""),
		KafkaTopicMessageSent: getEnv("KAFKA_TOPIC_MESSAGE_SENT", "chat.message.sent"),
	}

	return config, nil
}

// UsesFirestore reports whether a Firebase project is configured. Without
// one the server runs on in-memory stores.
func (c *Config) UsesFirestore() bool {
	return c.FirebaseProject != ""
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int64) time.Duration {
	return time.Duration(getEnvAsInt64(key, defaultSeconds)) * time.Second
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
