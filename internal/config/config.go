package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	Password       string
	ModelPath      string
	ConfigPath     string
	UploadDir      string
	DataDirectory  string
	LogDirectory   string
	CamerasPort    int
	CameraNames    map[string]string // camera IP -> display name for the UDP feed
	DetectionScore float64           // Minimalny wynik detektora

	ProcessingInterval    int     // Co którą klatkę przetwarzać (1=każdą, 3=co trzecią)
	TickInterval          time.Duration
	ReportInterval        time.Duration
	SampleInterval        time.Duration
	SeriesCapacity        int
	AssociationDistanceSq float64 // px², progi dopasowania trackera
	RecountOnReentry      bool
	PersistDebounce       time.Duration
	ReportURL             string // pusty = zapis bezpośrednio w procesie
	PushToken             string // wspólny sekret dla /save_zones i /log_counts
	CountFlushInterval    time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnvAsInt("PORT", 8080),
		Password:              getEnv("PASSWORD", "changeme"),
		ModelPath:             getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:            getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		UploadDir:             getEnv("UPLOAD_DIR", filepath.Join(".", "uploads")),
		DataDirectory:         getEnv("DATA_DIR", filepath.Join(".", "data")),
		LogDirectory:          getEnv("LOG_DIR", filepath.Join(".", "logs")),
		CamerasPort:           getEnvAsInt("CAMERAS_PORT", 9999),
		CameraNames:           getEnvAsMap("CAMERA_NAMES"),
		DetectionScore:        getEnvAsFloat("DETECTION_THRESHOLD", 0.5),
		ProcessingInterval:    getEnvAsInt("PROCESSING_INTERVAL", 3), // Przetwarzaj co 3. klatkę
		TickInterval:          getEnvAsMillis("TICK_INTERVAL_MS", 33),
		ReportInterval:        getEnvAsMillis("REPORT_INTERVAL_MS", 5000),
		SampleInterval:        getEnvAsMillis("SAMPLE_INTERVAL_MS", 1000),
		SeriesCapacity:        getEnvAsInt("SERIES_CAPACITY", 60),
		AssociationDistanceSq: getEnvAsFloat("ASSOCIATION_DISTANCE_SQ", 2000),
		RecountOnReentry:      getEnvAsBool("REENTRY_RECOUNT", false),
		PersistDebounce:       getEnvAsMillis("PERSIST_DEBOUNCE_MS", 500),
		ReportURL:             getEnv("REPORT_URL", ""),
		PushToken:             getEnv("PUSH_TOKEN", ""),
		CountFlushInterval:    time.Duration(getEnvAsInt("COUNT_FLUSH_INTERVAL", 30)) * time.Second,
	}
}

// DatabasePath is the sqlite file inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDirectory, "zonecounter.db")
}

// ZonesFile is the JSON snapshot written on every zone save.
func (c *Config) ZonesFile() string {
	return filepath.Join(c.DataDirectory, "zones.json")
}

// CountsFile is the CSV log appended on every count push.
func (c *Config) CountsFile() string {
	return filepath.Join(c.DataDirectory, "counts_log.csv")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsMap parses "key=value,key=value". Malformed pairs are skipped.
func getEnvAsMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func getEnvAsMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Millisecond
}
