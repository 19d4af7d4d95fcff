package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string
	DataDir  string // case supporting docs (workpapers, statements)

	AuthSecret    string
	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOrigins []string

	// Sync engine tuning. SaveDebounce is the quiet interval before a
	// scheduled save fires; SuppressWindow is how long after a local edit
	// pushed remote snapshots are discarded.
	SaveDebounce   time.Duration
	SuppressWindow time.Duration
	WriteTimeout   time.Duration

	// Cohort thresholds.
	ReadinessMinScore    int
	ReadinessMaxCritical int
	RushedThresholdSec   int
	ImproveScoreDelta    int
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),
		DataDir:  envOr("DATA_DIR", "./data"),

		AuthSecret:    envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:     envOr("ADMIN_USER", "admin"),
		AdminPassHash: envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),

		CORSOrigins: csvOr("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"),

		SaveDebounce:   envDur("SAVE_DEBOUNCE", 600*time.Millisecond),
		SuppressWindow: envDur("SUPPRESS_WINDOW", 850*time.Millisecond),
		WriteTimeout:   envDur("WRITE_TIMEOUT", 10*time.Second),

		ReadinessMinScore:    envInt("READINESS_MIN_SCORE", 80),
		ReadinessMaxCritical: envInt("READINESS_MAX_CRITICAL", 1),
		RushedThresholdSec:   envInt("RUSHED_THRESHOLD_SEC", 300),
		ImproveScoreDelta:    envInt("IMPROVE_SCORE_DELTA", 5),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
