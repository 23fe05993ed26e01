package shared

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"review_pulse/internal/domain"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// Source selects the data source adapter: mysql | bigquery | csv.
	Source         string
	BQProject      string
	BQTable        string
	BQTimeColumn   string
	LookbackDays   int
	CSVPath        string

	ExportBase string
	ExportKey  string
	ExportRPS  int
	Workers    int
	Brands     []string
	PageSize   int

	LocalTZ  *time.Location
	CacheTTL time.Duration
	Policy   domain.Policy
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "prod")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4,utf8&loc=UTC")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SOURCE", "mysql")
	v.SetDefault("BQ_PROJECT", "")
	v.SetDefault("BQ_TABLE", "")
	v.SetDefault("BQ_TIME_COLUMN", "date")
	v.SetDefault("LOOKBACK_DAYS", 0)
	v.SetDefault("CSV_PATH", "")
	v.SetDefault("EXPORT_BASE_URL", "http://localhost:9000/v1")
	v.SetDefault("EXPORT_API_KEY", "")
	v.SetDefault("EXPORT_RPS", 5)
	v.SetDefault("INGEST_WORKERS", 8)
	v.SetDefault("INGEST_BRANDS", "")
	v.SetDefault("INGEST_PAGE_SIZE", 200)
	v.SetDefault("LOCAL_TZ", "Asia/Kolkata")
	v.SetDefault("CACHE_TTL_SECONDS", 600)
	v.SetDefault("NEGATIVE_MAX", domain.DefaultNegativeMax)
	v.SetDefault("NEUTRAL_MAX", domain.DefaultNeutralMax)
	v.SetDefault("DRIVER_MIN", domain.DefaultDriverMin)
	v.SetDefault("BARRIER_MAX", domain.DefaultBarrierMax)
	v.SetDefault("SPLIT_TOP_K", domain.DefaultSplitTopK)
	v.SetDefault("MATRIX_TOP_K", domain.DefaultMatrixTopK)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("config file unreadable, using env and defaults")
		}
	}

	loc, err := time.LoadLocation(v.GetString("LOCAL_TZ"))
	if err != nil {
		log.Warn().Err(err).Str("tz", v.GetString("LOCAL_TZ")).Msg("unknown LOCAL_TZ, falling back to UTC")
		loc = time.UTC
	}

	policy := domain.NewPolicy(
		v.GetInt("NEGATIVE_MAX"),
		v.GetInt("NEUTRAL_MAX"),
		v.GetInt("DRIVER_MIN"),
		v.GetInt("BARRIER_MAX"),
	)
	policy.SplitTopK = v.GetInt("SPLIT_TOP_K")
	policy.MatrixTopK = v.GetInt("MATRIX_TOP_K")

	c := Config{
		AppEnv:         v.GetString("APP_ENV"),
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		MetricsAddr:    v.GetString("METRICS_ADDR"),
		MySQLDSN:       v.GetString("MYSQL_DSN"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPass:      v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		Source:         strings.ToLower(v.GetString("SOURCE")),
		BQProject:      v.GetString("BQ_PROJECT"),
		BQTable:        v.GetString("BQ_TABLE"),
		BQTimeColumn:   v.GetString("BQ_TIME_COLUMN"),
		LookbackDays:   v.GetInt("LOOKBACK_DAYS"),
		CSVPath:        v.GetString("CSV_PATH"),
		ExportBase:     v.GetString("EXPORT_BASE_URL"),
		ExportKey:      v.GetString("EXPORT_API_KEY"),
		ExportRPS:      v.GetInt("EXPORT_RPS"),
		Workers:        v.GetInt("INGEST_WORKERS"),
		Brands:         splitList(v.GetString("INGEST_BRANDS")),
		PageSize:       v.GetInt("INGEST_PAGE_SIZE"),
		LocalTZ:        loc,
		CacheTTL:       time.Duration(v.GetInt("CACHE_TTL_SECONDS")) * time.Second,
		Policy:         policy,
	}
	if c.Source == "bigquery" && c.BQTable == "" {
		log.Warn().Msg("SOURCE=bigquery but BQ_TABLE is empty")
	}
	return c
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
