package app

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/services"
	"github.com/astrofuse/astrofuse-backend/internal/utils"
)

type Config struct {
	HTTPAddr      string
	Environment   string
	Version       string
	AllowOrigins  []string
	StatsCacheTTL time.Duration
	Engine        services.EngineConfig
}

// LoadConfig reads the base config from the environment. Engine tuning can
// additionally come from a YAML file (FUSION_CONFIG_PATH); individual
// FUSION_* env vars override whatever the file set.
func LoadConfig(log *logger.Logger) Config {
	httpAddr := utils.GetEnv("HTTP_ADDR", ":8080", log)
	environment := utils.GetEnv("APP_ENV", "development", log)
	version := utils.GetEnv("APP_VERSION", "dev", log)
	statsCacheTTLSeconds := utils.GetEnvAsInt("STATS_CACHE_TTL", 30, log)

	var origins []string
	for _, o := range strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "", log), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	engine := loadEngineConfig(log)

	return Config{
		HTTPAddr:      httpAddr,
		Environment:   environment,
		Version:       version,
		AllowOrigins:  origins,
		StatsCacheTTL: time.Duration(statsCacheTTLSeconds) * time.Second,
		Engine:        engine,
	}
}

func loadEngineConfig(log *logger.Logger) services.EngineConfig {
	var engine services.EngineConfig

	if path := utils.GetEnv("FUSION_CONFIG_PATH", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Failed to read fusion config file, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &engine); err != nil {
			log.Warn("Failed to parse fusion config file, using defaults", "path", path, "error", err)
		} else {
			log.Info("Loaded fusion engine config", "path", path)
		}
	}

	engine.MaxRadiusArcsec = utils.GetEnvAsFloat("FUSION_MAX_RADIUS_ARCSEC", engine.MaxRadiusArcsec, log)
	engine.LargeGroupThreshold = utils.GetEnvAsInt("FUSION_LARGE_GROUP_THRESHOLD", engine.LargeGroupThreshold, log)
	engine.CellWorkers = utils.GetEnvAsInt("FUSION_CELL_WORKERS", engine.CellWorkers, log)
	engine.ScanBatchSize = utils.GetEnvAsInt("FUSION_SCAN_BATCH_SIZE", engine.ScanBatchSize, log)
	engine.ListPageCap = utils.GetEnvAsInt("FUSION_LIST_PAGE_CAP", engine.ListPageCap, log)
	return engine
}
