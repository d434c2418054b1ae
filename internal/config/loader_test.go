package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/smartystreets/goconvey/convey"

	"github.com/YuminosukeSato/vbtune/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.GridSize, convey.ShouldEqual, 30)
				convey.So(cfg.Folds, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("VBTUNE_GRID_SIZE", "8")
			_ = os.Setenv("VBTUNE_FOLDS", "5")
			_ = os.Setenv("VBTUNE_WORKERS", "3")
			_ = os.Setenv("VBTUNE_CACHE_BACKEND", "redis")
			_ = os.Setenv("VBTUNE_CACHE_TTL", "90m")
			_ = os.Setenv("VBTUNE_SAVE_PRED", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GridSize, convey.ShouldEqual, 8)
				convey.So(cfg.Folds, convey.ShouldEqual, 5)
				convey.So(cfg.Workers, convey.ShouldEqual, 3)
				convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheRedis)
				convey.So(cfg.CacheTTL, convey.ShouldEqual, 90*time.Minute)
				convey.So(cfg.SavePred, convey.ShouldBeFalse)
				convey.So(cfg.Trees, convey.ShouldEqual, 1000) // default
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
data_url: "file:///tmp/vb_matches.csv"
grid_size: 12
folds: 4
trees: 200
split_prop: 0.8
store_dsn: "vbtune.db"
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("VBTUNE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DataURL, convey.ShouldEqual, "file:///tmp/vb_matches.csv")
				convey.So(cfg.GridSize, convey.ShouldEqual, 12)
				convey.So(cfg.Folds, convey.ShouldEqual, 4)
				convey.So(cfg.Trees, convey.ShouldEqual, 200)
				convey.So(cfg.SplitProp, convey.ShouldEqual, 0.8)
				convey.So(cfg.StoreDSN, convey.ShouldEqual, "vbtune.db")
				convey.So(cfg.OutputDir, convey.ShouldEqual, "out") // default
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, "grid_size: 12\nfolds: 4\n")
			_ = os.Setenv("VBTUNE_CONFIG", tmpFile)
			_ = os.Setenv("VBTUNE_FOLDS", "6")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.GridSize, convey.ShouldEqual, 12) // From file
				convey.So(cfg.Folds, convey.ShouldEqual, 6)     // Overridden by env
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("VBTUNE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VBTUNE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("VBTUNE_FOLDS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config that fails validation", func() {
			_ = os.Setenv("VBTUNE_FOLDS", "1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "folds")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestLoadFile(t *testing.T) {
	convey.Convey("Given an explicit config path", t, func() {
		clearConfigEnvVars()
		tmpFile := createTempConfigFile(t, "cache_backend: none\nlog_level: debug\n")

		cfg, err := config.LoadFile(context.Background(), tmpFile)

		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.CacheBackend, convey.ShouldEqual, config.CacheNone)
		convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vbtune.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"VBTUNE_CONFIG", "VBTUNE_GRID_SIZE", "VBTUNE_FOLDS", "VBTUNE_WORKERS",
		"VBTUNE_CACHE_BACKEND", "VBTUNE_CACHE_TTL", "VBTUNE_SAVE_PRED",
	} {
		_ = os.Unsetenv(key)
	}
}
