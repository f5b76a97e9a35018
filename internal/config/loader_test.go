package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/tablewire/internal/config"
	"github.com/smartystreets/goconvey/convey"
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
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Evolution.Configured(), convey.ShouldBeFalse)
				convey.So(cfg.Pragmatic.URL, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GATEWAY_ADDR", ":8080")
			_ = os.Setenv("GATEWAY_CLIENT_QUEUE_SIZE", "64")
			_ = os.Setenv("GATEWAY_CACHE__TTL", "5s")
			_ = os.Setenv("GATEWAY_EVOLUTION__USERNAME", "alice")
			_ = os.Setenv("GATEWAY_EVOLUTION__BATCH_SIZE", "10")
			_ = os.Setenv("GATEWAY_PRAGMATIC__URL", "wss://dga.example/ws")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ClientQueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.Cache.TTL, convey.ShouldEqual, 5*time.Second)
				convey.So(cfg.Evolution.Username, convey.ShouldEqual, "alice")
				convey.So(cfg.Evolution.BatchSize, convey.ShouldEqual, 10)
				convey.So(cfg.Pragmatic.URL, convey.ShouldEqual, "wss://dga.example/ws")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
cache:
  ttl: 10s
  max_entries: 20
evolution:
  base_url: "https://lobby.example"
  casino_id: "casino1"
  username: "u"
  password: "p"
  exclude:
    - "t1"
    - "t2"
pragmatic:
  casino_id: "ppcasino"
  ping_interval: 15s
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GATEWAY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Cache.TTL, convey.ShouldEqual, 10*time.Second)
				convey.So(cfg.Cache.MaxEntries, convey.ShouldEqual, 20)
				convey.So(cfg.Evolution.Configured(), convey.ShouldBeTrue)
				convey.So(cfg.Evolution.Exclude, convey.ShouldResemble, []string{"t1", "t2"})
				convey.So(cfg.Evolution.BatchSize, convey.ShouldEqual, 50)
				convey.So(cfg.Pragmatic.CasinoID, convey.ShouldEqual, "ppcasino")
				convey.So(cfg.Pragmatic.PingInterval, convey.ShouldEqual, 15*time.Second)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
evolution:
  username: "from-file"
  casino_id: "casino1"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GATEWAY_CONFIG", tmpFile)
			_ = os.Setenv("GATEWAY_EVOLUTION__USERNAME", "from-env")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Evolution.Username, convey.ShouldEqual, "from-env")
				convey.So(cfg.Evolution.CasinoID, convey.ShouldEqual, "casino1")
			})
		})

		convey.Convey("When loading config with an env file", func() {
			envFile := createTempFile("gateway-*.env", "GATEWAY_EVOLUTION__PASSWORD=secret\nGATEWAY_LOG_LEVEL=debug\n")
			defer func() { _ = os.Remove(envFile) }()

			_ = os.Setenv("GATEWAY_ENV_FILE", envFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then values from the env file are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Evolution.Password, convey.ShouldEqual, "secret")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When the env file is missing but explicitly requested", func() {
			_ = os.Setenv("GATEWAY_ENV_FILE", "/nonexistent/gateway.env")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GATEWAY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("GATEWAY_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a zero batch size", func() {
			_ = os.Setenv("GATEWAY_EVOLUTION__BATCH_SIZE", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GATEWAY_CLIENT_QUEUE_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"GATEWAY_CONFIG",
		"GATEWAY_ENV_FILE",
		"GATEWAY_ADDR",
		"GATEWAY_LOG_LEVEL",
		"GATEWAY_CLIENT_QUEUE_SIZE",
		"GATEWAY_CACHE__TTL",
		"GATEWAY_EVOLUTION__USERNAME",
		"GATEWAY_EVOLUTION__PASSWORD",
		"GATEWAY_EVOLUTION__BATCH_SIZE",
		"GATEWAY_PRAGMATIC__URL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	return createTempFile("gateway-config-*.yaml", content)
}

func createTempFile(pattern, content string) string {
	tmpFile, err := os.CreateTemp("", pattern)
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
