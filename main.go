package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v2"

	qhttp "pavecheck/http"
	"pavecheck/logger"
	"pavecheck/ml"
)

type Config struct {
	Http struct {
		Port            int      `yaml:"port"`
		TimeoutSec      int      `yaml:"timeout_sec"`
		AllowedOrigins  []string `yaml:"allowed_origins"`
		MaxUploadMB     int      `yaml:"max_upload_mb"`
		SessionCapacity int      `yaml:"session_capacity"`
		SessionTTLMin   int      `yaml:"session_ttl_min"`
	} `yaml:"http"`
	Model struct {
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"model"`
	Log logger.Config `yaml:"log"`
}

func main() {
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	serverCfg := qhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverCfg.Port = config.Http.Port
	}
	if config.Http.TimeoutSec > 0 {
		serverCfg.Timeout = time.Duration(config.Http.TimeoutSec) * time.Second
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverCfg.AllowedOrigins = config.Http.AllowedOrigins
	}
	if config.Http.MaxUploadMB > 0 {
		serverCfg.MaxUploadBytes = int64(config.Http.MaxUploadMB) << 20
	}
	if config.Http.SessionCapacity > 0 {
		serverCfg.SessionCapacity = config.Http.SessionCapacity
	}
	if config.Http.SessionTTLMin > 0 {
		serverCfg.SessionTTL = time.Duration(config.Http.SessionTTLMin) * time.Minute
	}

	server := qhttp.NewServer(serverCfg, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Optional default artifact; per-session uploads take precedence.
	if config.Model.Path != "" {
		p, err := ml.LoadFile(config.Model.Path)
		if err != nil {
			zlog.Warnw("default artifact not loaded", "path", config.Model.Path, "error", err)
		} else {
			server.SetDefaultPipeline(p)
			zlog.Infow("default artifact loaded", "path", config.Model.Path)
		}
		if config.Model.Watch {
			go func() {
				if err := ml.Watch(ctx, config.Model.Path, zlog, server.SetDefaultPipeline); err != nil && ctx.Err() == nil {
					zlog.Warnw("artifact watcher stopped", "error", err)
				}
			}()
		}
	}

	go func() {
		if err := server.Start(); err != nil {
			zlog.Fatalw("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	zlog.Infow("shutting down")

	if err := server.Stop(); err != nil {
		zlog.Warnw("server forced to shutdown", "error", err)
	}
}

func loadConfig(path string) (*Config, error) {
	var config Config
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// run with built-in defaults
			return &config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
