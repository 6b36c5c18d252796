package main

import (
	"flag"
	"log"

	"github.com/anthanhphan/go-kvs/internal/kv/app"
	"github.com/anthanhphan/go-kvs/internal/kv/config"
)

func main() {
	var (
		configPath string
		addr       string
		engine     string
		dataDir    string
	)
	flag.StringVar(&configPath, "configPath", "", "Path to configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&engine, "engine", "", "Storage engine: bitcask or bolt (overrides config)")
	flag.StringVar(&dataDir, "dataDir", "", "Data directory (overrides config)")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if engine != "" {
		cfg.Store.Engine = engine
	}
	if dataDir != "" {
		cfg.Store.DataDir = dataDir
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
