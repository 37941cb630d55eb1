package main

import (
	"errors"
	"log"
	"os"

	"github.com/m3rciful/shopbot/core/cmd"
	"github.com/m3rciful/shopbot/internal/app"
	"github.com/m3rciful/shopbot/internal/config"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(cfg cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			return app.Bootstrap(cfg.(*config.Config))
		},
	})
	if errors.Is(err, config.ErrConfigCreated) {
		log.Printf("%v", err)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("shopbot: %v", err)
	}
}
