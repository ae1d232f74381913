package main

import (
	"log"

	"github.com/Raimguzhinov/alarmd/internal/app"
	"github.com/Raimguzhinov/alarmd/internal/config"
)

func main() {
	cfg := config.GetConfig()

	if err := app.Run(cfg); err != nil {
		log.Fatal(err)
	}
}
