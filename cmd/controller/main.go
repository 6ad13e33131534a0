// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/drift_controller/internal/app"
	"github.com/relabs-tech/drift_controller/internal/config"
)

func main() {
	configPath := flag.String("config", "./drift_config.txt", "path to configuration file")
	simulate := flag.Bool("sim", false, "drive a simulated plant instead of the serial controllers")
	flag.Parse()

	log.Println("starting drift-controller (heading hold, serial → movement controller)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunController(*simulate); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
