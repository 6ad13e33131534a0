// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/drift_controller/internal/app"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5005", "controller UDP command address")
	flag.Parse()

	log.Println("starting drift-controller console (UDP)")

	if err := app.RunConsole(*addr); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
