// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/drift_controller/internal/app"
)

func main() {
	if err := app.RunPortList(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
