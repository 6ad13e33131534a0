// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/control"
	"github.com/relabs-tech/drift_controller/internal/estop"
	"github.com/relabs-tech/drift_controller/internal/gateway"
	"github.com/relabs-tech/drift_controller/internal/hardware"
	"github.com/relabs-tech/drift_controller/internal/telemetry"
)

// SimulatedDrift is the chassis drift of the simulated plant, rad/s.
const SimulatedDrift = 0.1

// RunController runs the heading controller until SIGINT or SIGTERM. With
// simulate set the serial controllers are replaced by a simulated plant.
func RunController(simulate bool) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("config not initialized")
	}
	logFile := SetupLogging(cfg)
	defer logFile.Close()

	var (
		hw  *hardware.Interface
		err error
	)
	if simulate {
		hw, err = hardware.OpenSimulated(cfg, hardware.NewPlant(SimulatedDrift))
	} else {
		hw, err = hardware.Open(cfg)
	}
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer hw.Close()

	ctl, err := control.New(hw, control.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	gw := gateway.New(ctl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctl.Run(ctx) })

	// a setup failure after the loop started still waits for it to send STOP
	fail := func(err error) error {
		stop()
		g.Wait()
		return err
	}

	if cfg.UDPListenAddr != "" {
		conn, err := gateway.ListenUDP(cfg.UDPListenAddr)
		if err != nil {
			return fail(fmt.Errorf("udp listen %s: %w", cfg.UDPListenAddr, err))
		}
		g.Go(func() error { return gw.ServeUDP(ctx, conn) })
	}

	if cfg.HTTPListenAddr != "" {
		srv := &http.Server{
			Addr:        cfg.HTTPListenAddr,
			Handler:     newControlMux(gw, ctl),
			ReadTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Printf("http: listening on %s (/ws/control, /api/status)", cfg.HTTPListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.MQTTBroker != "" {
		client, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return fail(err)
		}
		defer client.Disconnect(250)
		if err := startMQTT(ctx, g, cfg, client, gw, ctl); err != nil {
			return fail(err)
		}
	}

	if cfg.EStopPin != "" {
		pin, err := estop.OpenPin(cfg.EStopPin)
		if err != nil {
			return fail(err)
		}
		watcher, err := estop.NewWatcher(pin, cfg.EStopActiveLow, ctl)
		if err != nil {
			return fail(err)
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	log.Printf("controller: running at %d Hz, watchdog %v", cfg.ControlRateHz, cfg.WatchdogTimeout)
	err = g.Wait()
	log.Println("controller: shutting down")
	return err
}

func startMQTT(ctx context.Context, g *errgroup.Group, cfg *config.Config, client mqtt.Client, gw *gateway.Gateway, ctl *control.Controller) error {
	if cfg.TopicCommand != "" {
		if err := gw.SubscribeMQTT(client, cfg.TopicCommand, cfg.TopicReply); err != nil {
			return err
		}
	}
	if cfg.TopicStatus == "" {
		return nil
	}
	reporter, err := telemetry.NewReporter(ctl, telemetry.NewMQTTPublisher(client, true), cfg.TopicStatus, cfg.StatusInterval)
	if err != nil {
		return err
	}
	g.Go(func() error { return reporter.Run(ctx) })
	return nil
}
