/*
Copyright (c) CSPTP Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/config"
	"github.com/csptp/csptp/protocol"
	"github.com/csptp/csptp/service"
	"github.com/csptp/csptp/stats"
)

// prepareConfig merges CLI flags over the on-disk config. Only a
// -clockclass value that differs from a non-zero config file clock class is
// logged as a warning; the other flags override the file silently.
func prepareConfig(cfgPath, localAddr string, domain int, twoStep bool, clockClass int, clockAccuracy, offsetScaledLogVariance int, priority1, priority2 int, parentAddr string) (config.ServiceConfig, error) {
	cfg := config.DefaultServiceConfig()
	if cfgPath != "" {
		fileCfg, err := config.ReadServiceConfig(cfgPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	warn := func(name string) {
		log.Warningf("overriding config value %q from command line flag", name)
	}

	if localAddr != "" {
		cfg.LocalAddress = localAddr
	}
	if domain != 0 {
		cfg.Domain = uint8(domain)
	}
	if twoStep {
		cfg.TwoStep = true
	}
	if clockClass != 0 {
		if cfg.ClockClass != 0 && int(cfg.ClockClass) != clockClass {
			warn("clock_class")
		}
		cfg.ClockClass = uint8(clockClass)
	}
	if clockAccuracy != 0 {
		cfg.ClockAccuracy = uint8(clockAccuracy)
	}
	if offsetScaledLogVariance != 0 {
		cfg.OffsetScaledLogVariance = uint16(offsetScaledLogVariance)
	}
	if priority1 != 0 {
		cfg.Priority1 = uint8(priority1)
	}
	if priority2 != 0 {
		cfg.Priority2 = uint8(priority2)
	}
	if parentAddr != "" {
		cfg.ParentAddress = parentAddr
	}
	return cfg, nil
}

func doWork(cfg config.ServiceConfig, monitoringPort int) error {
	local, err := address.StringToBinary(cfg.LocalAddress, address.DefaultPort, 0)
	if err != nil {
		return err
	}

	var parentAddr address.Address
	if cfg.ParentAddress != "" {
		parentAddr, err = address.StringToBinary(cfg.ParentAddress, address.DefaultPort, 0)
		if err != nil {
			return err
		}
	}

	counters := stats.New()

	engine, err := service.New(local, service.Config{
		Domain:       cfg.Domain,
		TwoStep:      cfg.TwoStep,
		PollInterval: cfg.PollInterval,
		ClientMaxAge: cfg.ClientMaxAge,
		Clock: service.ClockInfo{
			ClockIdentity:    protocol.ClockIdentity(cfg.ClockIdentity),
			ClockQuality: protocol.ClockQuality{
				ClockClass:              cfg.ClockClass,
				ClockAccuracy:           cfg.ClockAccuracy,
				OffsetScaledLogVariance: cfg.OffsetScaledLogVariance,
			},
			Priority1:        cfg.Priority1,
			Priority2:        cfg.Priority2,
			CurrentUTCOffset: cfg.CurrentUTCOffset,
			ParentAddress:    parentAddr,
		},
		Counters: counters,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	if monitoringPort > 0 {
		jsonServer := stats.NewJSONServer(counters)
		jsonServer.RegisterHandler("/clients", engine.ClientsHandler)
		go jsonServer.Start(monitoringPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("service: listening on %s", local)
	if err := engine.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("service: shutting down")
	return nil
}

func main() {
	var (
		verboseFlag        bool
		localFlag          string
		configFlag         string
		domainFlag         int
		twoStepFlag        bool
		clockClassFlag     int
		clockAccuracyFlag  int
		offsetVarFlag      int
		priority1Flag      int
		priority2Flag      int
		parentAddrFlag     string
		monitoringPortFlag int
	)

	flag.BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
	flag.StringVar(&localFlag, "local", "", "Local address to bind and listen on")
	flag.StringVar(&configFlag, "config", "", "Path to an ini config file")
	flag.IntVar(&domainFlag, "domain", 0, "PTP domain number")
	flag.BoolVar(&twoStepFlag, "twostep", false, "Answer with two-step (Sync + Follow_Up) exchanges")
	flag.IntVar(&clockClassFlag, "clockclass", 0, "Clock class reported in CSPTP_STATUS")
	flag.IntVar(&clockAccuracyFlag, "clockaccuracy", 0, "Clock accuracy reported in CSPTP_STATUS")
	flag.IntVar(&offsetVarFlag, "offsetscaledlogvariance", 0, "Offset scaled log variance reported in CSPTP_STATUS")
	flag.IntVar(&priority1Flag, "priority1", 0, "Priority1 reported in CSPTP_STATUS")
	flag.IntVar(&priority2Flag, "priority2", 0, "Priority2 reported in CSPTP_STATUS")
	flag.StringVar(&parentAddrFlag, "parent", "", "Grandmaster address reported in CSPTP_STATUS")
	flag.IntVar(&monitoringPortFlag, "monitoringport", 8889, "Port to serve JSON counters on, 0 disables")
	flag.Parse()

	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := prepareConfig(configFlag, localFlag, domainFlag, twoStepFlag, clockClassFlag, clockAccuracyFlag, offsetVarFlag, priority1Flag, priority2Flag, parentAddrFlag)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.LocalAddress == "" {
		log.Fatal("service: no local address given, pass -local or set it in the config file")
	}

	if err := doWork(cfg, monitoringPortFlag); err != nil {
		log.Fatal(err)
	}
}
