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
	"flag"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/client"
	"github.com/csptp/csptp/config"
	"github.com/csptp/csptp/stats"
)

// prepareConfig merges CLI flags over the on-disk config. Only a -server
// value that differs from the config file's server is logged as a warning;
// the other flags override the file silently.
func prepareConfig(cfgPath, server, localAddr string, domain int, twoStep, reqStatus, reqAlt bool, interval time.Duration) (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if cfgPath != "" {
		fileCfg, err := config.ReadClientConfig(cfgPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	warn := func(name string) {
		log.Warningf("overriding config value %q from command line flag", name)
	}

	if server != "" {
		if cfg.Server != "" && cfg.Server != server {
			warn("server")
		}
		cfg.Server = server
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
	if reqStatus {
		cfg.RequestStatus = true
	}
	if reqAlt {
		cfg.RequestAlt = true
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	return cfg, nil
}

func doWork(cfg config.ClientConfig, monitoringPort int) error {
	local, err := address.StringToBinary(cfg.LocalAddress, 0, 0)
	if err != nil {
		return err
	}
	server, err := address.StringToBinary(cfg.Server, address.DefaultPort, 0)
	if err != nil {
		return err
	}

	counters := stats.New()
	if monitoringPort > 0 {
		go stats.NewJSONServer(counters).Start(monitoringPort)
	}

	engine, err := client.New(local, client.Config{
		Server:        server,
		Domain:        cfg.Domain,
		TwoStep:       cfg.TwoStep,
		RequestStatus: cfg.RequestStatus,
		RequestAlt:    cfg.RequestAlt,
		WaitLoop:      cfg.WaitLoop,
		PollInterval:  cfg.PollInterval,
		Counters:      counters,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Run(ctx, cfg.Interval, func(result *client.Result, err error) {
		if err != nil {
			log.Errorf("client: request failed: %v", err)
			return
		}
		counters.SetOffsetNanoseconds(result.Offset.Nanoseconds())
		counters.SetRoundTripNanoseconds(result.RoundTrip.Nanoseconds())
		log.Infof("client: seq=%d offset=%s round_trip=%s", result.SequenceID, result.Offset, result.RoundTrip)
	})
	log.Info("client: shutting down")
	return nil
}

func main() {
	var (
		verboseFlag        bool
		serverFlag         string
		localFlag          string
		configFlag         string
		domainFlag         int
		twoStepFlag        bool
		requestStatusFlag  bool
		requestAltFlag     bool
		intervalFlag       time.Duration
		monitoringPortFlag int
	)

	flag.BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
	flag.StringVar(&serverFlag, "server", "", "Address of the CSPTP service to query")
	flag.StringVar(&localFlag, "local", "", "Local address to bind to")
	flag.StringVar(&configFlag, "config", "", "Path to an ini config file")
	flag.IntVar(&domainFlag, "domain", 0, "PTP domain number")
	flag.BoolVar(&twoStepFlag, "twostep", false, "Request two-step (Sync + Follow_Up) exchanges")
	flag.BoolVar(&requestStatusFlag, "status", false, "Request a CSPTP_STATUS TLV in responses")
	flag.BoolVar(&requestAltFlag, "alt", false, "Request an ALTERNATE_TIME_OFFSET_INDICATOR TLV in responses")
	flag.DurationVar(&intervalFlag, "interval", 0, "Interval between request cycles")
	flag.IntVar(&monitoringPortFlag, "monitoringport", 0, "Port to serve JSON counters on, 0 disables")
	flag.Parse()

	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	cfg, err := prepareConfig(configFlag, serverFlag, localFlag, domainFlag, twoStepFlag, requestStatusFlag, requestAltFlag, intervalFlag)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Server == "" {
		log.Fatal("client: no server address given, pass -server or set it in the config file")
	}

	if err := doWork(cfg, monitoringPortFlag); err != nil {
		log.Fatal(err)
	}
}
