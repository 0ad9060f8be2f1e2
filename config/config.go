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

// Package config loads client and service configuration from an INI file,
// the way calnex/config loads Calnex device configuration: sections and
// keys parsed with go-ini, then copied into a typed struct CLI flags can
// still override.
package config

import (
	"fmt"
	"time"

	"github.com/go-ini/ini"
)

// ClientConfig is a CSPTP client's full configuration.
type ClientConfig struct {
	Server         string        `ini:"server"`
	LocalAddress   string        `ini:"local_address"`
	Domain         uint8         `ini:"domain"`
	TwoStep        bool          `ini:"two_step"`
	RequestStatus  bool          `ini:"request_status"`
	RequestAlt     bool          `ini:"request_alt"`
	Interval       time.Duration `ini:"interval"`
	WaitLoop       int           `ini:"wait_loop"`
	PollInterval   time.Duration `ini:"poll_interval"`
	MonitoringPort int           `ini:"monitoring_port"`
}

// DefaultClientConfig returns the baseline a client starts from before a
// config file or CLI flags are applied.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Domain:       128,
		Interval:     time.Second,
		WaitLoop:     50,
		PollInterval: 50 * time.Millisecond,
	}
}

// ServiceConfig is a CSPTP service's full configuration.
type ServiceConfig struct {
	LocalAddress            string        `ini:"local_address"`
	Domain                  uint8         `ini:"domain"`
	TwoStep                 bool          `ini:"two_step"`
	PollInterval            time.Duration `ini:"poll_interval"`
	ClientMaxAge            time.Duration `ini:"client_max_age"`
	MonitoringPort          int           `ini:"monitoring_port"`
	ClockIdentity           uint64        `ini:"clock_identity"`
	ClockClass              uint8         `ini:"clock_class"`
	ClockAccuracy           uint8         `ini:"clock_accuracy"`
	OffsetScaledLogVariance uint16        `ini:"offset_scaled_log_variance"`
	Priority1               uint8         `ini:"priority1"`
	Priority2               uint8         `ini:"priority2"`
	ParentAddress           string        `ini:"parent_address"`
	CurrentUTCOffset        int16         `ini:"current_utc_offset"`
}

// DefaultServiceConfig returns the baseline a service starts from before a
// config file or CLI flags are applied.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Domain:       128,
		PollInterval: 3 * time.Second,
		ClientMaxAge: 10 * time.Minute,
		ClockClass:   248,
	}
}

// ReadClientConfig loads a ClientConfig from path's [client] section,
// starting from DefaultClientConfig.
func ReadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: loading %q: %w", path, err)
	}
	if err := f.Section("client").MapTo(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing [client] section of %q: %w", path, err)
	}
	return cfg, nil
}

// ReadServiceConfig loads a ServiceConfig from path's [service] section,
// starting from DefaultServiceConfig.
func ReadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	f, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("config: loading %q: %w", path, err)
	}
	if err := f.Section("service").MapTo(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing [service] section of %q: %w", path, err)
	}
	return cfg, nil
}
