// Package driverconfig loads the daemon's configuration from a YAML
// file (spec §6 "Configurable parameters") with command-line flag
// overrides, the way the teacher's deviceid/appserver code loads YAML
// and binds pflag flags.
package driverconfig

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the driver reads at startup. Field names
// match their YAML keys via the struct tags.
type Config struct {
	SerialDevice string `yaml:"serial_device"`
	BaudRate     int    `yaml:"baud_rate"`

	SatelliteTimeoutSec int `yaml:"satellite_timeout_sec"`
	AuxTimeoutSec       int `yaml:"aux_timeout_sec"`

	GPIOChip             string `yaml:"gpio_chip"`
	GPIORouteOffset      int    `yaml:"gpio_route_offset"`
	GPIOModemPowerOffset int    `yaml:"gpio_modem_power_offset"`
	GPIOAuxPowerOffset   int    `yaml:"gpio_aux_power_offset"`
	GPIOAuxSenseOffset   int    `yaml:"gpio_aux_sense_offset"`
	GPIOModemSenseOffset int    `yaml:"gpio_modem_sense_offset"`

	OutboxDir   string `yaml:"outbox_dir"`
	SentDir     string `yaml:"sent_dir"`
	KeepPolicy  string `yaml:"keep_policy"` // "none" | "on_failure" | "move_to_sent"
	MTSaveDir   string `yaml:"mt_save_dir"`
	MTFilePattern string `yaml:"mt_file_pattern"`

	// NotificationMode selects which RS422 ports arm the text-message
	// indicator relay: "NONE" | "PORT_2" | "PORT_3" | "BOTH" | "EITHER".
	NotificationMode string `yaml:"notification_mode"`
	IndicatorRelayIdx int   `yaml:"indicator_relay_idx"`

	LogRingCapacity int    `yaml:"log_ring_capacity"`
	LogLevel        string `yaml:"log_level"`
	AuxQueueDepth   int    `yaml:"aux_queue_depth"`

	CheckCSQIntervalSec      int `yaml:"check_csq_interval_sec"`
	RetryDelaySec            int `yaml:"retry_delay_sec"`
	WaitForCallsSec          int `yaml:"wait_for_calls_sec"`
	CheckGatewayIntervalSec  int `yaml:"check_gateway_interval_sec"`
	CheckCallStatusInterval  int `yaml:"check_call_status_interval_sec"`
	TimeoutEscalationSec     int `yaml:"timeout_escalation_sec"`
	RingAlertIntervalSec     int `yaml:"ring_alert_interval_sec"`

	MsgMaxRetries         int `yaml:"msg_max_retries"`
	FileReceiveMaxRetries int `yaml:"file_receive_max_retries"`
	CSQMaxRetries         int `yaml:"csq_max_retries"`
	CSQRetryDelaySec      int `yaml:"csq_retry_delay_sec"`
}

// Default returns the spec's documented defaults.
func Default() *Config {
	return &Config{
		SerialDevice:             "/dev/ttyUSB0",
		BaudRate:                 19200,
		SatelliteTimeoutSec:      65,
		AuxTimeoutSec:            5,
		GPIOChip:                 "gpiochip0",
		GPIORouteOffset:          17,
		GPIOModemPowerOffset:     27,
		GPIOAuxPowerOffset:       22,
		GPIOAuxSenseOffset:       23,
		GPIOModemSenseOffset:     24,
		OutboxDir:                "/var/lib/moduart/outbox",
		SentDir:                  "/var/lib/moduart/sent",
		KeepPolicy:               "move_to_sent",
		MTSaveDir:                "/var/lib/moduart/mt",
		MTFilePattern:            "%Y%m%d-%H%M%S",
		NotificationMode:         "EITHER",
		IndicatorRelayIdx:        1,
		LogRingCapacity:          64,
		LogLevel:                 "info",
		AuxQueueDepth:            10,
		CheckCSQIntervalSec:      150,
		RetryDelaySec:            3,
		WaitForCallsSec:          45,
		CheckGatewayIntervalSec:  300,
		CheckCallStatusInterval:  5,
		TimeoutEscalationSec:     600,
		RingAlertIntervalSec:     60,
		MsgMaxRetries:            5,
		FileReceiveMaxRetries:    5,
		CSQMaxRetries:            3,
		CSQRetryDelaySec:         25,
	}
}

// Load reads path, overlaying it onto Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("driverconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("driverconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// BindFlags registers CLI overrides on fs; call fs.Parse afterward and
// then Apply to copy the parsed values back into cfg.
func (c *Config) BindFlags(fs *pflag.FlagSet) *FlagRefs {
	r := &FlagRefs{}
	r.SerialDevice = fs.String("serial-device", c.SerialDevice, "serial device path")
	r.BaudRate = fs.Int("baud-rate", c.BaudRate, "UART baud rate")
	r.SatelliteTimeoutSec = fs.Int("satellite-timeout", c.SatelliteTimeoutSec, "AT+SBDIX response timeout, seconds")
	r.LogLevel = fs.String("log-level", c.LogLevel, "log level (debug|info|warn|error)")
	r.OutboxDir = fs.String("outbox-dir", c.OutboxDir, "outbound message directory")
	return r
}

// FlagRefs are the pflag-bound pointers BindFlags registered.
type FlagRefs struct {
	SerialDevice        *string
	BaudRate            *int
	SatelliteTimeoutSec *int
	LogLevel            *string
	OutboxDir           *string
}

// Apply copies parsed flag values back into cfg.
func (r *FlagRefs) Apply(c *Config) {
	c.SerialDevice = *r.SerialDevice
	c.BaudRate = *r.BaudRate
	c.SatelliteTimeoutSec = *r.SatelliteTimeoutSec
	c.LogLevel = *r.LogLevel
	c.OutboxDir = *r.OutboxDir
}
