//    Copyright 2017-2025 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package cmd

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/binkynet/PWMWorker/pkg/config"
	"github.com/binkynet/PWMWorker/pkg/logging"
)

const (
	projectName = "BinkyNet PWM Worker"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack

	rootCmd = &cobra.Command{
		Use:               "pwmworker",
		Short:             "Control a PCA9685 16-channel PWM controller over I2C",
		SilenceUsage:      true,
		PersistentPreRunE: prepare,
	}
	rootArgs struct {
		configPath          string
		level               string
		logFile             string
		bridgeType          string
		i2cBus              string
		address             config.Address
		pwmFrequency        int
		oscillatorFrequency int
		oePin               int
	}

	// Set by prepare
	cfg       config.Config
	log       zerolog.Logger
	logOutput logging.MultiWriter
)

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&rootArgs.configPath, "config", "c", "", "Path of YAML configuration file")
	f.StringVarP(&rootArgs.level, "level", "l", "info", "Set log level")
	f.StringVar(&rootArgs.logFile, "log-file", "", "File to write logs to (in addition to stderr)")
	f.StringVarP(&rootArgs.bridgeType, "bridge", "b", config.BridgeTypeRaspberryPi, "Type of bridge to use (rpi|cdev|virtual|auto)")
	f.StringVar(&rootArgs.i2cBus, "i2c-bus", "", "I2C bus location or name")
	rootArgs.address = config.DefaultAddress
	f.Var(&rootArgs.address, "address", "I2C address of the PCA9685 (decimal or 0x..)")
	f.IntVar(&rootArgs.pwmFrequency, "pwm-frequency", 0, "PWM frequency in Hz")
	f.IntVar(&rootArgs.oscillatorFrequency, "oscillator-frequency", 0, "Oscillator frequency in Hz")
	f.IntVar(&rootArgs.oePin, "oe-pin", -1, "Pin connected to the active-low OE input (-1 for none)")
}

// Execute the root command.
func Execute(version, build string) error {
	projectVersion = version
	projectBuild = build
	return rootCmd.Execute()
}

// prepare loads the configuration, applies flag overrides and
// creates the logger.
func prepare(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(rootArgs.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("bridge") {
		cfg.Bridge.Type = rootArgs.bridgeType
	}
	if flags.Changed("i2c-bus") {
		cfg.Bridge.I2CBus = rootArgs.i2cBus
	}
	if flags.Changed("address") {
		cfg.Device.Address = rootArgs.address
	}
	if flags.Changed("pwm-frequency") {
		cfg.Device.PWMFrequency = rootArgs.pwmFrequency
	}
	if flags.Changed("oscillator-frequency") {
		cfg.Device.OscillatorFrequency = rootArgs.oscillatorFrequency
	}
	if flags.Changed("oe-pin") {
		cfg.Device.OutputEnablePin = rootArgs.oePin
	}
	if flags.Changed("log-file") {
		cfg.LogFile = rootArgs.logFile
	}
	applyRunFlags(flags)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	// Prepare logger
	level, err := zerolog.ParseLevel(rootArgs.level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level '%s'", rootArgs.level)
	}
	outputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file '%s'", cfg.LogFile)
		}
		outputs = append(outputs, f)
	}
	logOutput = logging.NewMultiWriter(outputs...)
	log = zerolog.New(logOutput).Level(level).With().Timestamp().Logger()
	return nil
}
