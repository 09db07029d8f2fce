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
	"context"
	"fmt"

	terminate "github.com/pulcy/go-terminate"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/PWMWorker/pkg/logging"
	"github.com/binkynet/PWMWorker/pkg/server"
	"github.com/binkynet/PWMWorker/pkg/service/mqtt"
)

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the PWM worker until terminated",
		RunE:  runRun,
	}
	runArgs struct {
		host        string
		port        int
		mqttBroker  string
		mqttPrefix  string
		mqttLogging bool
	}
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&runArgs.host, "host", "", "Host address the HTTP server will listen on")
	f.IntVar(&runArgs.port, "port", 0, "Port the HTTP server will listen on")
	f.StringVar(&runArgs.mqttBroker, "mqtt-broker", "", "Address (host:port) of the MQTT broker")
	f.StringVar(&runArgs.mqttPrefix, "mqtt-prefix", "", "Prefix of all MQTT topics")
	f.BoolVar(&runArgs.mqttLogging, "mqtt-logging", false, "Forward logs to the <prefix>log MQTT topic")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags applies the flags of the run command (if given)
// to the configuration.
func applyRunFlags(flags *pflag.FlagSet) {
	if flags.Changed("host") {
		cfg.Server.Host = runArgs.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = runArgs.port
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker = runArgs.mqttBroker
	}
	if flags.Changed("mqtt-prefix") {
		cfg.MQTT.TopicPrefix = runArgs.mqttPrefix
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	svc, err := newService(log, cfg)
	if err != nil {
		return err
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		log.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)

	// A failed initialization is reported through the status API
	// and can be retried with POST /v1/initialize.
	if err := svc.Configure(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to configure PWM controller")
	}

	httpServer := server.New(server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, log, svc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if cfg.MQTT.Broker != "" {
		h := mqtt.NewHandler(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log, svc)
		if runArgs.mqttLogging {
			mw := logging.NewMQTTWriter(ctx)
			mw.SetDestination(cfg.MQTT.TopicPrefix+"log", h)
			logOutput.Add(mw)
		}
		g.Go(func() error { return h.Run(ctx) })
	}
	runErr := g.Wait()

	// Bring the chip to a safe state
	if err := svc.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Failed to close service")
	}
	if runErr != nil {
		return maskAny(runErr)
	}
	return nil
}
