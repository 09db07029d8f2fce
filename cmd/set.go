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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set",
		Short: "Initialize the chip and set a single channel",
		Long: `Initialize the chip and set a single channel.
Initialization turns all channels off first, so other channels are cleared.`,
		RunE: runSet,
	}
	setArgs struct {
		channel int
		on      int
		off     int
		pulse   int
	}
)

func init() {
	f := setCmd.Flags()
	f.IntVar(&setArgs.channel, "channel", -1, "Channel to set (0-15)")
	f.IntVar(&setArgs.on, "on", 0, "ON tick (0-4095)")
	f.IntVar(&setArgs.off, "off", 0, "OFF tick (0-4095)")
	f.IntVar(&setArgs.pulse, "pulse", 0, "Pulse width in microseconds")
	setCmd.MarkFlagRequired("channel")
	setCmd.MarkFlagsMutuallyExclusive("pulse", "on")
	setCmd.MarkFlagsMutuallyExclusive("pulse", "off")
	setCmd.MarkFlagsOneRequired("pulse", "off")
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) error {
	svc, err := newService(log, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := svc.Configure(ctx); err != nil {
		return errors.Wrap(err, "Failed to configure PWM controller")
	}
	if cmd.Flags().Changed("pulse") {
		if err := svc.SetPulseWidth(ctx, setArgs.channel, setArgs.pulse); err != nil {
			return err
		}
	} else {
		if err := svc.SetChannel(ctx, setArgs.channel, setArgs.on, setArgs.off); err != nil {
			return err
		}
	}
	ch, err := svc.GetChannel(ctx, setArgs.channel)
	if err != nil {
		return err
	}
	fmt.Printf("channel %d: on=%d off=%d (%dus)\n", ch.Channel, ch.On, ch.Off, ch.Microseconds)
	return nil
}
