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
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var (
	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "List the addresses of all devices responding on the I2C bus",
		RunE:  runDetect,
	}
)

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	br, err := newBridge(log, cfg)
	if err != nil {
		return err
	}
	defer br.Close()

	bus, err := br.I2CBus()
	if err != nil {
		return maskAny(err)
	}
	addrs := bus.DetectSlaveAddresses()
	log.Info().Int("count", len(addrs)).Msg("Detected devices")
	fmt.Println(strings.Join(lo.Map(addrs, func(addr byte, _ int) string {
		return fmt.Sprintf("0x%02x", addr)
	}), " "))
	return nil
}
