package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture-capable network devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := capture.ListDevices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			line := d.Name
			if d.Description != "" {
				line += " (" + d.Description + ")"
			}
			if len(d.Addresses) > 0 {
				line += " [" + strings.Join(d.Addresses, ", ") + "]"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
