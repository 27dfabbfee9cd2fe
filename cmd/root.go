// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dissect",
	Short: "dissect - live network packet dissection and reassembly engine",
	Long: `dissect captures network traffic and decodes it layer by layer:
Ethernet II, IPv4/IPv6/ARP, TCP/UDP/ICMP/ICMPv6, with IPv4 and IPv6
fragment reassembly and pluggable application-layer parsers (FTP,
Modbus-TCP).

Decoded layers are printed to stdout and can optionally be published to
Kafka and exported as Prometheus metrics.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
