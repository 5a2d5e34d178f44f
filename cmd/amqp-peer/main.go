package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	version = "1.0.0"
	banner  = `
   ___   __  _______  ___    ___
  / _ | /  |/  / __ \/ _ \  / _ \___ ___ ____
 / __ |/ /|_/ / /_/ / ___/ / ___/ -_) -_) __/
/_/ |_/_/  /_/\___\_\_/   /_/   \__/\__/_/

AMQP 1.0 Test Peer
Version: %s
`
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "amqp-peer",
	Short: "AMQP 1.0 test peer",
	Long: `amqp-peer accepts AMQP 1.0 connections over TCP and WebSocket and answers
them the way a broker would, recording every frame when asked, so client
libraries can be exercised against a known peer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file (YAML); AMQP_PEER_* env vars override it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
