// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML configuration file.
	configFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkey",
	Short: "go-passkey - WebAuthn passkey Relying Party server",
	Long: `go-passkey runs a WebAuthn Relying Party server that registers
and authenticates passkey credentials over HTTP.

Configuration is read from a YAML file and can be overridden with
PASSKEY_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is built-in development defaults)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
