package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "omnibridge",
	Short: "A CLI for cross-network token transfers over omnichain messaging",
	Long: `omnibridge is a command-line tool for moving tokens between EVM networks
through an omnichain messaging endpoint. It quotes fees, submits and approves
transactions, tracks a transfer end to end across both networks, and keeps a
local history with fee analytics.

Examples:
  omnibridge quote 100 USDC --from arbitrum --to base
  omnibridge bridge 100 USDC --from arbitrum --to base --recipient 0x123...
  omnibridge status 0xabc... --from arbitrum --to base --watch
  omnibridge history --network base
  omnibridge history trends USDC --from arbitrum --to base
  omnibridge listen --from arbitrum --to base`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
