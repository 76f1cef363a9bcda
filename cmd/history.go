package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnibridge/pkg/history"
	"omnibridge/pkg/types"
)

var (
	historyNetwork string
	historyStatus  string
	historyLimit   int

	trendsFrom string
	trendsTo   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded transfers and analytics",
	Long: `Show your recorded transfers, most recent first, with optional filters.

Examples:
  omnibridge history
  omnibridge history --network base
  omnibridge history --status completed --limit 10
  omnibridge history stats
  omnibridge history trends USDC --from arbitrum --to base
  omnibridge history best-time USDC --from arbitrum --to base`,
	Run: runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate transfer statistics",
	Run:   runStats,
}

var trendsCmd = &cobra.Command{
	Use:   "trends <token>",
	Short: "Show the fee trend for a route",
	Args:  cobra.ExactArgs(1),
	Run:   runTrends,
}

var bestTimeCmd = &cobra.Command{
	Use:   "best-time <token>",
	Short: "Show the cheapest hour of day to bridge a route",
	Args:  cobra.ExactArgs(1),
	Run:   runBestTime,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(statsCmd)
	historyCmd.AddCommand(trendsCmd)
	historyCmd.AddCommand(bestTimeCmd)

	historyCmd.Flags().StringVar(&historyNetwork, "network", "", "Filter by source or destination network")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (pending, completed, failed, ...)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Show at most this many records")

	for _, c := range []*cobra.Command{trendsCmd, bestTimeCmd} {
		c.Flags().StringVar(&trendsFrom, "from", "", "Source network (REQUIRED)")
		c.Flags().StringVar(&trendsTo, "to", "", "Destination network (REQUIRED)")
		c.MarkFlagRequired("from")
		c.MarkFlagRequired("to")
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	records := a.history.List(history.Filter{
		Network: historyNetwork,
		Status:  types.Status(historyStatus),
	})
	if historyLimit > 0 && len(records) > historyLimit {
		records = records[:historyLimit]
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayHistory(records)
}

func displayHistory(records []types.TransferRecord) {
	if len(records) == 0 {
		fmt.Println("\nNo transfers recorded.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                               TRANSFER HISTORY")
	fmt.Println(strings.Repeat("=", 90))
	fmt.Println()

	for _, r := range records {
		hash := r.TxHash
		if len(hash) > 18 {
			hash = hash[:15] + "..."
		}
		fmt.Printf("  %s  %-20s  %-10s %-6s  %-12s -> %-12s  %s\n",
			r.Timestamp.Format("2006-01-02 15:04"),
			color.HiBlackString(hash),
			r.Amount,
			color.YellowString(r.Token),
			r.SourceNetwork,
			r.DestinationNetwork,
			getColoredStatus(string(r.Status)))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d transfers\n\n", len(records))
}

func runStats(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	stats := history.NewAnalytics(a.history).Statistics()

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  TRANSFER STATISTICS")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Total Transfers:    %d\n", stats.TotalTransfers)
	fmt.Printf("  Completed:          %s\n", color.GreenString("%d", stats.Completed))
	fmt.Printf("  Failed:             %s\n", color.RedString("%d", stats.Failed))
	fmt.Printf("  Pending:            %d\n", stats.Pending)
	fmt.Printf("  Success Rate:       %.1f%%\n", stats.SuccessRate*100)
	if stats.AvgCompletionSeconds > 0 {
		fmt.Printf("  Avg Completion:     %.0f seconds\n", stats.AvgCompletionSeconds)
	}
	fmt.Printf("  Total Fees Paid:    $%s\n", stats.TotalVolumeUSD.StringFixed(2))

	if len(stats.ByNetwork) > 0 {
		color.Cyan("\n  BY NETWORK")
		fmt.Println("  " + strings.Repeat("-", 56))
		networks := make([]string, 0, len(stats.ByNetwork))
		for n := range stats.ByNetwork {
			networks = append(networks, n)
		}
		sort.Strings(networks)
		for _, n := range networks {
			g := stats.ByNetwork[n]
			fmt.Printf("  %-14s %3d transfers  %.1f%% success\n", n, g.Total, g.SuccessRate*100)
		}
	}

	if len(stats.ByToken) > 0 {
		color.Cyan("\n  BY TOKEN")
		fmt.Println("  " + strings.Repeat("-", 56))
		tokens := make([]string, 0, len(stats.ByToken))
		for t := range stats.ByToken {
			tokens = append(tokens, t)
		}
		sort.Strings(tokens)
		for _, t := range tokens {
			g := stats.ByToken[t]
			fmt.Printf("  %-14s %3d transfers  %.1f%% success\n", strings.ToUpper(t), g.Total, g.SuccessRate*100)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runTrends(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	trend, err := history.NewAnalytics(a.history).FeeTrendAnalysis(ctx, trendsFrom, trendsTo, args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(trend, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	direction := string(trend.Direction)
	switch trend.Direction {
	case history.TrendIncreasing:
		direction = color.RedString("%s (+%.1f%%)", direction, trend.PercentChange)
	case history.TrendDecreasing:
		direction = color.GreenString("%s (%.1f%%)", direction, trend.PercentChange)
	default:
		direction = color.YellowString(direction)
	}

	fmt.Printf("\n  Route:        %s -> %s\n", trendsFrom, trendsTo)
	fmt.Printf("  Token:        %s\n", color.YellowString(args[0]))
	fmt.Printf("  Trend:        %s\n", direction)
	fmt.Printf("  Latest Fee:   $%s\n", trend.LatestFeeUSD.StringFixed(4))
	fmt.Printf("  Samples:      %d\n\n", trend.SampleCount)
}

func runBestTime(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	best, err := history.NewAnalytics(a.history).BestTimeToBridge(ctx, trendsFrom, trendsTo, args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(best, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Printf("\n  Route:        %s -> %s\n", trendsFrom, trendsTo)
	fmt.Printf("  Token:        %s\n", color.YellowString(args[0]))
	fmt.Printf("  Best Hour:    %s\n", color.CyanString("%02d:00 UTC", best.HourUTC))
	fmt.Printf("  Avg Fee:      $%s\n", best.AvgFeeUSD.StringFixed(4))
	fmt.Printf("  Samples:      %d\n\n", best.SampleCount)
}
