package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnibridge/pkg/events"
	"omnibridge/pkg/monitor"
	"omnibridge/pkg/types"
)

var (
	statusFrom  string
	statusTo    string
	statusToken string
	watchStatus bool
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the status of a transfer",
	Long: `Check the status of a cross-network transfer by its source transaction
hash. Without --watch the recorded status is shown; with --watch the transfer
is tracked live across both networks until it completes or fails.

Examples:
  omnibridge status 0x1234...abcd --from arbitrum --to base
  omnibridge status 0x1234...abcd --from arbitrum --to base --watch`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFrom, "from", "", "Source network (REQUIRED)")
	statusCmd.Flags().StringVar(&statusTo, "to", "", "Destination network (REQUIRED)")
	statusCmd.Flags().StringVar(&statusToken, "token", "", "Token symbol, enables destination receipt verification when watching")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Track the transfer live until it finishes")
	statusCmd.MarkFlagRequired("from")
	statusCmd.MarkFlagRequired("to")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := args[0]
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	if watchStatus {
		watchTransfer(ctx, a, txHash, jsonOutput)
		return
	}

	record, ok := a.history.Get(txHash)
	if !ok {
		printError(fmt.Errorf("no transfer found with hash %s", txHash))
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(record, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayRecord(record)
}

func watchTransfer(ctx context.Context, a *app, txHash string, jsonOutput bool) {
	if !jsonOutput {
		fmt.Printf("\nWatching transfer %s\n", color.CyanString(txHash))
		a.dispatcher.Subscribe(events.KindStatusUpdate, func(e events.Event) {
			if st, ok := e.Payload.(types.MonitorStatus); ok {
				fmt.Printf("  %s  %s (%d%%)\n", st.LastUpdated.Format("15:04:05"), getColoredStatus(string(st.Status)), st.Progress)
			}
		})
	}

	status, err := a.monitor.Monitor(ctx, monitor.Params{
		TxHash:             txHash,
		SourceNetwork:      statusFrom,
		DestinationNetwork: statusTo,
		Token:              statusToken,
		SenderAddress:      a.sender,
	})
	if err != nil {
		if jsonOutput && status != nil {
			jsonData, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(jsonData))
		}
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayMonitorStatus(status)
}

func displayRecord(record types.TransferRecord) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       TRANSFER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(record.TxHash))
	fmt.Printf("  Route:           %s -> %s\n", record.SourceNetwork, record.DestinationNetwork)
	fmt.Printf("  Amount:          %s %s\n", record.Amount, color.YellowString(record.Token))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(record.Status)))
	fmt.Printf("  Submitted:       %s\n", record.Timestamp.Format("2006-01-02 15:04:05"))
	if record.CompletedAt != nil {
		fmt.Printf("  Completed:       %s\n", record.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if !record.FeeUSD.IsZero() {
		fmt.Printf("  Fee:             $%s\n", record.FeeUSD.StringFixed(4))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func displayMonitorStatus(status *types.MonitorStatus) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       TRANSFER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(status.TxHash))
	fmt.Printf("  Route:           %s -> %s\n", status.SourceNetwork, status.DestinationNetwork)
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status.Status)))
	fmt.Printf("  Stage:           %s\n", status.Stage)
	fmt.Printf("  Progress:        %d%%\n", status.Progress)
	fmt.Printf("  Confirmations:   %d/%d\n", status.SourceConfirmations, status.RequiredConfirmations)
	if status.MessageHash != "" {
		fmt.Printf("  Message:         %s\n", color.HiBlackString(status.MessageHash))
	}
	if status.ActualCompletionTime != nil {
		fmt.Printf("  Completed:       %s\n", status.ActualCompletionTime.Format("2006-01-02 15:04:05"))
	}
	if status.Error != "" {
		fmt.Printf("  Error:           %s\n", color.RedString(status.Error))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "COMPLETED":
		return color.GreenString(status)
	case "PENDING", "SOURCE_CONFIRMED", "MESSAGE_SENT", "MESSAGE_DELIVERED":
		return color.YellowString(status)
	case "FAILED", "TIMEOUT":
		return color.RedString(status)
	default:
		return status
	}
}
