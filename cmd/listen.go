package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnibridge/config"
	"omnibridge/pkg/stream"
)

var (
	listenTx      string
	listenFrom    string
	listenTo      string
	listenAddress string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Follow live transfer updates from the update channel",
	Long: `Connect to the configured live-update channel (channel.url) and print
transfer updates as they arrive. Filters narrow which updates the server
pushes; without filters every update is shown. The connection survives
drops: subscriptions are replayed automatically after each reconnect.

Examples:
  omnibridge listen
  omnibridge listen --tx 0x1234...abcd
  omnibridge listen --from arbitrum --to base`,
	Args: cobra.NoArgs,
	Run:  runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().StringVar(&listenTx, "tx", "", "Only updates for this transaction hash")
	listenCmd.Flags().StringVar(&listenFrom, "from", "", "Only updates with this source network")
	listenCmd.Flags().StringVar(&listenTo, "to", "", "Only updates with this destination network")
	listenCmd.Flags().StringVar(&listenAddress, "address", "", "Only updates for this sender address")
}

func runListen(cmd *cobra.Command, _ []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if cfg.Channel.URL == "" {
		printError(fmt.Errorf("channel.url is not configured"))
		os.Exit(1)
	}
	log := newLogger(verbose)

	failed := make(chan struct{})
	onMessage := func(msg stream.Message) {
		if jsonOutput {
			jsonData, _ := json.Marshal(msg)
			fmt.Println(string(jsonData))
			return
		}
		fmt.Printf("  %s  %-22s", msg.Timestamp.Format("15:04:05"), getColoredStatus(msg.Type))
		if msg.Payload != nil {
			payload, _ := json.Marshal(msg.Payload)
			fmt.Printf("  %s", color.HiBlackString(string(payload)))
		}
		fmt.Println()
	}
	onState := func(s stream.State) {
		if s == stream.StateError {
			close(failed)
			return
		}
		if !jsonOutput {
			fmt.Printf("  %s  channel %s\n", time.Now().Format("15:04:05"), string(s))
		}
	}

	ch := stream.NewChannel(stream.DefaultOptions(cfg.Channel.URL), onMessage, onState, log)
	if err := ch.Subscribe(stream.Subscription{
		TxHash:             listenTx,
		SourceNetwork:      listenFrom,
		DestinationNetwork: listenTo,
		Address:            listenAddress,
	}); err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		fmt.Printf("\nListening on %s (ctrl-c to stop)\n", color.CyanString(cfg.Channel.URL))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ch.Connect(ctx)

	select {
	case <-ctx.Done():
		ch.Close()
	case <-failed:
		ch.Close()
		printError(fmt.Errorf("lost connection to %s and could not reconnect", cfg.Channel.URL))
		os.Exit(1)
	}
}
