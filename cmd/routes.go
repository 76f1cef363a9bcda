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
)

var (
	filterNetwork string
	filterToken   string
)

var routesCmd = &cobra.Command{
	Use:     "list-routes",
	Aliases: []string{"routes", "ls"},
	Short:   "List configured networks, tokens and supported routes",
	Long: `List the networks and tokens from your configuration, and which routes
each token can travel.

You can filter by network or token symbol.

Examples:
  omnibridge list-routes
  omnibridge list-routes --network base
  omnibridge list-routes --token USDC`,
	Run: runListRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().StringVar(&filterNetwork, "network", "", "Filter by network")
	routesCmd.Flags().StringVar(&filterToken, "token", "", "Filter by token symbol")
}

type routeInfo struct {
	Token       string `json:"token"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func runListRoutes(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(context.Background(), verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	networks := make([]string, 0, len(a.cfg.Networks))
	for name := range a.cfg.Networks {
		networks = append(networks, name)
	}
	sort.Strings(networks)

	tokens := make([]string, 0, len(a.cfg.Tokens))
	for symbol := range a.cfg.Tokens {
		tokens = append(tokens, symbol)
	}
	sort.Strings(tokens)

	var routes []routeInfo
	for _, token := range tokens {
		if filterToken != "" && !strings.EqualFold(token, filterToken) {
			continue
		}
		for _, src := range networks {
			for _, dst := range networks {
				if src == dst {
					continue
				}
				if filterNetwork != "" &&
					!strings.EqualFold(src, filterNetwork) &&
					!strings.EqualFold(dst, filterNetwork) {
					continue
				}
				if a.registry.SupportsRoute(src, dst, token) {
					routes = append(routes, routeInfo{Token: token, Source: src, Destination: dst})
				}
			}
		}
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(routes, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayRoutes(routes, networks)
}

func displayRoutes(routes []routeInfo, networks []string) {
	if len(routes) == 0 {
		fmt.Println("\nNo routes found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       SUPPORTED ROUTES")
	fmt.Println(strings.Repeat("=", 70))

	// Group routes by token
	routesByToken := make(map[string][]routeInfo)
	for _, r := range routes {
		routesByToken[r.Token] = append(routesByToken[r.Token], r)
	}

	tokens := make([]string, 0, len(routesByToken))
	for token := range routesByToken {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		color.Cyan("\n%s", strings.ToUpper(token))
		fmt.Println(strings.Repeat("-", 70))
		for _, r := range routesByToken[token] {
			fmt.Printf("  %-14s -> %-14s\n", r.Source, r.Destination)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("\nTotal: %d routes across %d networks\n\n", len(routes), len(networks))
}
