package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/swaps"
)

var (
	receiverAddr string
	slippage     float64
	order        string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <from-token> <to-token>",
	Short: "Fetch a quote without executing it",
	Args:  cobra.ExactArgs(3),
	RunE:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	addRequestFlags(quoteCmd)
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&receiverAddr, "receiver", "", "address receiving the output (defaults to the sender)")
	cmd.Flags().Float64Var(&slippage, "slippage", 0, "slippage tolerance as a fraction, e.g. 0.005")
	cmd.Flags().StringVar(&order, "order", "RECOMMENDED", "route preference: RECOMMENDED, SAFEST, FASTEST or CHEAPEST")
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := fetchQuote(a.mgr, args)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(st)
	}
	displayQuote(st)
	return nil
}

// fetchQuote configures mgr from the command line and waits for the quote.
func fetchQuote(mgr *swaps.Manager, args []string) (swaps.State, error) {
	from, err := swaps.ParseToken(args[1])
	if err != nil {
		return swaps.State{}, err
	}
	to, err := swaps.ParseToken(args[2])
	if err != nil {
		return swaps.State{}, err
	}
	pref, err := swaps.ParseRoutePreference(order)
	if err != nil {
		return swaps.State{}, err
	}

	store := mgr.Store()
	if receiverAddr != "" {
		if !common.IsHexAddress(receiverAddr) {
			return swaps.State{}, fmt.Errorf("invalid receiver address %q", receiverAddr)
		}
		store.SetReceiver(common.HexToAddress(receiverAddr))
	}
	if slippage != 0 {
		if err := store.SetSlippage(slippage); err != nil {
			return swaps.State{}, err
		}
	}
	store.SetOrder(pref)
	store.SetOutput(to)
	if err := store.SetInput(from, args[0]); err != nil {
		return swaps.State{}, err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	mgr.RetrieveExpectedOut(true)
	mgr.Wait()
	if !jsonOutput {
		s.Stop()
	}

	st := mgr.Snapshot()
	if st.Quote == nil {
		msg := st.CurrentError
		if msg == "" {
			msg = swaps.ErrNoRoute.Error()
		}
		return st, fmt.Errorf("%s", msg)
	}
	return st, nil
}

func displayQuote(st swaps.State) {
	q := st.Quote
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                           QUOTE")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Route:           %s\n", color.CyanString(q.Tool))
	fmt.Printf("  You send:        %s %s on chain %d\n", st.Request.InputAmount.Display, tokenLabel(q.FromToken), q.SourceChainID)
	fmt.Printf("  You receive:     %s %s on chain %d\n", color.GreenString(st.OutputAmount), tokenLabel(q.ToToken), q.DestChainID)
	fmt.Printf("  Minimum:         %s\n", swaps.FormatUnits(q.ToAmountMin, q.ToToken.Decimals))
	if st.FromAmountUSD != "" || st.ToAmountUSD != "" {
		fmt.Printf("  USD value:       $%s → $%s\n", st.FromAmountUSD, st.ToAmountUSD)
	}
	fmt.Printf("  Slippage:        %g%%\n", st.Request.Slippage*100)
	if st.EstimatedTime > 0 {
		fmt.Printf("  Estimated time:  %s\n", st.EstimatedTime)
	}
	if !q.FromToken.IsNative() {
		fmt.Printf("  Spender:         %s\n", color.HiBlackString(q.ApprovalSpender.Hex()))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func tokenLabel(t swaps.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
