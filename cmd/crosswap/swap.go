package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/swaps"
)

var skipConfirm bool

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <from-token> <to-token>",
	Short: "Quote, approve and execute a swap",
	Args:  cobra.ExactArgs(3),
	RunE:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	addRequestFlags(swapCmd)
	swapCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip the confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
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
	displayQuote(st)

	if !skipConfirm && !confirm("Execute this swap?") {
		fmt.Println("Aborted.")
		return nil
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)

	ok, err := a.mgr.HasAllowance(ctx)
	if err != nil {
		return fmt.Errorf("reading allowance: %w", err)
	}
	if !ok {
		s.Suffix = fmt.Sprintf(" Approving %s...", tokenLabel(st.Quote.FromToken))
		s.Start()
		approved := a.mgr.Approve(ctx, nil)
		s.Stop()
		if !approved {
			return fmt.Errorf("approval failed: %s", a.mgr.Snapshot().Approval.Message)
		}
		fmt.Printf("%s Approval confirmed\n", color.GreenString("✓"))
	}

	s.Suffix = " Preparing swap..."
	s.Start()
	err = a.mgr.ExecuteSwap(ctx, func(u swaps.ExecutionUpdate) {
		s.Suffix = " " + describeStage(u)
	})
	s.Stop()

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(color.YellowString("Interrupted. A submitted transfer keeps settling; check it with `crosswap status`."))
			return nil
		}
		return err
	}

	fmt.Printf("%s Swap complete: %s %s received\n",
		color.GreenString("✓"), st.OutputAmount, tokenLabel(st.Quote.ToToken))
	return nil
}

func describeStage(u swaps.ExecutionUpdate) string {
	switch u.Stage {
	case swaps.StageChainSwitching:
		if u.Quote != nil {
			return fmt.Sprintf("Switching to chain %d...", u.Quote.SourceChainID)
		}
		return "Switching chain..."
	case swaps.StageGasEstimating:
		return "Estimating gas..."
	case swaps.StageSubmitting:
		return "Waiting for signature..."
	case swaps.StageConfirming:
		return "Confirming " + shortHash(u.Status.TxHash.Hex()) + "..."
	case swaps.StageCrossChainPolling:
		if u.CrossChain != nil {
			return "Bridging: " + colorStatus(string(u.CrossChain.Status)) + "..."
		}
		return "Bridging..."
	default:
		return string(u.Stage)
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-6:]
}

func colorStatus(status string) string {
	switch status {
	case string(swaps.BridgeDone):
		return color.GreenString(status)
	case string(swaps.BridgeFailed), string(swaps.BridgeInvalid):
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
