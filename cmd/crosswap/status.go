package main

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/config"
	"github.com/RaghavSood/crosswap/lifi"
	"github.com/RaghavSood/crosswap/swaps"
)

var (
	statusFromChain uint64
	statusToChain   uint64
	statusWatch     bool
)

var statusCmd = &cobra.Command{
	Use:   "status <tx-hash>",
	Short: "Check the bridge status of a submitted transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Uint64Var(&statusFromChain, "from-chain", 0, "source chain id")
	statusCmd.Flags().Uint64Var(&statusToChain, "to-chain", 0, "destination chain id")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "poll until the transfer settles")
	statusCmd.MarkFlagRequired("from-chain")
	statusCmd.MarkFlagRequired("to-chain")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	txHash := common.HexToHash(args[0])
	if txHash == (common.Hash{}) {
		return fmt.Errorf("invalid transaction hash %q", args[0])
	}

	client := lifi.NewClient(cfg.LiFiOptions())
	ctx := cmd.Context()

	for {
		st, err := client.FetchStatus(ctx, statusFromChain, statusToChain, txHash)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := printJSON(st); err != nil {
				return err
			}
		} else {
			displayStatus(txHash, st)
		}

		if !statusWatch || st.Terminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(cfg.Swap.PollInterval):
		}
	}
}

func displayStatus(txHash common.Hash, st swaps.CrossChainStatus) {
	fmt.Printf("%s  %s", time.Now().Format("15:04:05"), colorStatus(string(st.Status)))
	if st.Substatus != "" {
		fmt.Printf(" (%s)", st.Substatus)
	}
	fmt.Println()
	if st.SubstatusMessage != "" {
		fmt.Printf("          %s\n", st.SubstatusMessage)
	}
	if st.ReceivingTxHash != "" {
		fmt.Printf("          receiving tx: %s\n", color.CyanString(st.ReceivingTxHash))
	}
	if st.Status == swaps.BridgeNotFound {
		fmt.Printf("          %s not indexed yet\n", shortHash(txHash.Hex()))
	}
}

