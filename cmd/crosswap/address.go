package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/config"
	"github.com/RaghavSood/crosswap/wallet"
)

var newMnemonic bool

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the signing account address",
	RunE:  runAddress,
}

func init() {
	rootCmd.AddCommand(addressCmd)
	addressCmd.Flags().BoolVar(&newMnemonic, "new", false, "generate a fresh mnemonic instead of reading the config")
}

func runAddress(cmd *cobra.Command, args []string) error {
	var (
		mnemonic string
		index    uint32
	)
	if newMnemonic {
		m, err := wallet.NewMnemonic()
		if err != nil {
			return err
		}
		mnemonic = m
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		mnemonic, index = cfg.Mnemonic, cfg.AccountIndex
	}

	account, err := wallet.NewAccount(mnemonic, index)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := map[string]interface{}{"address": account.Address().Hex(), "index": account.Index()}
		if newMnemonic {
			out["mnemonic"] = mnemonic
		}
		return printJSON(out)
	}

	if newMnemonic {
		fmt.Println(color.YellowString("Mnemonic (store it safely):"))
		fmt.Println("  " + mnemonic)
	}
	fmt.Printf("Address (index %d): %s\n", account.Index(), color.CyanString(account.Address().Hex()))
	return nil
}
