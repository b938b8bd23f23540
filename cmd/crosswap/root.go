package main

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RaghavSood/crosswap/apilog"
	"github.com/RaghavSood/crosswap/balances"
	"github.com/RaghavSood/crosswap/config"
	"github.com/RaghavSood/crosswap/db"
	"github.com/RaghavSood/crosswap/evm"
	"github.com/RaghavSood/crosswap/lifi"
	"github.com/RaghavSood/crosswap/notify"
	"github.com/RaghavSood/crosswap/swaps"
	"github.com/RaghavSood/crosswap/wallet"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "crosswap",
	Short: "Quote, approve and execute same-chain and cross-chain EVM swaps",
	Long: `crosswap routes token swaps through the LI.FI aggregator and signs them with
a single HD wallet account. It can run as an HTTP service or one command at a time.

Tokens are written CHAINID:ADDRESS[:SYMBOL[:DECIMALS]], or CHAINID:native[:SYMBOL].

Examples:
  crosswap quote 100 1:0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48:USDC:6 10:0x94b008aA00579c1307B0EF2c499aD98a8ce58e58:USDT:6
  crosswap swap 0.1 8453:native:ETH 8453:0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913:USDC:6 --yes
  crosswap status 0xabc... --from-chain 1 --to-chain 10 --watch
  crosswap serve`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output in JSON format")
}

// app holds every long-lived dependency built from the configuration.
type app struct {
	cfg     *config.Config
	account *wallet.Account
	chain   *evm.Client
	quotes  *lifi.Client
	store   *db.Store
	book    *balances.Book
	mgr     *swaps.Manager

	observers []swaps.Observer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	account, err := wallet.NewAccount(cfg.Mnemonic, cfg.AccountIndex)
	if err != nil {
		return nil, fmt.Errorf("deriving account: %w", err)
	}

	chain, err := evm.Dial(ctx, account, cfg.RPCEndpoints)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, account: account, chain: chain}

	opts := cfg.LiFiOptions()
	var execOpts []swaps.ExecutorOption
	if cfg.DatabasePath != "" {
		a.store, err = db.Open(cfg.DatabasePath)
		if err != nil {
			chain.Close()
			return nil, err
		}
		opts.Transport = apilog.NewTransport("lifi", a.store, http.DefaultTransport)
		execOpts = append(execOpts, swaps.WithJournal(a.store))
	}
	a.quotes = lifi.NewClient(opts)

	a.book = balances.NewBook(chain)
	execOpts = append(execOpts, swaps.WithBalances(a.book))

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.observers = append(a.observers, tg)
		execOpts = append(execOpts, swaps.WithObserver(tg))
	}

	a.mgr = swaps.NewManager(a.quotes, chain, chain, cfg.SwapConfig(), execOpts...)

	log.WithField("address", account.Address().Hex()).Debug("account ready")
	return a, nil
}

func (a *app) Close() {
	if a.mgr != nil {
		a.mgr.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.chain.Close()
}
