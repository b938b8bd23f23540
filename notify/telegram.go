// Package notify delivers swap outcomes to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/swaps"
)

var explorers = map[uint64]string{
	1:     "https://etherscan.io",
	10:    "https://optimistic.etherscan.io",
	56:    "https://bscscan.com",
	137:   "https://polygonscan.com",
	8453:  "https://basescan.org",
	42161: "https://arbiscan.io",
	43114: "https://snowtrace.io",
}

// ExplorerTxURL returns a block explorer link for txHash, or "" for unknown chains.
func ExplorerTxURL(chainID uint64, txHash string) string {
	base, ok := explorers[chainID]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", base, txHash)
}

// Sender is the part of tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram implements swaps.Observer. Only submissions and terminal outcomes are sent.
type Telegram struct {
	api    Sender
	chatID int64
}

var _ swaps.Observer = (*Telegram)(nil)

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}
	log.Printf("Authorized on account %s", api.Self.UserName)
	return New(api, chatID), nil
}

func New(api Sender, chatID int64) *Telegram {
	return &Telegram{api: api, chatID: chatID}
}

func (t *Telegram) OnStatusChange(u swaps.ExecutionUpdate) {
	if u.Stage != swaps.StageConfirming || u.Quote == nil {
		return
	}
	text := fmt.Sprintf("*Swap submitted*\n%s\nTx: `%s`", describe(u.Quote), u.Status.TxHash.Hex())
	if link := ExplorerTxURL(u.Quote.SourceChainID, u.Status.TxHash.Hex()); link != "" {
		text += fmt.Sprintf("\n[View on Explorer](%s)", link)
	}
	t.send(text)
}

func (t *Telegram) OnTerminal(u swaps.ExecutionUpdate) {
	if u.Quote == nil {
		return
	}
	if errors.Is(u.Err, context.Canceled) {
		return
	}

	var text string
	switch {
	case u.Stage == swaps.StageSuccess:
		text = fmt.Sprintf("*Swap complete*\n%s", describe(u.Quote))
	case errors.Is(u.Err, swaps.ErrBridgeFailed):
		via := u.Quote.Tool
		if via == "" {
			via = "the bridge operator"
		}
		text = fmt.Sprintf("*Bridge transfer failed*\n%s\nThe source transaction succeeded but the bridge leg failed. Funds may need to be recovered through %s.\n%s",
			describe(u.Quote), via, u.Status.Message)
	case u.Stage == swaps.StageError:
		text = fmt.Sprintf("*Swap failed*\n%s\n%s\nYour swap settings are unchanged; you can retry.", describe(u.Quote), u.Status.Message)
	default:
		return
	}

	if u.Status.TxHash != (common.Hash{}) {
		text += fmt.Sprintf("\nTx: `%s`", u.Status.TxHash.Hex())
		if link := ExplorerTxURL(u.Quote.SourceChainID, u.Status.TxHash.Hex()); link != "" {
			text += fmt.Sprintf("\n[View on Explorer](%s)", link)
		}
	}
	t.send(text)
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, strings.TrimSpace(text))
	msg.ParseMode = "Markdown"
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		log.Printf("notify: error sending to chat %d: %v", t.chatID, err)
	}
}

func describe(q *swaps.Quote) string {
	in := fmt.Sprintf("%s %s (chain %d)", swaps.FormatUnits(q.FromAmount, q.FromToken.Decimals), symbol(q.FromToken), q.SourceChainID)
	if q.ToAmount == nil {
		return fmt.Sprintf("%s → %s (chain %d)", in, symbol(q.ToToken), q.DestChainID)
	}
	return fmt.Sprintf("%s → %s %s (chain %d)", in, q.OutputAmount(), symbol(q.ToToken), q.DestChainID)
}

func symbol(t swaps.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
