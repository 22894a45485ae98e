// Package token publishes token-movement instructions to the custody
// keeper over JetStream. The engine treats these as external collaborator
// calls: a publish must be acknowledged by the stream before any ledger
// state commits, so a dead broker halts settlement instead of desyncing it.
package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	// Subjects live inside the settlement stream alongside outbound records.
	SubjectMint     = "pool.settlement.token.mint"
	SubjectBurn     = "pool.settlement.token.burn"
	SubjectTransfer = "pool.settlement.token.transfer"

	// ShareTokenSymbol names the pool-share token in mint/burn instructions.
	ShareTokenSymbol = "POOL-LP"
)

// Client implements the engine's ShareToken and the ledger's
// TokenTransferor against JetStream.
type Client struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

func NewClient(js jetstream.JetStream, log zerolog.Logger) *Client {
	return &Client{js: js, log: log}
}

type instructionJSON struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// Mint issues pool shares to an account.
func (c *Client) Mint(ctx context.Context, to string, amount int64) error {
	return c.publish(ctx, SubjectMint, instructionJSON{
		Token:   ShareTokenSymbol,
		Account: to,
		Amount:  amount,
	})
}

// Burn destroys pool shares held by an account.
func (c *Client) Burn(ctx context.Context, from string, amount int64) error {
	return c.publish(ctx, SubjectBurn, instructionJSON{
		Token:   ShareTokenSymbol,
		Account: from,
		Amount:  amount,
	})
}

// Transfer moves underlying tokens from pool custody to a recipient.
func (c *Client) Transfer(ctx context.Context, tokenAddr, to string, amount int64) error {
	return c.publish(ctx, SubjectTransfer, instructionJSON{
		Token:   tokenAddr,
		Account: to,
		Amount:  amount,
	})
}

func (c *Client) publish(ctx context.Context, subject string, instr instructionJSON) error {
	data, err := json.Marshal(instr)
	if err != nil {
		return fmt.Errorf("marshal token instruction: %w", err)
	}

	// Synchronous publish: wait for the stream ack.
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish token instruction %s: %w", subject, err)
	}

	c.log.Debug().
		Str("subject", subject).
		Str("account", instr.Account).
		Int64("amount", instr.Amount).
		Msg("token instruction published")
	return nil
}
