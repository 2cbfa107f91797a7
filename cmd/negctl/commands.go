package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/accordsai/negotiation/services/negotiator/api"
)

func (c *cli) startCmd() *cobra.Command {
	var req api.StartRequest
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Propose a negotiation to a counterparty",
		Long: `Start seals this node's value, proposes a negotiation with the
given counterparty and prints the negotiation id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.client().Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&req.NegotiationID, "id", "", "negotiation id (generated when empty)")
	cmd.Flags().StringVar(&req.Role, "role", "", "this node's role: Buyer or Seller")
	cmd.Flags().StringVar(&req.Value, "value", "", "this node's private value")
	cmd.Flags().StringVar(&req.Counterparty, "counterparty", "", "well-known name or agent id of the counterparty")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("value")
	_ = cmd.MarkFlagRequired("counterparty")
	return cmd
}

type valueCall func(c *api.Client, ctx context.Context, id, value string) (*api.StatusResponse, error)

func (c *cli) valueCmd(use, short string, call valueCall) *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   use + " <negotiation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := call(c.client(), cmd.Context(), args[0], value)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "this node's private value")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func (c *cli) revealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal <negotiation-id>",
		Short: "Exchange committed values with the counterparty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.client().Reveal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <negotiation-id>",
		Short: "Record the trade or mismatch on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.client().Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <negotiation-id>",
		Short: "Show the phase and ledger state of a negotiation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}
