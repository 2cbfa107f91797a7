package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/accordsai/negotiation/pkg/config"
)

// newRootCmd wires the server flags. The config path comes from --config or
// NEGOTIATOR_CONFIG, in that order.
func newRootCmd(serve func(cfgFile string) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	_ = v.BindEnv("config")

	root := &cobra.Command{
		Use:   "negotiator",
		Short: "Run a sealed-value negotiation node",
		Long: `negotiator serves the operator API and the peer endpoint for one
party, notarizing through the configured ledger service.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v.GetString("config"))
		},
	}
	root.Flags().StringP("config", "c", "", "config file (default is ./negotiator.yaml)")
	_ = v.BindPFlag("config", root.Flags().Lookup("config"))
	return root
}
