package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/accordsai/negotiation/services/negotiator/api"
)

// cli carries the settings shared by every subcommand.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "negctl",
		Short: "Operate a sealed-value negotiation node",
		Long: `negctl starts negotiations and drives them through commit, reveal
and reconcile by calling a negotiator node's operator API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is ./negctl.yaml)")
	flags.String("node", "http://localhost:8090", "base URL of the negotiator node")
	flags.String("token", "", "operator bearer token")
	flags.String("idempotency-key", "", "Idempotency-Key sent with POST requests")
	_ = c.v.BindPFlag("config", flags.Lookup("config"))
	_ = c.v.BindPFlag("node", flags.Lookup("node"))
	_ = c.v.BindPFlag("token", flags.Lookup("token"))
	_ = c.v.BindPFlag("idempotency_key", flags.Lookup("idempotency-key"))

	root.AddCommand(
		c.startCmd(),
		c.valueCmd("commit", "Commit this node's value to a proposal", (*api.Client).Commit),
		c.valueCmd("modify", "Re-seal this node's single committed value", (*api.Client).Modify),
		c.revealCmd(),
		c.reconcileCmd(),
		c.statusCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	if cfgFile := c.v.GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName("negctl")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
	}

	// NEGCTL_NODE, NEGCTL_TOKEN, NEGCTL_IDEMPOTENCY_KEY
	c.v.SetEnvPrefix("NEGCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || c.v.GetString("config") != "" {
			return err
		}
	}
	return nil
}

func (c *cli) client() *api.Client {
	return api.NewClient(strings.TrimRight(c.v.GetString("node"), "/"), c.v.GetString("token")).
		WithIdempotencyKey(c.v.GetString("idempotency_key"))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
