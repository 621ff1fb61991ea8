// Command wallet is the offline peer-to-peer wallet: it issues and redeems
// signed vouchers against a local ledger and mirrors that ledger to a
// remote store when the device is online.
package main

import (
	"fmt"
	"os"

	"offline-wallet/config"
	"offline-wallet/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra has already printed the error.
		os.Exit(1)
	}
}

// rootOptions is the state shared by all subcommands once the persistent
// pre-run has loaded the configuration.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	log     zerolog.Logger
}

// newRootCmd builds a fresh command tree with its own viper instance, so
// tests can run commands side by side.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Offline peer-to-peer wallet",
		Long: `wallet moves value between devices without a network connection.
A sender issues a signed, encrypted voucher (shown as a QR code or pasted
as text); the receiver verifies and redeems it. Both sides record the
movement in a local ledger that is mirrored to a remote store whenever
the device is online.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(opts.v, opts.cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			opts.cfg = cfg
			opts.log = logger.New(cfg.Log.Level, cfg.Log.Pretty).With().Str("wallet_uid", cfg.Wallet.UID).Logger()
			return nil
		},
	}
	cmd.Version = version

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default ./config.yaml or ./config/config.yaml)")
	pf.String("uid", "", "wallet UID")
	pf.String("data-dir", "", "directory holding wallet.db and contacts.yaml")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	_ = opts.v.BindPFlag("wallet.uid", pf.Lookup("uid"))
	_ = opts.v.BindPFlag("wallet.data_dir", pf.Lookup("data-dir"))
	_ = opts.v.BindPFlag("log.level", pf.Lookup("log-level"))

	cmd.AddCommand(
		newInitCmd(opts),
		newPinCmd(opts),
		newSendCmd(opts),
		newReceiveCmd(opts),
		newCancelCmd(opts),
		newBalanceCmd(opts),
		newHistoryCmd(opts),
		newSyncCmd(opts),
		newPubkeyCmd(opts),
		newContactsCmd(opts),
		newTokenCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}
