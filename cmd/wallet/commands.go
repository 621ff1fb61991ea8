package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"offline-wallet/internal/adapter/keystore"
	"offline-wallet/internal/core/domain"
	"offline-wallet/internal/core/ports"

	"github.com/spf13/cobra"
)

// withApp opens the wallet for the duration of fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, opts.cfg, opts.log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the identity keys and print the public key",
		Long: `Creates the signing keypair and voucher key if they do not exist yet.
Running init again keeps the existing keys. If keys.shared_key is set it
replaces the voucher key, so every wallet of the network can read the
vouchers of the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.keys.GenerateIdentityKeys(ctx); err != nil {
					return err
				}
				if a.cfg.Keys.SharedKey != "" {
					key, err := keystore.ParseHexKey(a.cfg.Keys.SharedKey)
					if err != nil {
						return fmt.Errorf("keys.shared_key: %w", err)
					}
					if err := a.keys.ImportSharedKey(ctx, key); err != nil {
						return err
					}
				}
				if pin != "" {
					if err := a.pin.SetPin(ctx, pin); err != nil {
						return err
					}
				}

				pem, err := a.keys.PublicKeyExport(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pem)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "also set the PIN")
	return cmd
}

func newPinCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Manage the PIN that authorizes outgoing vouchers",
	}

	var pin string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set or replace the PIN; clears any lockout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.pin.SetPin(ctx, pin); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "PIN set")
				return nil
			})
		},
	}
	set.Flags().StringVar(&pin, "pin", "", "new PIN (digits)")
	_ = set.MarkFlagRequired("pin")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the failed-attempt counter after a lockout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.pin.ResetLockout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "PIN lockout cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(set, reset)
	return cmd
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var amount, pin, details string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Issue a voucher and print its wire string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := domain.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				issued, err := a.engine.CreateVoucher(ctx, ports.CreateVoucherRequest{
					Amount:  value,
					Pin:     pin,
					Details: details,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), issued.Wire)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", `amount, e.g. "50.00"`)
	cmd.Flags().StringVar(&pin, "pin", "", "wallet PIN")
	cmd.Flags().StringVar(&details, "details", "", "note shown to the receiver")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func newReceiveCmd(opts *rootOptions) *cobra.Command {
	var from, wire string
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Verify and redeem a voucher",
		Long: `Redeems a scanned voucher. The wire string comes from --wire, or from
standard input when --wire is "-".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wire == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read wire from stdin: %w", err)
				}
				wire = string(raw)
			}
			wire = strings.TrimSpace(wire)
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				r, err := a.engine.RedeemVoucher(ctx, ports.RedeemRequest{Wire: wire, SenderUID: from})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "UID of the sender")
	cmd.Flags().StringVar(&wire, "wire", "", `voucher wire string, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("wire")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "cancel <voucher-id>",
		Short: "Cancel an issued voucher that has not been synced yet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.engine.CancelVoucher(ctx, args[0], pin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Voucher %s cancelled\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "wallet PIN")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}

func newBalanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				balance, err := a.engine.Balance(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), balance.String())
				return nil
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List ledger entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entries, err := a.engine.Entries(ctx)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
}

func printEntries(w io.Writer, entries []domain.LedgerEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tAMOUNT\tCOUNTERPARTY\tSTATUS\tSYNCED\tVOUCHER")
	for _, e := range entries {
		amount := e.SignedAmount().String()
		if e.SignedAmount() > 0 {
			amount = "+" + amount
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			e.ID,
			e.Timestamp.Local().Format(time.DateTime),
			e.Type,
			amount,
			orDash(e.Counterparty),
			e.Status,
			e.Synced,
			orDash(e.VoucherID),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local ledger with the remote store once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				reconciler, _, err := a.connectRemote(ctx)
				if err != nil {
					return err
				}
				report, err := reconciler.SyncNow(ctx)
				if report != nil {
					printReport(cmd.OutOrStdout(), report)
				}
				return err
			})
		},
	}
}

func printReport(w io.Writer, r *domain.SyncReport) {
	fmt.Fprintf(w, "pushed %d, pulled %d, updated %d in %s\n",
		r.Pushed, r.Pulled, r.Updated, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.Key, f.Err)
	}
}

func newPubkeyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the public key as PEM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				pem, err := a.keys.PublicKeyExport(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pem)
				return nil
			})
		},
	}
}

func newContactsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the wallets whose vouchers this device accepts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List known contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				all, err := a.contacts.Contacts(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "UID\tNAME")
				for _, c := range all {
					fmt.Fprintf(tw, "%s\t%s\n", c.UID, orDash(c.Name))
				}
				return tw.Flush()
			})
		},
	}

	var uid, name, keyFile string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a contact from a PEM public key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("read key file: %w", err)
			}
			pub, err := keystore.ParsePublicKeyPEM(string(raw))
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if strings.TrimSpace(uid) == a.cfg.Wallet.UID {
					return errors.New("this wallet is always a contact of itself")
				}
				if err := a.contacts.Add(ctx, domain.Contact{UID: uid, Name: name, PublicKey: pub}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Contact %s added\n", uid)
				return nil
			})
		},
	}
	add.Flags().StringVar(&uid, "uid", "", "contact wallet UID")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&keyFile, "key-file", "", "PEM file with the contact's public key")
	_ = add.MarkFlagRequired("uid")
	_ = add.MarkFlagRequired("key-file")

	cmd.AddCommand(list, add)
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			tokens := newTokenService(cfg)
			token, expiresAt, err := tokens.Generate(cfg.Wallet.UID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			opts.log.Info().Time("expires_at", expiresAt).Msg("Token issued")
			return nil
		},
	}
}
