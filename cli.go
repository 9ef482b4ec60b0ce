package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

func newPremiumCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "premium",
		Short: "Manage premium users without starting the bot",
	}

	var days int
	add := &cobra.Command{
		Use:   "add <number>",
		Short: "Grant premium to a number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPremium(cmd.Context(), func(ctx context.Context, s premium.Store) error {
				return premiumAdd(ctx, s, cmd.OutOrStdout(), args[0], days, time.Now())
			})
		},
	}
	add.Flags().IntVarP(&days, "days", "d", 0, "days until expiry (0 never expires)")

	del := &cobra.Command{
		Use:     "del <number>",
		Aliases: []string{"delete", "remove"},
		Short:   "Revoke premium from a number",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPremium(cmd.Context(), func(ctx context.Context, s premium.Store) error {
				return premiumDel(ctx, s, cmd.OutOrStdout(), args[0])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List premium users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPremium(cmd.Context(), func(ctx context.Context, s premium.Store) error {
				return premiumList(ctx, s, cmd.OutOrStdout(), time.Now())
			})
		},
	}

	cmd.AddCommand(add, del, list)
	return cmd
}

func withPremium(ctx context.Context, fn func(context.Context, premium.Store) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if cfg.MongoURI == "" {
		return errors.New("MONGO_URI is required to manage premium users from the command line")
	}
	store, closeStore, err := openPremium(ctx, cfg, waLog.Stdout("Premium", cfg.LogLevel, true))
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

func premiumAdd(ctx context.Context, s premium.Store, w io.Writer, number string, days int, now time.Time) error {
	if days < 0 {
		return fmt.Errorf("invalid days: %d", days)
	}
	e := premium.Entry{Number: premium.NormalizeNumber(number), AddedBy: "cli", AddedAt: now}
	if e.Number == "" {
		return fmt.Errorf("invalid number: %q", number)
	}
	if days > 0 {
		e.ExpiresAt = now.Add(time.Duration(days) * 24 * time.Hour)
	}
	if err := s.Add(ctx, e); err != nil {
		return err
	}
	if e.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "%s is premium\n", e.Number)
	} else {
		fmt.Fprintf(w, "%s is premium until %s\n", e.Number, e.ExpiresAt.Format("2006-01-02"))
	}
	return nil
}

func premiumDel(ctx context.Context, s premium.Store, w io.Writer, number string) error {
	n := premium.NormalizeNumber(number)
	if err := s.Remove(ctx, n); err != nil {
		if errors.Is(err, premium.ErrNotFound) {
			return fmt.Errorf("%s is not premium", n)
		}
		return err
	}
	fmt.Fprintf(w, "%s removed\n", n)
	return nil
}

func premiumList(ctx context.Context, s premium.Store, w io.Writer, now time.Time) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no premium users")
		return nil
	}
	for _, e := range entries {
		switch {
		case e.ExpiresAt.IsZero():
			fmt.Fprintf(w, "%s\tforever\n", e.Number)
		case !e.Active(now):
			fmt.Fprintf(w, "%s\texpired %s\n", e.Number, e.ExpiresAt.Format("2006-01-02"))
		default:
			fmt.Fprintf(w, "%s\tuntil %s\n", e.Number, e.ExpiresAt.Format("2006-01-02"))
		}
	}
	return nil
}
