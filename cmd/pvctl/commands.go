package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/25x8/playvested/internal/models"
	"github.com/25x8/playvested/internal/session"
	"github.com/25x8/playvested/internal/utils"
)

func linkedCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "linked",
		Short: "Show whether the player is linked to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(ctx context.Context, c *session.Controller) error {
				if !c.Identity().PlayerID.Valid() {
					return errors.New("--player is required")
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.LinkStatus())
				return nil
			})
		},
	}
}

func createCommand(opts *globalOptions) *cobra.Command {
	var charity string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a player supporting a charity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(ctx context.Context, c *session.Controller) error {
				out := cmd.OutOrStdout()
				err := c.CreatePlayer(func(playerID, charityName, message string) {
					if message != "" {
						fmt.Fprintln(out, message)
					}
				}, nil)
				if err != nil {
					return err
				}
				res, err := c.PickCharity(charity).Wait(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "player: %s\n", res.PlayerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&charity, "charity", "", "charity to support")
	_ = cmd.MarkFlagRequired("charity")
	return cmd
}

func reportCommand(opts *globalOptions) *cobra.Command {
	var amount float64
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report an amount earned by the player",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(ctx context.Context, c *session.Controller) error {
				out := cmd.OutOrStdout()
				_, err := c.ReportEarning(amount, func(recorded float64) {
					text, ok := utils.FormatCurrency(recorded)
					if !ok {
						text = fmt.Sprint(recorded)
					}
					fmt.Fprintf(out, "recorded %s\n", text)
				}, nil).Wait(ctx)
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount earned")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func summaryCommand(opts *globalOptions) *cobra.Command {
	var days, weeks, months int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show lifetime and windowed totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(ctx context.Context, c *session.Controller) error {
				id := c.Identity()
				query := models.TotalsQuery{
					PublisherID:    id.PublisherID.String(),
					ApplicationID:  id.ApplicationID.String(),
					PlayerID:       id.PlayerID.String(),
					PreviousDays:   days,
					PreviousWeeks:  weeks,
					PreviousMonths: months,
				}
				_, err := c.ShowSummary(query, nil, nil).Wait(ctx)
				c.CloseSummary()
				return err
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "window in days")
	cmd.Flags().IntVar(&weeks, "weeks", 0, "window in weeks, used when --days is 0")
	cmd.Flags().IntVar(&months, "months", 0, "window in months, used when --days and --weeks are 0")
	return cmd
}

func linkCommand(opts *globalOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link the player or game to a PlayVested account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, func(ctx context.Context, c *session.Controller) error {
				c.OpenLinkPanel()
				res, err := c.LinkAccount(username, password).Wait(ctx)
				if err != nil {
					return err
				}
				if res.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "player: %s\n", res.PlayerID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
