package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/alem-progression/config"
)

// errLedgerMismatch makes "audit" exit non-zero when totals drift.
var errLedgerMismatch = errors.New("ledger does not match totals")

// ─────────────────────────────────────────────────────────────────────────────
// Storage
// ─────────────────────────────────────────────────────────────────────────────

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			n, err := b.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"driver": b.Driver, "applied": n})
		},
	}
}

func newSeedCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write catalog levels, badges and missions into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := c.catalog()
			if err != nil {
				return err
			}
			b, err := c.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			res, err := b.SyncCatalog(cmd.Context(), cat)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newCatalogCmd(c *cli) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect catalog files",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Parse and validate a catalog file (default: the configured one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Engine.CatalogPath
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{
				"levels":   len(cat.Levels().Levels()),
				"badges":   len(cat.Badges()),
				"missions": len(cat.Missions()),
				"rules":    cat.Rules().Len(),
			})
		},
	})
	return catalogCmd
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

func newAwardCmd(c *cli) *cobra.Command {
	var amount int
	var reason string
	cmd := &cobra.Command{
		Use:   "award <user-id>",
		Short: "Award XP to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.AwardXP(cmd.Context(), args[0], amount, reason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"entry_id":   res.Entry.ID,
				"total_xp":   res.TotalXP,
				"level":      res.Level,
				"level_name": res.LevelName,
				"leveled_up": res.LeveledUp,
				"missions":   res.Missions,
			})
		},
	}
	cmd.Flags().IntVar(&amount, "amount", 0, "XP amount (> 0)")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Ledger reason")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newProgressCmd(c *cli) *cobra.Command {
	var amount int
	cmd := &cobra.Command{
		Use:   "progress <user-id> <requirement-type>",
		Short: "Advance missions of a requirement type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.UpdateMissionProgress(cmd.Context(), args[0], args[1], amount)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().IntVar(&amount, "amount", 1, "Progress increment")
	return cmd
}

func newBadgeCmd(c *cli) *cobra.Command {
	badgeCmd := &cobra.Command{
		Use:   "badge",
		Short: "Grant or evaluate badges",
	}
	badgeCmd.AddCommand(&cobra.Command{
		Use:   "award <user-id> <badge-id>",
		Short: "Grant a badge once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.AwardBadge(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"badge_id": res.BadgeID, "awarded": res.Inserted})
		},
	}, &cobra.Command{
		Use:   "check <user-id>",
		Short: "Evaluate badge rules and grant what is earned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.CheckAndAwardBadges(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"evaluated": res.Evaluated, "awarded": res.Awarded})
		},
	})
	return badgeCmd
}

func newMemberCmd(c *cli) *cobra.Command {
	var role string
	var suspended bool
	cmd := &cobra.Command{
		Use:   "member <user-id>",
		Short: "Set a user's role and suspension for leaderboard eligibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			m, err := eng.UpsertMember(cmd.Context(), args[0], role, suspended)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"user_id":   m.UserID,
				"role":      m.Role,
				"suspended": m.Suspended,
				"eligible":  m.Eligible(),
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "learner", "Member role: learner, instructor or admin")
	cmd.Flags().BoolVar(&suspended, "suspended", false, "Exclude from the leaderboard")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show a user's progression summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := eng.GetUserStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newLeaderboardCmd(c *cli) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show a leaderboard page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			p, err := eng.GetLeaderboard(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (0: configured default)")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's XP ledger, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			h, err := eng.GetXPHistory(cmd.Context(), args[0], page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), h)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (0: configured default)")
	return cmd
}

func newAuditCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare ledger sums with stored totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			res, err := eng.AuditLedger(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), map[string]any{
				"checked_at":    res.CheckedAt,
				"consistent":    res.Consistent(),
				"discrepancies": res.Discrepancies,
			}); err != nil {
				return err
			}
			if !res.Consistent() {
				return fmt.Errorf("%w: %d users", errLedgerMismatch, len(res.Discrepancies))
			}
			return nil
		},
	}
}
