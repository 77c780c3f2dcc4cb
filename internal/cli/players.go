package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// ─── Player administration ──────────────────────────────────────────────────
// Operator commands that read or adjust a single user's record directly,
// bypassing the HTTP API.

func init() {
	rootCmd.AddCommand(levelsCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(leaderboardCmd)

	rootCmd.AddCommand(xpCmd)
	xpCmd.AddCommand(xpAwardCmd)
	xpAwardCmd.Flags().StringP("reason", "r", domain.ReasonManual, "Reason recorded in the XP ledger")

	rootCmd.AddCommand(premiumCmd)
	premiumCmd.AddCommand(premiumGrantCmd)
	premiumGrantCmd.Flags().IntP("days", "d", 30, "Length of the premium period in days")

	leaderboardCmd.Flags().StringP("board", "b", string(domain.BoardWeeklyXP), "weekly_xp, lifetime_xp or streak")
	leaderboardCmd.Flags().IntP("limit", "n", 10, "Number of entries")
}

// ─── levels ─────────────────────────────────────────────────────────────────

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Print the level table",
	Args:  cobra.NoArgs,
	RunE:  runLevels,
}

func runLevels(cmd *cobra.Command, args []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tMIN XP\tMAX XP\tTITLE")
	for _, l := range domain.Levels() {
		upper := strconv.FormatInt(l.MaxXP, 10)
		if l.MaxXP < 0 {
			upper = "∞"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", l.Level, l.MinXP, upper, l.Title)
	}
	return tw.Flush()
}

// ─── profile ────────────────────────────────────────────────────────────────

var profileCmd = &cobra.Command{
	Use:   "profile USER",
	Short: "Show a user's gamification record",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.Game.Profile(ctx, args[0])
	if err != nil {
		return err
	}
	lvl, err := d.Game.Level(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:      %s\n", p.UserID)
	fmt.Fprintf(out, "Level:     %d (%s)\n", lvl.Current.Level, lvl.Current.Title)
	fmt.Fprintf(out, "XP:        %d (weekly %d, %d to next level)\n", p.XP, p.WeeklyXP, lvl.XPToNext)
	fmt.Fprintf(out, "Streak:    %d days (longest %d)\n", p.StreakDays, p.LongestStreak)
	if !p.LastActivityDate.IsZero() {
		fmt.Fprintf(out, "Last seen: %s\n", domain.DateString(p.LastActivityDate))
	}
	badges, err := d.Game.Achievements(ctx, args[0])
	if err != nil {
		return err
	}
	earned := 0
	for _, a := range badges {
		if a.Earned {
			earned++
		}
	}
	fmt.Fprintf(out, "Badges:    %d/%d earned\n", earned, len(badges))
	return nil
}

// ─── xp award ───────────────────────────────────────────────────────────────

var xpCmd = &cobra.Command{
	Use:   "xp",
	Short: "Manage experience points",
}

var xpAwardCmd = &cobra.Command{
	Use:   "award USER POINTS",
	Short: "Award XP to a user",
	Long:  `Award XP to a user. Level-up achievements and notifications fire as they would for XP earned in the app.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runXPAward,
}

func runXPAward(cmd *cobra.Command, args []string) error {
	points, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("points must be an integer: %w", err)
	}
	reason, _ := cmd.Flags().GetString("reason")

	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	change, err := d.Game.AwardXP(ctx, args[0], points, reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s: %d → %d XP (level %d)\n", args[0], change.OldXP, change.NewXP, change.NewLevel)
	if change.LeveledUp() {
		fmt.Fprintf(cmd.OutOrStdout(), "   Level up: %d → %d\n", change.OldLevel, change.NewLevel)
	}
	return nil
}

// ─── premium grant ──────────────────────────────────────────────────────────

var premiumCmd = &cobra.Command{
	Use:   "premium",
	Short: "Manage premium access",
}

var premiumGrantCmd = &cobra.Command{
	Use:   "grant USER",
	Short: "Grant premium access for a number of days",
	Args:  cobra.ExactArgs(1),
	RunE:  runPremiumGrant,
}

func runPremiumGrant(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	until := d.Game.Now().Add(time.Duration(days) * 24 * time.Hour)
	if err := d.Store.SetPremium(ctx, args[0], until); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s is premium until %s\n", args[0], until.Format("2006-01-02 15:04 MST"))
	return nil
}

// ─── leaderboard ────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print a leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("board")
	limit, _ := cmd.Flags().GetInt("limit")
	board, err := domain.ParseBoard(name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	d, err := openDaemon(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.Game.Top(ctx, board, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No entries on %s.\n", board)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tSCORE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.Rank, e.UserID, e.Score)
	}
	return tw.Flush()
}
