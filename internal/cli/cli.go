// Package cli implements tagctl, the operator tool for inspecting and
// repairing tagged sets outside a live session.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"rally-tagger/internal/domain"
	"rally-tagger/internal/service"
)

// Tagger is the slice of the session service tagctl needs.
type Tagger interface {
	Resumability(ctx context.Context, matchID string, setNumber int) (service.Resumability, error)
	Set(ctx context.Context, setID string) (*domain.Set, error)
	Rallies(ctx context.Context, setID string) ([]domain.Rally, error)
	Finalize(ctx context.Context, matchID string) (*service.FinalizeResult, error)
	Redo(ctx context.Context, setID string, scope domain.DeleteScope) (*service.FinalizeResult, error)
}

// Opener connects to the store. The returned func releases it.
type Opener func() (Tagger, func() error, error)

func RootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "tagctl",
		Short:         "Inspect and repair tagged table tennis sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(StatusCmd(open))
	root.AddCommand(RalliesCmd(open))
	root.AddCommand(FinalizeCmd(open))
	root.AddCommand(RedoCmd(open))
	return root
}

func withTagger(open Opener, fn func(Tagger) error) error {
	t, release, err := open()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer release()
	return fn(t)
}

// StatusCmd returns the status command
func StatusCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status MATCH_ID SET_NUMBER",
		Short: "Show a set's progress and whether to start, resume or redo it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return fmt.Errorf("invalid set number %q", args[1])
			}
			return withTagger(open, func(t Tagger) error {
				ctx := cmd.Context()
				res, err := t.Resumability(ctx, args[0], number)
				if err != nil {
					return err
				}
				set, err := t.Set(ctx, res.SetID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Set %d (%s)\n", set.SetNumber, set.ID)
				fmt.Fprintf(out, "  Action:   %s\n", actionLabel(res.Action))
				fmt.Fprintf(out, "  Phase:    %s\n", phaseLabel(res.Progress.Phase))
				p := res.Progress
				fmt.Fprintf(out, "  Rallies:  %d", p.LastRallyIndex)
				if p.TotalRallies > 0 {
					fmt.Fprintf(out, " of %d", p.TotalRallies)
				}
				fmt.Fprintln(out)
				if p.TotalShots > 0 {
					fmt.Fprintf(out, "  Shots:    %d of %d annotated\n", p.LastShotIndex, p.TotalShots)
				}
				if set.Score != (domain.Score{}) {
					fmt.Fprintf(out, "  Score:    %d-%d %s\n", set.Score.A, set.Score.B, winnerLabel(set.WinnerSide))
				}
				return nil
			})
		},
	}
}

// RalliesCmd returns the rallies command
func RalliesCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "rallies SET_ID",
		Short: "List the stored rallies of a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTagger(open, func(t Tagger) error {
				rallies, err := t.Rallies(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rallies) == 0 {
					fmt.Fprintln(out, "No rallies stored.")
					return nil
				}
				printRallies(out, rallies)
				return nil
			})
		},
	}
}

func printRallies(out io.Writer, rallies []domain.Rally) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSERVER\tSHOTS\tANNOTATED\tEND\tWINNER\tSCORE")
	for _, r := range rallies {
		annotated := 0
		for _, s := range r.Shots {
			if !s.Annotation.IsZero() {
				annotated++
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%d-%d\n",
			r.Ordinal, r.ServerSide, len(r.Shots), annotated, r.EndCondition, sideOrDash(r.WinnerSide), r.ScoreAfter.A, r.ScoreAfter.B)
	}
	w.Flush()
}

// FinalizeCmd returns the finalize command
func FinalizeCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize MATCH_ID",
		Short: "Recompute the sets ledger and match winner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTagger(open, func(t Tagger) error {
				res, err := t.Finalize(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

// RedoCmd returns the redo command
func RedoCmd(open Opener) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "redo SET_ID",
		Short: "Delete a set's tagging data so it can be tagged again",
		Long: `Delete tagging data of a set and refinalize its match.

  --scope all     removes rallies, shots, progress and the set result
  --scope phase2  clears shot annotations only and reopens annotation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTagger(open, func(t Tagger) error {
				res, err := t.Redo(cmd.Context(), args[0], domain.DeleteScope(scope))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s set %s reset (%s)\n", color.New(color.FgYellow).Sprint("!"), args[0], scope)
				printResult(out, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeAll), "what to delete: all or phase2")

	return cmd
}

func printResult(out io.Writer, res *service.FinalizeResult) {
	fmt.Fprintf(out, "Match %s: %d-%d %s\n", res.MatchID, res.SetsWonA, res.SetsWonB, winnerLabel(res.Winner))
	for _, s := range res.Sets {
		l := s.Ledger
		fmt.Fprintf(out, "  Set %d: %d-%d -> %d-%d %s\n", s.SetNumber, l.BeforeA, l.BeforeB, l.AfterA, l.AfterB, winnerLabel(s.Winner))
	}
}

func actionLabel(a domain.ResumeAction) string {
	switch a {
	case domain.ActionStart:
		return color.New(color.FgGreen).Sprint("start")
	case domain.ActionResume:
		return color.New(color.FgCyan).Sprint("resume")
	case domain.ActionRedo:
		return color.New(color.FgYellow).Sprint("redo")
	}
	return string(a)
}

func phaseLabel(p domain.Phase) string {
	if p == domain.PhaseNone {
		return "not started"
	}
	return string(p)
}

func winnerLabel(s domain.Side) string {
	if s == domain.NoSide {
		return "(undecided)"
	}
	return color.New(color.FgGreen).Sprintf("(winner %s)", s)
}

func sideOrDash(s domain.Side) string {
	if s == domain.NoSide {
		return "-"
	}
	return string(s)
}
