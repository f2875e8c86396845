package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/JThr3e/heterocl/internal/logging"
	"github.com/JThr3e/heterocl/internal/plan"
	"github.com/JThr3e/heterocl/internal/render"
	"github.com/JThr3e/heterocl/internal/schedule"
	"github.com/JThr3e/heterocl/internal/tui"
)

func newApplyCmd(flags *rootFlags) *cobra.Command {
	var normalize bool
	var rebase bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "apply <plan.yaml>",
		Short: "Apply a schedule plan and print the resulting stage tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if flags.verbose {
				level = "debug"
			}
			log, err := logging.New(logging.Options{
				Level:     level,
				Component: "apply",
				Console:   true,
			})
			if err != nil {
				return err
			}

			p, err := plan.ParsePlan(args[0])
			if err != nil {
				return err
			}
			outputs, err := plan.BuildGraph(p.Graph)
			if err != nil {
				return err
			}
			sch := schedule.Create(outputs...)
			sch.SetLogger(log)

			if err := plan.Apply(sch, p); err != nil {
				return err
			}
			if normalize {
				if rebase {
					sch, err = sch.NormalizeWithRebase()
				} else {
					sch, err = sch.Normalize()
				}
				if err != nil {
					return err
				}
			}
			if inspect {
				return tui.Run(sch)
			}
			fmt.Fprint(cmd.OutOrStdout(), render.New(useColor(flags)).Render(sch))
			return nil
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "Run inject-inline normalization before printing")
	cmd.Flags().BoolVar(&rebase, "rebase", false, "Also rebase non-zero-min loops during normalization")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "Open the interactive schedule inspector")
	return cmd
}

func useColor(flags *rootFlags) bool {
	if flags.noColor {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
