package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JThr3e/heterocl/internal/plan"
	"github.com/JThr3e/heterocl/internal/render"
	"github.com/JThr3e/heterocl/internal/schedule"
)

func newShowCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [graph]",
		Short: "Show the default schedule of an example graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "available graphs: %s\n",
					strings.Join(plan.GraphNames(), ", "))
				return nil
			}
			outputs, err := plan.BuildGraph(args[0])
			if err != nil {
				return err
			}
			sch := schedule.Create(outputs...)
			fmt.Fprint(cmd.OutOrStdout(), render.New(useColor(flags)).Render(sch))
			return nil
		},
	}
	return cmd
}
