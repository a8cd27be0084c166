package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"quadsim/internal/urdf"
)

func newModelCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "model [ref]",
		Short: "Inspect a robot model (builtin:name or file path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, name := range urdf.Builtins() {
					fmt.Printf("model=%s%s\n", urdf.BuiltinPrefix, name)
				}
				return nil
			}

			ref := urdf.BuiltinMinitaur
			if len(args) == 1 {
				ref = args[0]
			}
			m, err := urdf.Open(ref)
			if err != nil {
				return err
			}

			fmt.Printf("model=%s root=%s links=%d joints=%d actuated=%d mass_kg=%s\n",
				m.Name,
				m.RootLink().Name,
				len(m.Links),
				len(m.Joints),
				len(m.ActuatedJoints()),
				humanize.Ftoa(m.TotalMass()))
			for _, j := range m.Joints {
				line := fmt.Sprintf("joint=%s type=%s parent=%s child=%s", j.Name, j.Type, j.Parent, j.Child)
				if j.Limit.Limited {
					line += fmt.Sprintf(" lower=%.4f upper=%.4f", j.Limit.Lower, j.Limit.Upper)
				}
				if j.Limit.Effort > 0 {
					line += fmt.Sprintf(" effort=%s", humanize.Ftoa(j.Limit.Effort))
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list embedded builtin models")
	return cmd
}
