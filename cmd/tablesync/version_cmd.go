package main

import (
	"fmt"
	"io"

	"github.com/openmined/tablesync/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print tablesync version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, version.Get(), func(w io.Writer) error {
				_, err := fmt.Fprintln(w, version.Detailed())
				return err
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}
