package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fanprompt/internal/core"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage saved job definitions",
	}

	var file string
	save := &cobra.Command{
		Use:   "save -f job.yaml",
		Short: "Save a job manifest to the job store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := core.LoadJobFile(file)
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Create(cmd.Context(), *def)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ job %q saved as %s\n", def.Name, id)
			return nil
		},
	}
	save.Flags().StringVarP(&file, "file", "f", "", "job manifest")
	_ = save.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved job definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			defs, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROJECTS\tCREATED\tPROMPT")
			for _, def := range defs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", def.ID, def.Name, len(def.ProjectPaths),
					def.CreatedAt.Local().Format(time.DateTime), firstLine(def.Prompt))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(save, list)
	return cmd
}

func firstLine(s string) string {
	line, _, cut := strings.Cut(s, "\n")
	if cut {
		return line + " …"
	}
	return line
}
