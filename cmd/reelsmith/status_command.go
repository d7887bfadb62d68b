package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newStatusCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and stage health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}

			var status api.StatusResponse
			if err := apiGet(cfg, "/api/status", &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon: running\nDatabase: %s\n\n", status.Database)

			stageRows := make([][]string, 0, len(status.Stages))
			for _, health := range status.Stages {
				state := "ready"
				if !health.Healthy {
					state = "unavailable"
				}
				stageRows = append(stageRows, []string{health.Stage, state, health.Detail})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "State", "Detail"},
				stageRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if len(status.Dependencies) > 0 {
				depRows := make([][]string, 0, len(status.Dependencies))
				for _, dep := range status.Dependencies {
					state := "found"
					if !dep.Available {
						state = "missing"
					}
					depRows = append(depRows, []string{dep.Name, dep.Command, state, dep.Detail})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"Dependency", "Command", "State", "Detail"},
					depRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}

			if len(status.Projects) == 0 {
				fmt.Fprintln(out, "\nNo projects yet")
				return nil
			}
			statuses := make([]string, 0, len(status.Projects))
			for name := range status.Projects {
				statuses = append(statuses, name)
			}
			sort.Strings(statuses)
			countRows := make([][]string, 0, len(statuses))
			for _, name := range statuses {
				countRows = append(countRows, []string{name, strconv.Itoa(status.Projects[name])})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Project Status", "Count"},
				countRows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
