package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelsmith/internal/api"
)

func newProjectsCommand(configFlag *string) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}

			var list api.ProjectListResponse
			if err := apiGet(cfg, "/api/projects", &list); err != nil {
				return err
			}
			if len(list.Projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects")
				return nil
			}

			rows := make([][]string, 0, len(list.Projects))
			for _, project := range list.Projects {
				duration := ""
				if project.Duration > 0 {
					duration = fmt.Sprintf("%.1fs", project.Duration)
				}
				rows = append(rows, []string{
					strconv.FormatInt(project.ID, 10),
					truncate(project.Topic, 48),
					string(project.Status),
					duration,
					project.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Topic", "Status", "Duration", "Updated"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	projectsCmd.AddCommand(newProjectShowCommand(configFlag))
	return projectsCmd
}

func newProjectShowCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one project with its segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			cfg, err := loadConfig(configFlag)
			if err != nil {
				return err
			}

			var detail api.ProjectDetailResponse
			if err := apiGet(cfg, fmt.Sprintf("/api/projects/%d", id), &detail); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %d: %s\nStatus: %s\n", detail.Project.ID, detail.Project.Topic, detail.Project.Status)
			if detail.Project.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", detail.Project.ErrorMessage)
			}
			if detail.Project.VideoURL != "" {
				fmt.Fprintf(out, "Video: %s (%.1fs)\nCover: %s\n", detail.Project.VideoURL, detail.Project.Duration, detail.Project.CoverURL)
			}
			if len(detail.Segments) == 0 {
				fmt.Fprintln(out, "No segments")
				return nil
			}

			rows := make([][]string, 0, len(detail.Segments))
			for _, segment := range detail.Segments {
				audio := string(segment.TTSStatus)
				if segment.AudioDuration > 0 {
					audio = fmt.Sprintf("%s (%.1fs)", segment.TTSStatus, segment.AudioDuration)
				}
				rows = append(rows, []string{
					strconv.Itoa(segment.Order),
					truncate(segment.ChapterTitle, 24),
					truncate(segment.Text, 42),
					audio,
					string(segment.ImageStatus),
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Chapter", "Text", "Audio", "Image"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func truncate(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
