package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/api"
	"github.com/heimdex/heimdex-shorts/internal/jobs"
)

const waitPollInterval = 2 * time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <request.json|->",
		Short: "Submit a video request to a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readSubmitRequest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			id, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if !wait {
				return nil
			}
			return waitForJob(cmd.Context(), client, id, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the video is ready or failed")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatStatus(status))
			return nil
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List videos known to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			videos, err := client.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(videos)
			}
			if len(videos) == 0 {
				fmt.Fprintln(out, "No videos")
				return nil
			}
			fmt.Fprintln(out, renderJobsTable(videos, time.Now()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a queued or finished video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func readSubmitRequest(path string, stdin io.Reader) (api.SubmitRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return api.SubmitRequest{}, fmt.Errorf("read request: %w", err)
	}

	var req api.SubmitRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return api.SubmitRequest{}, fmt.Errorf("parse request: %w", err)
	}
	if len(req.Scenes) == 0 {
		return api.SubmitRequest{}, errors.New("request has no scenes")
	}
	return req, nil
}

func waitForJob(ctx context.Context, client *apiClient, id string, progress io.Writer) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	last := ""
	for {
		status, err := client.Status(ctx, id)
		if err != nil {
			return err
		}
		if line := progressLine(status); line != last {
			fmt.Fprintln(progress, line)
			last = line
		}
		switch jobs.State(status.Status) {
		case jobs.StateReady:
			return nil
		case jobs.StateFailed:
			return fmt.Errorf("video %s failed: %s", id, status.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressLine(s api.VideoStatusResponse) string {
	p := s.Progress
	switch {
	case p.Stage == jobs.StageSceneProcessing && p.TotalScenes > 0:
		return fmt.Sprintf("%s: scene %d/%d", s.Status, p.Scene, p.TotalScenes)
	case p.Stage != "":
		return fmt.Sprintf("%s: %s %.0f%%", s.Status, p.Stage, p.Fraction*100)
	default:
		return s.Status
	}
}

func formatStatus(s api.VideoStatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:       %s\n", s.ID)
	fmt.Fprintf(&b, "Status:   %s\n", s.Status)
	if s.Progress.Stage != "" {
		fmt.Fprintf(&b, "Stage:    %s\n", s.Progress.Stage)
	}
	if s.Progress.TotalScenes > 0 {
		fmt.Fprintf(&b, "Scenes:   %d/%d\n", s.Progress.Scene, s.Progress.TotalScenes)
	}
	fmt.Fprintf(&b, "Progress: %.0f%%\n", s.Progress.Fraction*100)
	if s.Error != "" {
		fmt.Fprintf(&b, "Error:    %s (%s)\n", s.Error, s.ErrorKind)
	}
	fmt.Fprintf(&b, "Created:  %s\n", s.CreatedAt)
	if s.FinishedAt != "" {
		fmt.Fprintf(&b, "Finished: %s\n", s.FinishedAt)
	}
	return b.String()
}

func renderJobsTable(videos []api.VideoStatusResponse, now time.Time) string {
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, []string{
			v.ID,
			v.Status,
			stageLabel(v),
			age(v.CreatedAt, now),
			v.ErrorKind,
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Stage", "Created", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func stageLabel(v api.VideoStatusResponse) string {
	if v.Progress.Stage == "" {
		return "-"
	}
	if v.Progress.Stage == jobs.StageSceneProcessing && v.Progress.TotalScenes > 0 {
		return fmt.Sprintf("%s %d/%d", v.Progress.Stage, v.Progress.Scene, v.Progress.TotalScenes)
	}
	return v.Progress.Stage
}

func age(timestamp string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
