package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/upbridge/pkg/http"
)

// upbridge start: upload every submitted file (manual-upload servers).
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Upload all files the server holds in the submitted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := authed(http.Post(baseURL() + "/api/uploads/start")).
			WithContext(cmd.Context()).
			Send()
		if err != nil {
			return err
		}
		if err := resp.Throw(); err != nil {
			return err
		}
		var body struct {
			Data struct {
				Queued int `json:"queued"`
			} `json:"data"`
		}
		if err := resp.JSON(&body); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %d\n", body.Data.Queued)
		return nil
	},
}

// upbridge prune: forget rejected, canceled and deleted records.
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove records of rejected, canceled and deleted files",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := authed(http.Post(baseURL() + "/api/uploads/prune")).
			WithContext(cmd.Context()).
			Send()
		if err != nil {
			return err
		}
		if err := resp.Throw(); err != nil {
			return err
		}
		var body struct {
			Data struct {
				Removed int `json:"removed"`
			} `json:"data"`
		}
		if err := resp.JSON(&body); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", body.Data.Removed)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a pending upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return act(cmd, args[0], func(u string) *http.Request { return http.Post(u + "/cancel") })
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return act(cmd, args[0], func(u string) *http.Request { return http.Post(u + "/retry") })
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an uploaded file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return act(cmd, args[0], http.Delete)
	},
}

// act sends one per-upload request and prints the resulting status.
func act(cmd *cobra.Command, arg string, build func(url string) *http.Request) error {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return fmt.Errorf("invalid upload id %q", arg)
	}

	resp, err := authed(build(fmt.Sprintf("%s/api/uploads/%d", baseURL(), id))).
		WithContext(cmd.Context()).
		Send()
	if err != nil {
		return err
	}

	var reply struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := resp.JSON(&reply); err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("upload %d: %s", id, reply.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", id, reply.Data.Status)
	return nil
}
