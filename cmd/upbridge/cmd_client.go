package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/upbridge/config"
	"github.com/shashiranjanraj/upbridge/pkg/auth"
	"github.com/shashiranjanraj/upbridge/pkg/http"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

var (
	serverURL   string
	bearerToken string
)

// clientFlags binds --server and --token on commands that call a server.
func clientFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().StringVar(&serverURL, "server", "", "server base URL (default http://localhost:$APP_PORT)")
		c.Flags().StringVar(&bearerToken, "token", os.Getenv("UPBRIDGE_TOKEN"), "bearer token")
	}
}

func init() {
	clientFlags(uploadCmd, lsCmd, startCmd, cancelCmd, retryCmd, rmCmd, pruneCmd)

	tokenCmd.Flags().String("sub", "", "token subject")
	tokenCmd.Flags().String("role", "uploader", "role claim")
	tokenCmd.Flags().Duration("ttl", auth.DefaultTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("sub")
}

func baseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	return "http://localhost:" + config.AppPort()
}

func authed(req *http.Request) *http.Request {
	if bearerToken == "" {
		return req
	}
	return req.Bearer(bearerToken)
}

// upbridge token: mint a token signed with JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a bearer token for the upload API",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetString("sub")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		tok, err := auth.GenerateToken(sub, role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

type uploadReply struct {
	Success bool   `json:"success"`
	NewUUID string `json:"newUuid"`
	Error   string `json:"error"`
}

// upbridge upload: send each file the way the browser widget does.
var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files to a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var failed int
		for _, file := range args {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			name := filepath.Base(file)

			resp, err := authed(http.Post(baseURL()+"/api/uploads")).
				WithContext(cmd.Context()).
				File("qqfile", name, data, map[string]string{
					"qquuid":     uuid.NewString(),
					"qqfilename": name,
				}).
				Timeout(5*time.Minute).
				Retry(2, time.Second).
				Send()
			if err != nil {
				return err
			}

			var reply uploadReply
			if err := resp.JSON(&reply); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if !reply.Success {
				failed++
				fmt.Fprintf(out, "FAIL  %s  %s\n", name, reply.Error)
				continue
			}
			fmt.Fprintf(out, "OK    %s  %s\n", name, reply.NewUUID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		return nil
	},
}

// upbridge ls: print the server's upload records.
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List uploads on a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := authed(http.Get(baseURL() + "/api/uploads")).
			WithContext(cmd.Context()).
			Send()
		if err != nil {
			return err
		}
		if err := resp.Throw(); err != nil {
			return err
		}

		var body struct {
			Data []uploader.Upload `json:"data"`
		}
		if err := resp.JSON(&body); err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tSIZE\tNAME\tUUID")
		for _, u := range body.Data {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", u.ID, u.Status, u.Size, u.Name, u.UUID)
		}
		return w.Flush()
	},
}
