package main

import (
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/campusmatch/internal/auth"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "campusmatch",
		Short:         "Match lost and found listings on campus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(matchCmd())
	root.AddCommand(matchesCmd())
	root.AddCommand(importCmd())
	root.AddCommand(pruneCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(addCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func matchCmd() *cobra.Command {
	var (
		jsonOutput bool
		threshold  int
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run one match generation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(jsonOutput, threshold)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&threshold, "threshold", -1, "exclusive minimum score (default: from config)")
	return cmd
}

func matchesCmd() *cobra.Command {
	var (
		user       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Show a user's matches, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatches(user, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.MarkFlagRequired("user")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import found items from configured feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport()
		},
	}
}

func pruneCmd() *cobra.Command {
	var (
		returned  bool
		atOrBelow int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(returned, atOrBelow)
		},
	}

	cmd.Flags().BoolVar(&returned, "returned", true, "remove matches referencing returned listings")
	cmd.Flags().IntVar(&atOrBelow, "at-or-below", 0, "remove matches scoring at or below this value (0 = off)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(user, role, ttl)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user ID")
	cmd.Flags().StringVar(&role, "role", auth.RoleRegistered, "role (registered or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.TokenExpiry, "token lifetime")
	cmd.MarkFlagRequired("user")
	return cmd
}

func addCmd() *cobra.Command {
	var in addInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a lost or found listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(in)
		},
	}

	cmd.Flags().StringVar(&in.title, "title", "", "title")
	cmd.Flags().StringVar(&in.description, "description", "", "description")
	cmd.Flags().StringVar(&in.category, "category", "", "category")
	cmd.Flags().StringVar(&in.location, "location", "", "location")
	cmd.Flags().StringVar(&in.date, "date", "", "date lost (YYYY-MM-DD, default: today)")
	cmd.Flags().StringVar(&in.status, "status", "lost", "lost or found")
	cmd.Flags().StringVar(&in.owner, "owner", "", "owner user ID")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("owner")
	return cmd
}
