// webmirror — static-site mirroring, verification & preview toolkit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lvillar/webmirror/internal/cloner"
	"github.com/lvillar/webmirror/internal/config"
	"github.com/lvillar/webmirror/internal/deploy"
	"github.com/lvillar/webmirror/internal/scaffold"
	"github.com/lvillar/webmirror/internal/server"
	"github.com/lvillar/webmirror/internal/store"
	"github.com/lvillar/webmirror/internal/sysinfo"
	"github.com/lvillar/webmirror/internal/verify"
)

const version = "v0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "webmirror",
		Short: "webmirror — mirror a website into a portable static tree",
		Long: `webmirror downloads a site's pages and assets into a flat static tree
with all internal links rewritten to relative paths, verifies the tree's
link integrity, previews it locally, and ships it to a server over SSH.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		cloneCmd(),
		verifyCmd(),
		serveCmd(),
		scaffoldCmd(),
		deployCmd(),
		statusCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads config and applies the logging settings before anything
// else writes a log line.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, nil
}

// signalContext returns a context canceled on the first Ctrl-C; a second
// interrupt kills the process the usual way.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// ── clone ─────────────────────────────────────────────────────────────────────

func cloneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Mirror a site into the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// CLI flags override config values.
			if v, _ := cmd.Flags().GetString("url"); v != "" {
				cfg.BaseURL = v
			}
			if v, _ := cmd.Flags().GetString("output"); v != "" {
				cfg.OutputDir = v
			}
			if v, _ := cmd.Flags().GetString("sitemap"); v != "" {
				cfg.SitemapURL = v
			}
			if v, _ := cmd.Flags().GetStringSlice("seed"); len(v) > 0 {
				cfg.SeedURLs = v
			}
			if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
				cfg.Concurrency = v
			}
			if v, _ := cmd.Flags().GetBool("follow-links"); v {
				cfg.FollowLinks = true
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}

			cl, err := cloner.New(cfg, st)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			summary, err := cl.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\nMirrored %s → %s\n", summary.BaseURL, summary.OutputDir)
			fmt.Printf("  pages:   %d\n", summary.Pages)
			fmt.Printf("  assets:  %d\n", summary.Assets)
			fmt.Printf("  failed:  %d\n", summary.Failed)
			fmt.Printf("  skipped: %d\n", summary.Skipped)
			for _, f := range summary.FailedURLs {
				fmt.Printf("  ✗ %s — %s\n", f.URL, f.Error)
			}
			return nil
		},
	}
	cmd.Flags().String("url", "", "Base URL of the site to mirror (overrides config)")
	cmd.Flags().String("output", "", "Output directory (overrides config)")
	cmd.Flags().String("sitemap", "", "sitemap.xml URL used to seed the crawl")
	cmd.Flags().StringSlice("seed", nil, "Explicit page URL to mirror (repeatable)")
	cmd.Flags().Int("concurrency", 0, "Parallel page workers")
	cmd.Flags().Bool("follow-links", false, "Also crawl same-host links found on pages")
	return cmd
}

// ── verify ────────────────────────────────────────────────────────────────────

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check link integrity of the mirrored tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("output"); v != "" {
				cfg.OutputDir = v
			}

			report, err := verify.Tree(cfg.OutputDir)
			if err != nil {
				return err
			}

			// Persist findings against the latest snapshot when one exists.
			if st, err := store.Open(cfg.DBPath); err == nil {
				if snap, err := st.LatestSnapshot(); err == nil {
					if err := st.ReplaceBrokenLinks(snap.ID, report.BrokenLinks()); err != nil {
						logrus.WithError(err).Warn("persisting verify findings")
					}
				}
			}

			fmt.Printf("Checked %d files, %d references\n", report.Files, report.Refs)
			if report.OK() {
				fmt.Println("✓ no broken references")
				return nil
			}
			for _, f := range report.Findings {
				fmt.Printf("  ✗ %s: %s (%s)\n", f.SourcePath, f.Ref, f.Reason)
			}
			return fmt.Errorf("%d broken reference(s)", len(report.Findings))
		},
	}
	cmd.Flags().String("output", "", "Mirror tree to verify (overrides config)")
	return cmd
}

// ── serve ─────────────────────────────────────────────────────────────────────

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview the mirrored tree locally with dashboard and API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("host"); v != "" {
				cfg.ServerHost = v
			}
			if v, _ := cmd.Flags().GetInt("port"); v != 0 {
				cfg.ServerPort = v
			}
			if v, _ := cmd.Flags().GetString("output"); v != "" {
				cfg.OutputDir = v
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}

			srv := server.New(cfg, st)
			fmt.Printf("  ✓ Site      → http://%s:%d/\n", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("  ✓ Dashboard → http://%s:%d/_webmirror/\n", cfg.ServerHost, cfg.ServerPort)
			fmt.Printf("  ✓ Login     → %s / %s\n\n", cfg.AdminUser, cfg.AdminPass)

			ctx, cancel := signalContext()
			defer cancel()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("host", "", "Bind host (overrides config)")
	cmd.Flags().Int("port", 0, "Bind port (overrides config)")
	cmd.Flags().String("output", "", "Mirror tree to serve (overrides config)")
	return cmd
}

// ── scaffold ──────────────────────────────────────────────────────────────────

func scaffoldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Write deployment config files into the mirror tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("output"); v != "" {
				cfg.OutputDir = v
			}
			name, _ := cmd.Flags().GetString("name")
			force, _ := cmd.Flags().GetBool("force")

			written, err := scaffold.Write(cfg.OutputDir, name, force)
			if err != nil {
				return err
			}
			for _, f := range written {
				fmt.Printf("  ✓ %s\n", f)
			}
			if len(written) == 0 {
				fmt.Println("  nothing to do (files exist; use --force to overwrite)")
			}
			return nil
		},
	}
	cmd.Flags().String("output", "", "Mirror tree (overrides config)")
	cmd.Flags().String("name", "", "Site name used in provider configs")
	cmd.Flags().Bool("force", false, "Overwrite existing files")
	return cmd
}

// ── deploy ────────────────────────────────────────────────────────────────────

func deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Push the mirror tree to a server over SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("host"); v != "" {
				cfg.DeployHost = v
			}
			if v, _ := cmd.Flags().GetString("remote-dir"); v != "" {
				cfg.DeployRemoteDir = v
			}

			if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
				files, err := deploy.List(cfg.OutputDir)
				if err != nil {
					return err
				}
				for _, f := range files {
					fmt.Printf("  would upload %s\n", f)
				}
				fmt.Printf("%d file(s) → %s:%s\n", len(files), cfg.DeployHost, cfg.DeployRemoteDir)
				return nil
			}

			client, err := deploy.Dial(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Push(cfg.OutputDir, cfg.DeployRemoteDir)
		},
	}
	cmd.Flags().String("host", "", "Deploy host, e.g. example.com or example.com:2222")
	cmd.Flags().String("remote-dir", "", "Remote directory to extract into")
	cmd.Flags().Bool("dry-run", false, "List what would be uploaded without connecting")
	return cmd
}

// ── status ────────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest snapshot summary and disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			snap, err := st.LatestSnapshot()
			if err != nil {
				return err
			}
			summary, err := st.Summary(snap.ID)
			if err != nil {
				return err
			}

			fmt.Printf("Snapshot #%d  %s\n", summary.ID, summary.BaseURL)
			fmt.Printf("  status:  %s (started %s)\n", summary.Status,
				summary.StartedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  pages:   %d\n", summary.Pages)
			fmt.Printf("  assets:  %d\n", summary.Assets)
			fmt.Printf("  failed:  %d\n", summary.Failed)
			fmt.Printf("  broken:  %d\n", summary.Broken)

			if tree, err := sysinfo.Tree(summary.OutputDir); err == nil {
				fmt.Printf("  on disk: %d files, %.2f MiB\n",
					tree.Files, float64(tree.Bytes)/1024/1024)
			}
			if vol, err := sysinfo.Volume(summary.OutputDir); err == nil {
				fmt.Printf("  volume:  %.1f%% used, %.2f GiB free\n",
					vol.UsedPercent, float64(vol.Free)/1024/1024/1024)
			}
			return nil
		},
	}
}

// ── version ───────────────────────────────────────────────────────────────────

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print webmirror version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webmirror %s\n", version)
		},
	}
}
