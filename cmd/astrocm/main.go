package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tranthanhman/AstroCM/pkg/config"
	"github.com/tranthanhman/AstroCM/pkg/render"
	"github.com/tranthanhman/AstroCM/pkg/repository"
	"github.com/tranthanhman/AstroCM/pkg/state"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

// Global (root-level) flag variables
var (
	flagVerbose  bool
	flagDebug    bool
	flagProvider string
	flagOwner    string
	flagRepo     string
	flagBaseURL  string
	flagToken    string
	flagTimeout  time.Duration
)

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "astrocm",
		Short: "AstroCM CLI",
		Long: strings.TrimSpace(`
AstroCM - Git-backed content manager

Treats a remote Git-hosted repository (GitHub, GitLab, Gitea, or Gogs) as a
document store for Markdown posts and image assets. All writes are guarded
by optimistic concurrency: stale edits are rejected rather than overwritten.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initLogging()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose (info) logging")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "github", "Repository provider: github|gitlab|gitea|gogs")
	cmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "Repository owner (user or organization)")
	cmd.PersistentFlags().StringVar(&flagRepo, "repo", "", "Repository name")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "API base URL (required for gitea/gogs and self-hosted instances)")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "Personal access token (overrides stored credentials)")
	cmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 2*time.Minute, "Timeout for the whole operation")
	cmd.Version = version

	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newTreeCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newSiteURLCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

func initLogging() {
	var level slog.Level
	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	default:
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", level.String())
}

// newRepositoryClient builds a client from the global flags and the stored
// credentials for the selected provider.
func newRepositoryClient() (repository.Client, error) {
	if flagOwner == "" || flagRepo == "" {
		return nil, errors.New("both --owner and --repo are required")
	}

	token := flagToken
	if token == "" {
		store, err := state.NewFileCredentialStore("")
		if err != nil {
			return nil, err
		}
		token, err = state.ResolveProviderToken(flagProvider, store)
		if err != nil {
			return nil, err
		}
	}
	slog.Debug("Resolved credentials",
		"provider", flagProvider,
		"token", state.RedactToken(token))

	cfg := repository.Config{
		Token:   token,
		BaseURL: flagBaseURL,
		Owner:   flagOwner,
		Repo:    flagRepo,
		OnAuthInvalid: func() {
			fmt.Fprintln(os.Stderr, "Your access token was rejected; run 'astrocm login' to re-authenticate.")
		},
	}
	return repository.NewClient(flagProvider, cfg)
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), flagTimeout)
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show repository metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			info, err := client.GetRepositoryInfo(ctx)
			if err != nil {
				return err
			}
			render.NewConsoleRenderer().Info(info, os.Stdout)
			return nil
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List one directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			entries, err := client.ListDirectory(ctx, path)
			if err != nil {
				return err
			}
			render.NewConsoleRenderer().Entries(entries, os.Stdout)
			return nil
		},
	}
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree [path]",
		Short: "List all files recursively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			listing, err := client.ListAllFiles(ctx, path)
			if err != nil {
				return err
			}
			render.NewConsoleRenderer().Listing(listing, os.Stdout)
			return nil
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			content, err := client.ReadFile(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Print(content)
			return nil
		},
	}
}

// readLocal reads a local file, or stdin when the argument is "-".
func readLocal(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read local file: %w", err)
	}
	return data, nil
}

func newCreateCmd() *cobra.Command {
	var message string
	c := &cobra.Command{
		Use:   "create <path> <local-file>",
		Short: "Create a new file (fails if it already exists)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			data, err := readLocal(args[1])
			if err != nil {
				return err
			}
			if err := client.CreateFile(ctx, args[0], string(data), message); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return fmt.Errorf("a file already exists at %s (use 'update')", args[0])
				}
				return err
			}
			fmt.Printf("Created %s\n", args[0])
			return nil
		},
	}
	c.Flags().StringVarP(&message, "message", "m", "Add content", "Commit message")
	return c
}

func newUpdateCmd() *cobra.Command {
	var message, sha string
	c := &cobra.Command{
		Use:   "update <path> <local-file>",
		Short: "Update an existing file",
		Long: strings.TrimSpace(`
Update an existing file. Pass --sha with the content SHA you last observed
(from 'ls' or 'tree') to guarantee nobody changed the file in the meantime;
without it the current SHA is fetched immediately before the write.`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			data, err := readLocal(args[1])
			if err != nil {
				return err
			}
			if err := client.UpdateFile(ctx, args[0], string(data), message, sha); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return fmt.Errorf("%s changed since you last read it; reload and retry", args[0])
				}
				return err
			}
			fmt.Printf("Updated %s\n", args[0])
			return nil
		},
	}
	c.Flags().StringVarP(&message, "message", "m", "Update content", "Commit message")
	c.Flags().StringVar(&sha, "sha", "", "Expected content SHA (optimistic lock)")
	return c
}

func newUploadCmd() *cobra.Command {
	var message, sha string
	c := &cobra.Command{
		Use:   "upload <path> <local-file>",
		Short: "Upload a binary file, creating it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			data, err := readLocal(args[1])
			if err != nil {
				return err
			}
			if err := client.UploadBinary(ctx, args[0], data, message, sha); err != nil {
				return err
			}
			fmt.Printf("Uploaded %s (%d bytes)\n", args[0], len(data))
			return nil
		},
	}
	c.Flags().StringVarP(&message, "message", "m", "Upload asset", "Commit message")
	c.Flags().StringVar(&sha, "sha", "", "Expected content SHA when replacing an existing file")
	return c
}

func newRmCmd() *cobra.Command {
	var message, sha string
	c := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			if err := client.DeleteFile(ctx, args[0], sha, message); err != nil {
				switch {
				case errors.Is(err, repository.ErrNotFound):
					return fmt.Errorf("%s does not exist", args[0])
				case errors.Is(err, repository.ErrConflict):
					return fmt.Errorf("%s changed since you last read it; reload and retry", args[0])
				}
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
	c.Flags().StringVarP(&message, "message", "m", "Delete content", "Commit message")
	c.Flags().StringVar(&sha, "sha", "", "Expected content SHA (optimistic lock)")
	return c
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Suggest content and image directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			r := render.NewConsoleRenderer()
			r.Directories("Content directories", client.DiscoverContentDirectories(ctx), os.Stdout)
			fmt.Println()
			r.Directories("Image directories", client.DiscoverImageDirectories(ctx), os.Stdout)
			return nil
		},
	}
}

func newSiteURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site-url",
		Short: "Detect the deployed site's base URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			url := client.DiscoverSiteURL(ctx)
			if url == "" {
				fmt.Println("No site URL found.")
				return nil
			}
			fmt.Println(url)
			return nil
		},
	}
}

func newSetupCmd() *cobra.Command {
	var save bool
	c := &cobra.Command{
		Use:   "setup",
		Short: "Initialize repository settings from discovery",
		Long: strings.TrimSpace(`
Load the repository's settings file (` + config.SettingsPath + `), fill any
unset directories from discovery heuristics, and optionally write the result
back to the repository.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRepositoryClient()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			settings, err := config.Load(ctx, client)
			if err != nil {
				return err
			}
			settings.ApplyDiscovery(ctx, client)

			fmt.Printf("Content directory: %s\n", settings.ContentDir)
			fmt.Printf("Images directory:  %s\n", settings.ImagesDir)
			if settings.SiteURL != "" {
				fmt.Printf("Site URL:          %s\n", settings.SiteURL)
			}

			if !save {
				fmt.Printf("\nRun again with --save to write %s\n", config.SettingsPath)
				return nil
			}
			if err := settings.Save(ctx, client, ""); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", config.SettingsPath)
			return nil
		},
	}
	c.Flags().BoolVar(&save, "save", false, "Write the settings file back to the repository")
	return c
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [provider]",
		Short: "Store an access token for a provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := flagProvider
			if len(args) == 1 {
				provider = args[0]
			}

			fmt.Printf("Paste the personal access token for %s: ", provider)
			raw, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read token: %w", err)
			}
			token := strings.TrimSpace(string(raw))
			if token == "" {
				return errors.New("empty token")
			}

			// Verify against the provider before storing anything.
			client, err := repository.NewClient(provider, repository.Config{
				Token:   token,
				BaseURL: flagBaseURL,
			})
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			login, err := client.VerifyToken(ctx)
			if err != nil {
				if errors.Is(err, repository.ErrAuthInvalid) {
					return fmt.Errorf("%s rejected the token; nothing was stored", provider)
				}
				return err
			}

			store, err := state.NewFileCredentialStore("")
			if err != nil {
				return err
			}
			if err := store.SetToken(provider, token); err != nil {
				return err
			}
			fmt.Printf("Logged in to %s as %s (%s)\n", provider, login, state.RedactToken(token))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [provider]",
		Short: "Remove a stored access token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := flagProvider
			if len(args) == 1 {
				provider = args[0]
			}

			store, err := state.NewFileCredentialStore("")
			if err != nil {
				return err
			}
			if err := store.DeleteToken(provider); err != nil {
				return err
			}
			fmt.Printf("Removed token for %s\n", provider)
			return nil
		},
	}
}
