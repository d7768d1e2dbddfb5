package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/export"
	"github.com/hazyhaar/sitegen/sitefile"
	"github.com/hazyhaar/sitegen/store"
)

var fixImagesCmd = &cobra.Command{
	Use:   "fix-images [file]",
	Short: "Replace local image references with hosted placeholders",
	Long: `Read an HTML document from a file or standard input, replace image
references that would not resolve on a static host with hosted placeholder
URLs and write the result to standard output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return fixImages(in, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func fixImages(r io.Reader, w, report io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	doc, rewrites := sitefile.FixImageURLsReport(string(data))
	for _, rw := range rewrites {
		fmt.Fprintf(report, "%s: %d\n", rw.Label, rw.Count)
	}
	_, err = io.WriteString(w, doc)
	return err
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Write a project as a deployable ZIP archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		p, err := st.GetProject(ctx, "", args[0])
		if err != nil {
			return err
		}
		files, err := st.Records(ctx, p.ID)
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = export.Filename(p.Name)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		n, err := export.Write(f, export.Site{
			Name:        p.Name,
			Description: p.Description,
			Prompt:      p.Prompt,
			BaseURL:     p.DeployURL,
			Files:       files,
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return err
		}
		slog.Info("exported", "project", p.ID, "entries", n, "file", out)
		return nil
	},
}

var (
	userEmail    string
	userPassword string
	userName     string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a password account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if userEmail == "" || len(userPassword) < 8 {
			return errors.New("--email and a --password of at least 8 characters are required")
		}
		if userRole != auth.RoleUser && userRole != auth.RoleAdmin {
			return fmt.Errorf("--role must be %q or %q", auth.RoleUser, auth.RoleAdmin)
		}
		st, _, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		hash, err := auth.HashPassword(userPassword)
		if err != nil {
			return err
		}
		u := &store.User{Email: userEmail, Name: userName, PasswordHash: hash, Role: userRole}
		if err := st.CreateUser(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete events and metrics older than the retention settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		n, err := applyRetention(cmd.Context(), st, cfg.Retention, slog.Default())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "archive path (default <project-slug>.zip)")

	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "account email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "account password, at least 8 characters")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userRole, "role", auth.RoleUser, "user or admin")
	userCmd.AddCommand(userCreateCmd)

	rootCmd.AddCommand(fixImagesCmd, exportCmd, userCmd, cleanupCmd)
}
