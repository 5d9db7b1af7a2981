// Package main provides a CLI that checks connectivity to the configured
// storage provider and lists what the server would expose.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/config"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider/factory"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/serving"
)

func main() {
	limit := flag.Int("n", 5, "Maximum folders and files to list per folder")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	verbose := flag.Bool("v", false, "Log provider calls")
	flag.Parse()

	if *verbose {
		logging.Init(logging.Config{Level: "debug", Format: "console", OutputPath: "stderr"})
	} else {
		logging.InitNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := check(ctx, os.Stdout, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "\nFAILED: %v\n", err)
		if h := hint(err); h != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", h)
		}
		os.Exit(1)
	}
}

func check(ctx context.Context, out io.Writer, limit int) error {
	fmt.Fprintln(out, "1. Reading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "   provider: %s\n", cfg.Provider)
	if email := serviceAccountEmail(cfg.GoogleServiceAccountJSON); email != "" {
		fmt.Fprintf(out, "   service account: %s\n", email)
	}

	fmt.Fprintln(out, "\n2. Connecting...")
	client, err := factory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	fmt.Fprintln(out, "\n3. Listing root...")
	return list(ctx, out, client, limit)
}

// list prints up to limit folders under the root and up to limit PDFs in each.
func list(ctx context.Context, out io.Writer, client provider.Client, limit int) error {
	folders, err := client.ListChildFolders(ctx, client.Root())
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	if len(folders) == 0 {
		fmt.Fprintln(out, "   Connected, but the root folder has no sub-folders.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "   FOLDER\tFILE\tSIZE\n")
	for i, folder := range folders {
		if i == limit {
			fmt.Fprintf(tw, "   ... %d more folders\t\t\n", len(folders)-limit)
			break
		}
		files, err := client.ListChildFiles(ctx, folder.ID, provider.MimePDF)
		if err != nil {
			return fmt.Errorf("list files in %q: %w", folder.Name, err)
		}
		if len(files) == 0 {
			fmt.Fprintf(tw, "   %s\t(no PDFs)\t\n", folder.Name)
			continue
		}
		for j, f := range files {
			if j == limit {
				fmt.Fprintf(tw, "   %s\t... %d more\t\n", folder.Name, len(files)-limit)
				break
			}
			fmt.Fprintf(tw, "   %s\t%s\t%s\n", folder.Name, f.Name, serving.FormatSize(f.Size))
		}
	}
	return nil
}

func serviceAccountEmail(creds []byte) string {
	var sa struct {
		ClientEmail string `json:"client_email"`
	}
	if len(creds) == 0 || json.Unmarshal(creds, &sa) != nil {
		return ""
	}
	return sa.ClientEmail
}

func hint(err error) string {
	switch {
	case errors.Is(err, config.ErrConfiguration):
		return "check your environment or .env file; GOOGLE_SERVICE_ACCOUNT_JSON must be the key file content on a single line."
	case errors.Is(err, provider.ErrNotFound):
		return "the service account cannot see the root folder. Share it with the service account email shown above."
	case errors.Is(err, provider.ErrPermissionDenied):
		return "access was refused. Make sure the Drive API is enabled for the project and the key has not been revoked."
	case errors.Is(err, provider.ErrTransient):
		return "the provider is unreachable or rate limiting; try again shortly."
	default:
		return ""
	}
}
