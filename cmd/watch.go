package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Builder-Lawyers/site-provisioner/pkg/client"
	"github.com/spf13/cobra"
)

// Watch follows an installation until it finishes. With --retry-failed the failed
// steps are restarted first.
//
// Flags:
//
//	--api: base URL of the provisioner API
//	--interval: poll interval
//	--domain, --admin-email, --admin-password: credentials stored on finalize
func Watch() *cobra.Command {
	var (
		apiURL      string
		interval    time.Duration
		retryFailed bool
		creds       client.FinalizeRequest
	)

	cmd := &cobra.Command{
		Use:   "watch <installation-id>",
		Short: "Follow an installation's progress and finalize it",
		Long: `Poll the step ledger of an installation until every provisioning step is
terminal. On full success the installation is finalized with the given
credentials; otherwise it is marked failed.

Examples:
  # Follow installation 42
  provisioner watch 42 --domain blog.example.com --admin-email a@example.com --admin-password secret

  # Retry failed steps and follow
  provisioner watch 42 --retry-failed --domain blog.example.com --admin-email a@example.com --admin-password secret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint64
			if _, err := fmt.Sscan(args[0], &id); err != nil || id == 0 {
				return fmt.Errorf("invalid installation id %q", args[0])
			}
			if err := validateCredentials(creds); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), client.New(apiURL), id, interval, retryFailed, creds)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080", "Provisioner API base URL")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultInterval, "Poll interval")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Restart failed steps before watching")
	cmd.Flags().StringVar(&creds.Domain, "domain", "", "Domain stored on finalize")
	cmd.Flags().StringVar(&creds.AdminEmail, "admin-email", "", "Admin email stored on finalize")
	cmd.Flags().StringVar(&creds.AdminPassword, "admin-password", "", "Admin password stored on finalize")

	return cmd
}

func watch(ctx context.Context, out io.Writer, backend client.Backend, id uint64, interval time.Duration, retryFailed bool, creds client.FinalizeRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	poller := client.NewPoller(backend, id, client.PollerConfig{
		Interval:    interval,
		Credentials: creds,
		OnUpdate: func(s client.Snapshot) {
			printSnapshot(out, s)
			if !s.Active {
				cancel()
			}
		},
	})
	if retryFailed {
		if err := poller.RetryAllFailed(ctx); err != nil {
			fmt.Fprintf(out, "some steps could not be restarted: %v\n", err)
		}
	}

	err := poller.Run(ctx)
	final := poller.Snapshot()
	switch {
	case final.Finalized:
		return nil
	case final.Failed:
		return errors.New("installation failed")
	case final.Err != nil && !final.Active:
		return final.Err
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// validateCredentials rejects missing finalize credentials up front; the server
// refuses to finalize without them.
func validateCredentials(creds client.FinalizeRequest) error {
	var missing []string
	if creds.Domain == "" {
		missing = append(missing, "--domain")
	}
	if creds.AdminEmail == "" {
		missing = append(missing, "--admin-email")
	}
	if creds.AdminPassword == "" {
		missing = append(missing, "--admin-password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func printSnapshot(out io.Writer, s client.Snapshot) {
	fmt.Fprintf(out, "installation %d: %d/%d steps (%d%%)\n", s.InstallationID, s.Progress.Completed, s.Progress.Total, s.Progress.Percent())
	for _, st := range s.Steps {
		if st.Type == client.StepPreInstallation {
			continue
		}
		line := fmt.Sprintf("  %-17s %s", st.Type, st.Status)
		if st.ErrorMessage != nil && st.Status == client.StatusFailed {
			line += ": " + *st.ErrorMessage
		}
		fmt.Fprintln(out, line)
	}
	switch {
	case s.Err != nil:
		fmt.Fprintf(out, "  error: %v\n", s.Err)
	case s.Finalized:
		fmt.Fprintln(out, "  installation completed")
	case s.Failed:
		fmt.Fprintf(out, "  installation failed at %s\n", s.Progress.FirstFailed.Type)
	}
}
