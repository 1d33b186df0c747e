package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"docreg/internal/config"
	"docreg/internal/registration"
	"docreg/internal/storage/sqlite"
)

func newRequestsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Review registration requests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every registration request",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withService(cmd, func(svc *registration.Service) error {
					summaries, err := svc.ListAll(cmd.Context())
					if err != nil {
						return fmt.Errorf("list requests: %w", err)
					}
					return printSummaries(cmd.OutOrStdout(), summaries)
				})
			},
		},
		newOperateCmd(a, "approve", registration.StatusApproved),
		newOperateCmd(a, "reject", registration.StatusRejected),
	)
	return cmd
}

func newOperateCmd(a *app, verb string, status registration.Status) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark a pending request %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(svc *registration.Service) error {
				operatedAt, err := svc.UpdateStatus(cmd.Context(), args[0], status)
				if err != nil {
					return fmt.Errorf("%s %s: %w", verb, args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s at %s\n",
					status, args[0], operatedAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

// withService opens the database for the lifetime of fn
func (a *app) withService(cmd *cobra.Command, fn func(svc *registration.Service) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr())

	db, err := a.openDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(newService(db, cfg, registration.Options{}, logger))
}

func newService(db *sqlite.DB, cfg *config.Config, opts registration.Options, logger *slog.Logger) *registration.Service {
	opts.DefaultRole = cfg.Registration.DefaultRole
	return registration.NewService(db, opts, logger)
}

func printSummaries(out io.Writer, summaries []registration.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSTORAGE\tSUBMITTED\tSTATUS\tOPERATED")
	for _, s := range summaries {
		operated := "-"
		if s.OperatedTime != nil {
			operated = s.OperatedTime.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.ID, s.Username, s.Email, s.StorageQuota,
			s.SubmitTime.Format(time.RFC3339), s.Status, operated)
	}
	return w.Flush()
}
