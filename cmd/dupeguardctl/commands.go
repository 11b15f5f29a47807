package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentworkforce/dupeguard/internal/dupes"
	"github.com/agentworkforce/dupeguard/internal/httpapi"
	"github.com/agentworkforce/dupeguard/internal/settings"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	okColor     = color.New(color.FgGreen).SprintFunc()
	warnColor   = color.New(color.FgYellow).SprintFunc()
	failColor   = color.New(color.FgRed).SprintFunc()
	dimColor    = color.New(color.FgHiBlack).SprintFunc()
)

func newScanCmd(opts *rootOptions) *cobra.Command {
	var days int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan recent orders for duplicate phone numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.scanner.RunBatch(cmd.Context(), rt.settings.Get(), dupes.BatchOptions{SearchDays: days, DryRun: dryRun})
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rt.mode, report)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "search window in days (default: settings value)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report duplicates without touching orders")
	return cmd
}

func printReport(out io.Writer, mode string, report *dupes.Report) {
	fmt.Fprintf(out, "\n%s\n", headerColor("=== Duplicate scan ==="))
	fmt.Fprintf(out, "  Source:  %s\n", mode)
	fmt.Fprintf(out, "  Window:  %s .. %s (%d days)\n",
		report.WindowStart.Format("2006-01-02 15:04"), report.WindowEnd.Format("2006-01-02 15:04"), report.SearchDays)
	fmt.Fprintf(out, "  Orders:  %d scanned\n", report.OrdersScanned)
	fmt.Fprintf(out, "  Phones:  %d shared, %d with an unfulfilled order\n", report.PhoneGroups, report.GroupsFound)
	if report.DryRun {
		fmt.Fprintf(out, "  %s\n", warnColor("dry run: no orders were changed"))
	}
	fmt.Fprintln(out)

	if len(report.Decisions) == 0 {
		fmt.Fprintf(out, "  %s\n", dimColor("No duplicate orders found"))
		return
	}
	failed := map[string]bool{}
	for _, id := range report.FailedIDs {
		failed[id] = true
	}
	for _, decision := range report.Decisions {
		icon := okColor("●")
		if failed[decision.CanonicalID] {
			icon = failColor("✗")
		}
		fmt.Fprintf(out, "  %s %s  %s  matches %s\n", icon, decision.CanonicalName, dimColor(string(decision.Phone)),
			strings.Join(decision.DuplicateNames, ", "))
	}
	fmt.Fprintf(out, "\n  Total: %s duplicate groups", okColor(strconv.Itoa(len(report.Decisions))))
	if len(report.Failed) > 0 {
		fmt.Fprintf(out, ", %s with failed steps", failColor(strconv.Itoa(len(report.Failed))))
	}
	fmt.Fprintln(out)
	if len(report.Failed) > 0 {
		fmt.Fprintf(out, "  Not fully remediated: %s\n", failColor(strings.Join(report.Failed, ", ")))
	}
}

func newReopenCmd(opts *rootOptions) *cobra.Command {
	var keepTag bool
	cmd := &cobra.Command{
		Use:   "reopen ORDER_ID",
		Short: "Reopen a canceled duplicate and remove the duplicate tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			orderID := strings.TrimSpace(args[0])
			err = rt.scanner.Reverse(cmd.Context(), rt.settings.Get(), orderID, !keepTag)
			var reversal *dupes.ReversalError
			if errors.As(err, &reversal) {
				for _, step := range reversal.Steps {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s: %v\n", failColor("✗"), step.Step, step.Err)
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s order %s reopened\n", okColor("✓"), orderID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepTag, "keep-tag", false, "leave the duplicate tag on the order")
	return cmd
}

func newCanceledCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "canceled",
		Short: "List canceled orders that still carry the duplicate tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			orders, err := rt.scanner.CanceledDuplicates(cmd.Context(), rt.settings.Get())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", headerColor("Canceled duplicates"))
			if len(orders) == 0 {
				fmt.Fprintf(out, "  %s\n", dimColor("none"))
				return nil
			}
			for _, order := range orders {
				canceledAt := ""
				if order.CancelledAt != nil {
					canceledAt = order.CancelledAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "  %s  %-8s %-16s %s\n", order.ID, order.Name, dupes.PhoneKeyOf(order), dimColor(canceledAt))
			}
			return nil
		},
	}
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change detector settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return printSettings(cmd.OutOrStdout(), rt.settings.Get())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "set KEY=VALUE...",
		Short:   "Change one or more settings",
		Example: "  dupeguardctl settings set searchDays=30 autoCancel=false",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := patchFromArgs(args)
			if err != nil {
				return err
			}
			rt, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			updated, err := rt.settings.Update(cmd.Context(), patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s settings saved\n", okColor("✓"))
			return printSettings(cmd.OutOrStdout(), updated)
		},
	})
	return cmd
}

// patchFromArgs turns key=value pairs into a settings patch, validated by
// the same schema the HTTP API uses.
func patchFromArgs(args []string) (settings.Patch, error) {
	fields := map[string]any{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return settings.Patch{}, fmt.Errorf("expected KEY=VALUE, got %q", arg)
		}
		switch key {
		case "searchDays":
			days, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return settings.Patch{}, fmt.Errorf("searchDays: %w", err)
			}
			fields[key] = days
		case "autoCancel", "webhookEnabled":
			flag, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return settings.Patch{}, fmt.Errorf("%s: %w", key, err)
			}
			fields[key] = flag
		default:
			fields[key] = raw
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return settings.Patch{}, err
	}
	return settings.DecodePatch(data)
}

func printSettings(out io.Writer, current dupes.Settings) error {
	data, err := yaml.Marshal(settingsYAML{
		SearchDays:     current.SearchDays,
		TagName:        current.TagName,
		TagColor:       current.TagColor,
		AutoCancel:     &current.AutoCancel,
		WebhookEnabled: &current.WebhookEnabled,
	})
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			token, err := httpapi.IssueAdminToken(cfg.AdminSecret, subject, ttl, opts.now())
			if err != nil {
				return fmt.Errorf("%w (set admin_secret or DUPEGUARD_ADMIN_JWT_SECRET)", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dupeguardctl", "token subject, used as the rate limit key")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
