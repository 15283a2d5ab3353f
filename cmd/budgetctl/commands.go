package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zapgastos/internal/logger"
	"zapgastos/internal/middleware"
	"zapgastos/internal/models"
	"zapgastos/internal/uuid"
)

const auditSource = "budgetctl"

func printJSON(e *env, v interface{}) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withEnv opens the database, runs fn and releases it.
func withEnv(open opener, fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(cmd, args, e)
	}
}

// parseAsOf reads an RFC 3339 instant or a YYYY-MM-DD date in the configured
// timezone. Empty means now.
func parseAsOf(raw string, e *env) (time.Time, error) {
	if raw == "" {
		return e.now(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, e.loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --as-of %q: use RFC 3339 or YYYY-MM-DD", raw)
}

func requireUser(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("--user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid --user: %w", err)
	}
	return id, nil
}

func recomputeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every period total from the transaction ledger",
		Long: `Recompute walks active budgets, makes sure each has a current period
and recalculates spent and status for every materialized period. One budget
failing does not stop the run; failures are listed in the summary.`,
		Args: cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			var userID *string
			if raw, _ := cmd.Flags().GetString("user"); raw != "" {
				id, err := requireUser(raw)
				if err != nil {
					return err
				}
				userID = &id
			}
			asOf, err := parseAsOf(mustString(cmd, "as-of"), e)
			if err != nil {
				return err
			}

			summary, err := e.svc.Reconciliation.RecomputeAll(userID, asOf)
			if err != nil {
				return err
			}
			e.svc.Audit.Log(models.SystemUserID, "RECALCULATE_BUDGETS", "budget", "", auditSource, map[string]interface{}{
				"user_id":         userID,
				"budgets_updated": summary.BudgetsUpdated,
				"periods_updated": summary.PeriodsUpdated,
				"failed":          summary.Failed,
			})
			if err := printJSON(e, summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d budget(s) failed to reconcile", summary.Failed)
			}
			return nil
		}),
	}
	cmd.Flags().String("user", "", "Only reconcile this user's budgets")
	cmd.Flags().String("as-of", "", "Reference instant (default now)")
	return cmd
}

func rolloverCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Finalize elapsed periods and open upcoming ones",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			asOf, err := parseAsOf(mustString(cmd, "as-of"), e)
			if err != nil {
				return err
			}
			summary, err := e.svc.Reconciliation.Rollover(asOf)
			if err != nil {
				return err
			}
			e.svc.Audit.Log(models.SystemUserID, "ROLLOVER_PERIODS", "budget_period", "", auditSource, map[string]interface{}{
				"as_of":             asOf,
				"periods_finalized": summary.PeriodsFinalized,
				"periods_created":   summary.PeriodsCreated,
			})
			if len(summary.Errors) > 0 {
				logger.Get().Warnw("rollover finished with errors", "errors", len(summary.Errors))
			}
			return printJSON(e, summary)
		}),
	}
	cmd.Flags().String("as-of", "", "Reference instant (default now)")
	return cmd
}

func alertsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List periods over their alert threshold that were not notified yet",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			userID, err := requireUser(mustString(cmd, "user"))
			if err != nil {
				return err
			}
			alerts, err := e.svc.Periods.ListAlertablePeriods(userID)
			if err != nil {
				return err
			}
			return printJSON(e, alerts)
		}),
	}
	cmd.Flags().String("user", "", "User to inspect (required)")
	return cmd
}

func markAlertSentCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-alert-sent [period-id]",
		Short: "Record that a period's alert was delivered",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(open, func(_ *cobra.Command, args []string, e *env) error {
			periodID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid period id: %w", err)
			}
			if err := e.svc.Periods.MarkAlertSent(periodID); err != nil {
				return err
			}
			e.svc.Audit.Log(models.SystemUserID, "MARK_ALERT_SENT", "budget_period", periodID, auditSource, nil)
			fmt.Fprintf(e.out, "alert marked as sent for period %s\n", periodID)
			return nil
		}),
	}
}

func apiKeyCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage machine API keys",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plain-text key is printed once",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			userID, err := requireUser(mustString(cmd, "user"))
			if err != nil {
				return err
			}
			rawScopes, _ := cmd.Flags().GetStringSlice("scopes")
			scopes := make([]models.APIKeyScope, 0, len(rawScopes))
			for _, s := range rawScopes {
				scopes = append(scopes, models.APIKeyScope(strings.TrimSpace(s)))
			}

			var expiresAt *time.Time
			if ttl, _ := cmd.Flags().GetDuration("expires"); ttl > 0 {
				t := e.now().Add(ttl)
				expiresAt = &t
			}

			key, raw, err := e.svc.APIKeys.CreateAPIKey(userID, mustString(cmd, "name"), scopes, expiresAt)
			if err != nil {
				return err
			}
			e.svc.Audit.Log(userID, "CREATE_API_KEY", "api_key", key.ID, auditSource, map[string]interface{}{
				"scopes": key.Scopes,
			})
			return printJSON(e, map[string]interface{}{"api_key": key, "key": raw})
		}),
	}
	create.Flags().String("user", "", "Owner of the key (required)")
	create.Flags().String("name", "", "Label shown in key listings")
	create.Flags().StringSlice("scopes", []string{string(models.ScopeTransactions), string(models.ScopeBudgets)}, "transactions, budgets, system")
	create.Flags().Duration("expires", 0, "Lifetime, e.g. 720h (default never)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's keys",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			userID, err := requireUser(mustString(cmd, "user"))
			if err != nil {
				return err
			}
			keys, err := e.svc.APIKeys.ListAPIKeys(userID)
			if err != nil {
				return err
			}
			return printJSON(e, keys)
		}),
	}
	list.Flags().String("user", "", "Owner of the keys (required)")

	cmd.AddCommand(create, list)
	return cmd
}

// tokenCmd mints a bearer token for local testing. It only needs JWT_SECRET.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := requireUser(mustString(cmd, "user"))
			if err != nil {
				return err
			}
			token, err := middleware.GenerateAccessToken(userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "Subject of the token (required)")
	return cmd
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
