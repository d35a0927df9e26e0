package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/tripleledger/internal/infrastructure/logger"
	"github.com/iho/tripleledger/internal/infrastructure/postgres"
)

// apiClient calls the tripleledger HTTP API.
type apiClient struct {
	baseURL string
	actor   string
	http    *http.Client
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("request failed (status %d): %s", e.Status, e.Body)
}

func (c *apiClient) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actor != "" {
		req.Header.Set("X-Actor-ID", c.actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// call performs a request and fails on any non-2xx status.
func (c *apiClient) call(method, path string, body any) ([]byte, error) {
	data, status, err := c.do(method, path, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &apiError{Status: status, Body: string(data)}
	}
	return data, nil
}

func companyPath(company, rest string) string {
	return "/api/v1/companies/" + url.PathEscape(company) + rest
}

// printJSON re-indents a JSON document.
func printJSON(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
		actor   string
		company string
	)

	client := &apiClient{}

	rootCmd := &cobra.Command{
		Use:           "tripleledger-cli",
		Short:         "TripleLedger CLI tool",
		Long:          `A command line interface for the TripleLedger bookkeeping API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client.baseURL = baseURL
			client.actor = actor
			client.http = &http.Client{Timeout: timeout}
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the TripleLedger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", os.Getenv("TRIPLELEDGER_ACTOR"), "Actor id sent as X-Actor-ID")
	rootCmd.PersistentFlags().StringVar(&company, "company", "", "Company id")

	// Ledger commands
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}
	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, status, err := client.do(http.MethodGet, companyPath(company, "/ledger/consistency"), nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK && status != http.StatusConflict {
				return &apiError{Status: status, Body: string(data)}
			}

			var result struct {
				Status     string `json:"status"`
				Consistent bool   `json:"consistent"`
			}
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if !result.Consistent {
				_ = printJSON(cmd.OutOrStdout(), data)
				return fmt.Errorf("consistency check FAILED")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Consistency check PASSED\nStatus: %s\n", result.Status)
			return nil
		},
	})

	// Books close commands
	booksCloseCmd := &cobra.Command{
		Use:   "books-close",
		Short: "Books close runs",
	}
	var period string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run books close for a fiscal period",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client.call(http.MethodPost, companyPath(company, "/periods/"+url.PathEscape(period)+"/books-close"), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	runCmd.Flags().StringVar(&period, "period", "", "Fiscal period id")
	_ = runCmd.MarkFlagRequired("period")
	booksCloseCmd.AddCommand(runCmd)

	// Anomaly commands
	anomaliesCmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Anomaly review",
	}
	anomaliesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List unresolved anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client.call(http.MethodGet, companyPath(company, "/anomalies"), nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	})
	var status, note string
	resolveCmd := &cobra.Command{
		Use:   "resolve <anomaly-id>",
		Short: "Review, resolve or dismiss an anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"status": status, "note": note}
			data, err := client.call(http.MethodPost, companyPath(company, "/anomalies/"+url.PathEscape(args[0])+"/resolve"), body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		},
	}
	resolveCmd.Flags().StringVar(&status, "status", "resolved", "Target status: reviewed, resolved or dismissed")
	resolveCmd.Flags().StringVar(&note, "note", "", "Review note")
	anomaliesCmd.AddCommand(resolveCmd)

	// Audit commands
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit chain",
	}
	var from, to int64
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if from > 0 {
				q.Set("from", strconv.FormatInt(from, 10))
			}
			if to > 0 {
				q.Set("to", strconv.FormatInt(to, 10))
			}
			path := companyPath(company, "/audit/verify")
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			data, err := client.call(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			var report struct {
				Valid bool `json:"valid"`
			}
			if err := json.Unmarshal(data, &report); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if err := printJSON(cmd.OutOrStdout(), data); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("audit chain is broken")
			}
			return nil
		},
	}
	verifyCmd.Flags().Int64Var(&from, "from", 0, "First sequence to verify")
	verifyCmd.Flags().Int64Var(&to, "to", 0, "Last sequence to verify (0 = head)")
	auditCmd.AddCommand(verifyCmd)

	rootCmd.AddCommand(ledgerCmd, booksCloseCmd, anomaliesCmd, auditCmd, newMigrateCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL, path string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	migrateCmd.PersistentFlags().StringVar(&path, "path", "migrations", "Migrations directory")

	migrator := func() *postgres.Migrator {
		return postgres.NewMigrator(databaseURL, path, logger.New(logger.Config{Level: "info", Format: "console"}))
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrator().Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrator().Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				version, dirty, err := migrator().Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)
	return migrateCmd
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
