// Package querygatectl is the command-line client for the querygate JSON API.
package querygatectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitRejected = 3
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries the process exit code for failures that happen after
// arguments were accepted. Every other error is a usage error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func fail(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

type runner struct {
	opts     Options
	baseURL  string
	apiKey   string
	timeout  time.Duration
	jsonMode bool
}

// Run executes one command and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	if defaults.Stdout == nil {
		defaults.Stdout = io.Discard
	}
	if defaults.Stderr == nil {
		defaults.Stderr = io.Discard
	}

	r := &runner{opts: defaults}
	root := r.newRootCmd()
	root.SetArgs(args)
	root.SetOut(defaults.Stdout)
	root.SetErr(defaults.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	_, _ = fmt.Fprintln(defaults.Stderr, err.Error())
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	_, _ = fmt.Fprintln(defaults.Stderr, "run 'querygatectl --help' for usage")
	return ExitUsage
}

func (r *runner) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "querygatectl",
		Short:         "Ask a querygate server questions about its database",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return errors.New("a command is required")
		},
	}
	cmd.PersistentFlags().StringVar(&r.baseURL, "base-url", firstNonEmpty(r.opts.BaseURL, "http://localhost:8080"), "querygate API base URL")
	cmd.PersistentFlags().StringVar(&r.apiKey, "api-key", r.opts.APIKey, "API key for authenticated requests")
	cmd.PersistentFlags().DurationVar(&r.timeout, "timeout", durationOr(r.opts.Timeout, 90*time.Second), "HTTP timeout (e.g. 30s)")

	cmd.AddCommand(r.newAskCmd())
	cmd.AddCommand(r.newGetCmd("schema", "Print the schema summary the model sees", "/v1/schema"))
	cmd.AddCommand(r.newGetCmd("health", "Check that the server is up", "/v1/health"))
	cmd.AddCommand(r.newGetCmd("ready", "Check that the server can reach its database", "/v1/ready"))
	return cmd
}

func (r *runner) newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Translate a question to SQL, run it and print the rows",
		Long: `Send a natural-language question to the server. Accepted questions print the
generated SQL and the resulting rows. Rejected questions exit with status 3.

Example:
  querygatectl ask how many customers signed up last month`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runAsk(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&r.jsonMode, "json", false, "print the raw JSON response")
	return cmd
}

func (r *runner) newGetCmd(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.runGet(cmd.Context(), cmd.OutOrStdout(), name, path)
		},
	}
}

type askResponse struct {
	Verdict   string           `json:"verdict"`
	Reason    string           `json:"reason"`
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Records   []map[string]any `json:"records"`
	Truncated bool             `json:"truncated"`
	Message   string           `json:"message"`
}

func (r *runner) runAsk(ctx context.Context, out io.Writer, question string) error {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return fail(ExitFailure, "encode request: %v", err)
	}
	code, body, err := r.do(ctx, http.MethodPost, "/v1/ask", payload)
	if err != nil {
		return fail(ExitFailure, "request failed: %v", err)
	}

	if code == http.StatusUnprocessableEntity {
		var resp askResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fail(ExitFailure, "decode response: %v", err)
		}
		if r.jsonMode {
			writePretty(out, body)
		}
		return fail(ExitRejected, "rejected (%s): %s", resp.Reason, resp.Message)
	}
	if code >= 400 {
		return fail(ExitFailure, "http %d: %s", code, strings.TrimSpace(string(body)))
	}
	if r.jsonMode {
		writePretty(out, body)
		return nil
	}

	var resp askResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&resp); err != nil {
		return fail(ExitFailure, "decode response: %v", err)
	}
	return renderAnswer(out, resp)
}

func (r *runner) runGet(ctx context.Context, out io.Writer, name, path string) error {
	code, body, err := r.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fail(ExitFailure, "request failed: %v", err)
	}
	if code >= 400 {
		return fail(ExitFailure, "http %d: %s", code, strings.TrimSpace(string(body)))
	}
	if name == "schema" {
		var resp struct {
			Schema string `json:"schema"`
		}
		if err := json.Unmarshal(body, &resp); err == nil {
			_, _ = fmt.Fprint(out, resp.Schema)
			return nil
		}
	}
	writePretty(out, body)
	return nil
}

func (r *runner) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	client := r.opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: r.timeout}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.baseURL, "/")+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(r.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func renderAnswer(out io.Writer, resp askResponse) error {
	_, _ = fmt.Fprintf(out, "SQL: %s\n\n", resp.SQL)
	if len(resp.Records) == 0 {
		_, _ = fmt.Fprintln(out, "No rows returned.")
		return nil
	}

	data := pterm.TableData{resp.Columns}
	for _, record := range resp.Records {
		row := make([]string, len(resp.Columns))
		for i, column := range resp.Columns {
			if value := record[column]; value != nil {
				row[i] = fmt.Sprint(value)
			} else {
				row[i] = "NULL"
			}
		}
		data = append(data, row)
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fail(ExitFailure, "render table: %v", err)
	}
	_, _ = fmt.Fprintln(out, table)

	summary := fmt.Sprintf("%d rows", len(resp.Records))
	if resp.Truncated {
		summary += " (truncated)"
	}
	_, _ = fmt.Fprintln(out, summary)
	return nil
}

func writePretty(w io.Writer, raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(w, string(raw))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
