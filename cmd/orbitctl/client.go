package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/orbitflash/internal/domain"
	"github.com/alanyoungcy/orbitflash/internal/engine"
	"github.com/alanyoungcy/orbitflash/internal/units"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func newClient(base, key string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func render(out io.Writer, header []any, rows [][]any) error {
	table := tablewriter.NewWriter(out)
	table.Header(header...)
	for _, r := range rows {
		if err := table.Append(r...); err != nil {
			return err
		}
	}
	return table.Render()
}

func (c *client) status(ctx context.Context, out io.Writer) error {
	var s struct {
		Mode          string         `json:"mode"`
		UptimeSeconds int64          `json:"uptimeSeconds"`
		Strategy      *engine.Health `json:"strategy"`
		BufferedPairs *int           `json:"bufferedPairs"`
		Contract      string         `json:"contractAddress"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &s); err != nil {
		return err
	}
	rows := [][]any{
		{"mode", s.Mode},
		{"uptime", (time.Duration(s.UptimeSeconds) * time.Second).String()},
	}
	if s.Contract != "" {
		rows = append(rows, []any{"contract", s.Contract})
	}
	if s.BufferedPairs != nil {
		rows = append(rows, []any{"buffered pairs", *s.BufferedPairs})
	}
	if h := s.Strategy; h != nil {
		rows = append(rows,
			[]any{"engine running", h.Running},
			[]any{"queue size", h.QueueSize},
			[]any{"admitted", h.Admitted},
			[]any{"rejected", h.Rejected},
			[]any{"dispatched", h.Dispatched},
		)
	}
	return render(out, []any{"Field", "Value"}, rows)
}

func (c *client) queue(ctx context.Context, out io.Writer, urgency string) error {
	path := "/api/queue"
	if urgency != "" {
		path += "?urgency=" + url.QueryEscape(urgency)
	}
	var resp struct {
		Entries []domain.ScheduledEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	rows := make([][]any, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		o := e.Opportunity
		rows = append(rows, []any{
			o.ID, o.Urgency, e.Score.Priority, strconv.FormatFloat(e.Score.TotalScore, 'f', 3, 64),
			units.FormatEther(o.ExpectedProfit), strings.Join(o.Venues, ">"), e.RetryCount,
		})
	}
	return render(out, []any{"ID", "Urgency", "Priority", "Score", "Profit (ETH)", "Venues", "Retries"}, rows)
}

func (c *client) clearQueue(ctx context.Context, out io.Writer) error {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/queue", nil, &resp); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "cleared %d queued opportunities\n", resp.Cleared)
	return err
}

func (c *client) gas(ctx context.Context, out io.Writer) error {
	var recs map[string]struct {
		Wei  string `json:"wei"`
		Gwei string `json:"gwei"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/gas/recommendations", nil, &recs); err != nil {
		return err
	}
	var rows [][]any
	for _, u := range []domain.Urgency{domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh} {
		if r, ok := recs[string(u)]; ok {
			rows = append(rows, []any{u, r.Gwei, r.Wei})
		}
	}
	return render(out, []any{"Urgency", "Gwei", "Wei"}, rows)
}

type blacklistResponse struct {
	Tokens []string `json:"tokens"`
	Venues []string `json:"venues"`
}

// blacklist sends method to path and renders the returned blacklist.
func (c *client) blacklist(ctx context.Context, out io.Writer, method, path string) error {
	var bl blacklistResponse
	if err := c.do(ctx, method, path, nil, &bl); err != nil {
		return err
	}
	rows := make([][]any, 0, len(bl.Tokens)+len(bl.Venues))
	for _, t := range bl.Tokens {
		rows = append(rows, []any{"token", t})
	}
	for _, v := range bl.Venues {
		rows = append(rows, []any{"venue", v})
	}
	return render(out, []any{"Kind", "Value"}, rows)
}

func (c *client) editBlacklist(ctx context.Context, out io.Writer, cmd, value string) error {
	method := http.MethodPost
	if strings.HasPrefix(cmd, "unblock-") {
		method = http.MethodDelete
	}
	kind := "tokens"
	if strings.HasSuffix(cmd, "-venue") {
		kind = "venues"
	}
	return c.blacklist(ctx, out, method, "/api/blacklist/"+kind+"/"+url.PathEscape(value))
}

func (c *client) contract(ctx context.Context, out io.Writer) error {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/dispatch/contract", nil, &resp); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, resp.Address)
	return err
}

func (c *client) setContract(ctx context.Context, out io.Writer, addr string) error {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, http.MethodPut, "/api/dispatch/contract", map[string]string{"address": addr}, &resp); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "contract set to %s\n", resp.Address)
	return err
}

func (c *client) audit(ctx context.Context, out io.Writer, event string) error {
	path := "/api/audit?limit=50"
	if event != "" {
		path += "&event=" + url.QueryEscape(event)
	}
	var resp struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	rows := make([][]any, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		rows = append(rows, []any{e.ID, e.CreatedAt.Format(time.RFC3339), e.Event, summarize(e.Detail)})
	}
	return render(out, []any{"ID", "Time", "Event", "Detail"}, rows)
}

func (c *client) executions(ctx context.Context, out io.Writer) error {
	var resp struct {
		Executions []domain.AuditLog `json:"executions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/executions?limit=50", nil, &resp); err != nil {
		return err
	}
	rows := make([][]any, 0, len(resp.Executions))
	for _, x := range resp.Executions {
		tx := "-"
		if x.TransactionHash != nil {
			tx = *x.TransactionHash
		}
		rows = append(rows, []any{
			x.Timestamp.Format(time.RFC3339), x.OpportunityID, x.ExecutionResult.Success,
			units.FormatEther(x.ProfitRealized), tx,
		})
	}
	return render(out, []any{"Time", "Opportunity", "Success", "Profit (ETH)", "Tx"}, rows)
}

// summarize flattens a detail map into "k=v" pairs in key order.
func summarize(detail map[string]any) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := detail[k]
		switch v.(type) {
		case map[string]any, []any:
			data, _ := json.Marshal(v)
			parts = append(parts, k+"="+string(data))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	s := strings.Join(parts, " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
