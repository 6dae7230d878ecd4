// Package remote talks to the carbon server's JSON collection API. The
// reconciler treats it as a black box: one reachability probe, one bulk
// download, one bulk upload.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/slatecarbon/slatecarbon/pkg/model"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

// New builds a client for the given server. Transient HTTP failures are
// retried by the underlying client; the reconciler's own retry/backoff only
// sees calls that failed all attempts.
func New(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = defaultTimeout
	rc.Logger = nil
	return &Client{baseURL: baseURL, token: token, http: rc}
}

// Reachable probes the server. Any response to the ping endpoint counts; a
// transport-level failure means offline.
func (c *Client) Reachable(ctx context.Context) bool {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/ping", nil)
	if err != nil {
		return false
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}

// Download fetches the full remote collections in one shot. Partial data is
// never returned: any failure aborts the whole snapshot.
func (c *Client) Download(ctx context.Context) (*model.Snapshot, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/export", nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: server returned %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("download: invalid JSON response")
	}
	root := gjson.ParseBytes(body)

	snap := &model.Snapshot{}
	for _, v := range root.Get("projects").Array() {
		snap.Projects = append(snap.Projects, parseProject(v))
	}
	for _, v := range root.Get("records").Array() {
		snap.Records = append(snap.Records, parseRecord(v))
	}
	for _, v := range root.Get("operational").Array() {
		snap.Operational = append(snap.Operational, parseOperational(v))
	}
	return snap, nil
}

// Upload pushes locally created or edited entities upstream.
func (c *Client) Upload(ctx context.Context, snap model.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/import", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload: server returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) auth(req *retryablehttp.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func parseProject(v gjson.Result) model.Project {
	p := model.Project{
		ID:        v.Get("id").String(),
		Name:      v.Get("name").String(),
		Status:    model.ProjectStatus(v.Get("status").String()),
		Budget:    parseAmount(v.Get("budget")),
		StartDate: parseTime(v.Get("startDate")),
		EndDate:   parseTime(v.Get("endDate")),
		CreatedAt: parseTime(v.Get("createdAt")),
		UpdatedAt: parseTime(v.Get("updatedAt")),
	}
	if targets := v.Get("stageTargets"); targets.IsObject() {
		p.StageTargets = make(map[model.Stage]decimal.Decimal)
		targets.ForEach(func(k, val gjson.Result) bool {
			p.StageTargets[model.Stage(k.String())] = parseAmount(val)
			return true
		})
	}
	return p
}

func parseRecord(v gjson.Result) model.EmissionRecord {
	return model.EmissionRecord{
		ID:         v.Get("id").String(),
		ProjectID:  v.Get("projectId").String(),
		Stage:      model.Stage(v.Get("stage").String()),
		CategoryID: v.Get("categoryId").String(),
		SourceID:   v.Get("sourceId").String(),
		Amount:     parseAmount(v.Get("amount")),
		Quantity:   parseAmount(v.Get("quantity")),
		Unit:       v.Get("unit").String(),
		OccurredOn: parseTime(v.Get("date")),
		CreatedAt:  parseTime(v.Get("createdAt")),
		UpdatedAt:  parseTime(v.Get("updatedAt")),
	}
}

func parseOperational(v gjson.Result) model.OperationalRecord {
	o := model.OperationalRecord{
		ID:          v.Get("id").String(),
		CategoryID:  v.Get("categoryId").String(),
		Amount:      parseAmount(v.Get("amount")),
		Quantity:    parseAmount(v.Get("quantity")),
		OccurredOn:  parseTime(v.Get("date")),
		IsAllocated: v.Get("isAllocated").Bool(),
		CreatedAt:   parseTime(v.Get("createdAt")),
		UpdatedAt:   parseTime(v.Get("updatedAt")),
	}
	if rule := v.Get("allocation"); rule.Exists() {
		o.Rule.Method = model.AllocationMethod(rule.Get("method").String())
		for _, t := range rule.Get("targetProjects").Array() {
			o.Rule.TargetProjects = append(o.Rule.TargetProjects, t.String())
		}
	}
	return o
}

func parseAmount(v gjson.Result) decimal.Decimal {
	if !v.Exists() || v.String() == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTime(v gjson.Result) time.Time {
	if !v.Exists() || v.String() == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return time.Time{}
	}
	return t
}
