// Package webhooks posts a run digest to the configured notification URLs.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lherron/dirsync/internal/plan"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4

	// DigestLimit caps the named changes listed per section.
	DigestLimit = 5
)

// Payload is the webhook body for a finished run.
type Payload struct {
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	RunID       string      `json:"run_id"`
	PlanRev     string      `json:"plan_rev"`
	Departments plan.Counts `json:"departments"`
	Users       plan.Counts `json:"users"`
	Failures    int         `json:"failures"`
}

// Notifier dispatches run digests.
type Notifier struct {
	URLs    []string
	Client  *http.Client
	Workers int
	Log     logrus.FieldLogger
}

// New creates a notifier with the default timeout and worker count. URLs are
// normalized and de-duplicated; invalid ones are dropped with a warning.
// {run_id} in a URL is replaced at dispatch time.
func New(urls []string, log logrus.FieldLogger) *Notifier {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Notifier{
		URLs:    urls,
		Client:  &http.Client{Timeout: defaultTimeout},
		Workers: defaultConcurrency,
		Log:     log,
	}
}

// BuildPayload renders the digest of an apply run. ok is false when the run
// changed nothing, in which case no notification is sent.
func BuildPayload(s *plan.Summary) (Payload, bool) {
	if s.Mode != plan.ModeApply || !s.HasChanges() {
		return Payload{}, false
	}
	return Payload{
		Title:       "Directory sync finished",
		Content:     strings.Join(plan.Digest(s, DigestLimit), "\n"),
		RunID:       s.RunID,
		PlanRev:     s.PlanRev,
		Departments: s.Departments,
		Users:       s.Users,
		Failures:    len(s.Failures),
	}, true
}

// Notify posts the run digest to every URL. Delivery failures are logged,
// never returned: a notification must not fail a sync. It returns the number
// of endpoints that accepted the payload.
func (n *Notifier) Notify(ctx context.Context, s *plan.Summary) int {
	payload, ok := BuildPayload(s)
	if !ok {
		return 0
	}
	urls := normalizeWebhookURLs(n.URLs, payload, n.Log)
	if len(urls) == 0 {
		return 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.Log.WithError(err).Warn("webhooks: failed to encode payload")
		return 0
	}

	workers := n.Workers
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if len(urls) < workers {
		workers = len(urls)
	}

	var (
		mu        sync.Mutex
		delivered int
	)
	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				if err := n.send(ctx, endpoint, body); err != nil {
					n.Log.WithField("url", endpoint).WithError(err).Warn("webhooks: delivery failed")
					continue
				}
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}

	for _, endpoint := range urls {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
	return delivered
}

func (n *Notifier) send(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func normalizeWebhookURLs(urls []string, payload Payload, log logrus.FieldLogger) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(raw), "{run_id}", payload.RunID))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidWebhookURL(templated) {
			log.WithField("url", templated).Warn("webhooks: skipping invalid url")
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func isValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
