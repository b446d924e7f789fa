package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/circuit"
)

// RevoloriClient resolves IDs against Revolori's /id endpoint. The request
// body is `{tool: [tool_specific_ids]}` and the response maps each
// tool-specific ID to its subject ID, nested under the tool key.
//
// A circuit breaker guards the endpoint: once Revolori fails repeatedly,
// requests fail fast instead of piling up on a dead dependency.
type RevoloriClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

func NewRevoloriClient(baseURL string, timeout time.Duration, logger *slog.Logger) *RevoloriClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return &RevoloriClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.New("revolori"),
		logger:     logger,
	}
}

func (c *RevoloriClient) MapOne(ctx context.Context, tool string, toolSpecificID string) (id.SubjectID, error) {
	subjects, err := c.MapMany(ctx, tool, []string{toolSpecificID})
	if err != nil {
		return "", err
	}
	if len(subjects) != 1 {
		return "", dErrors.New(dErrors.CodeIDMapping, "one or more ids couldn't be mapped")
	}
	return subjects[0], nil
}

func (c *RevoloriClient) MapMany(ctx context.Context, tool string, toolSpecificIDs []string) ([]id.SubjectID, error) {
	mapping, err := c.mapping(ctx, tool, toolSpecificIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[id.SubjectID]struct{}, len(mapping))
	subjects := make([]id.SubjectID, 0, len(mapping))
	for _, toolSpecificID := range toolSpecificIDs {
		resolved, ok := mapping[toolSpecificID]
		if !ok || resolved == "" {
			return nil, dErrors.New(dErrors.CodeIDMapping, "one or more ids couldn't be mapped")
		}
		subject := id.SubjectID(resolved)
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		subjects = append(subjects, subject)
	}
	return subjects, nil
}

func (c *RevoloriClient) mapping(ctx context.Context, tool string, toolSpecificIDs []string) (map[string]string, error) {
	if c.breaker.IsOpen() {
		return nil, dErrors.New(dErrors.CodeDependency, "identity provider unavailable")
	}

	body, err := json.Marshal(map[string][]string{tool: toolSpecificIDs})
	if err != nil {
		return nil, fmt.Errorf("marshal id mapping request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/id", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build id mapping request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identity provider timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "identity provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.recordFailure()
		c.logger.Error("identity provider error", "status", resp.StatusCode)
		return nil, dErrors.New(dErrors.CodeDependency,
			fmt.Sprintf("identity provider returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		// The provider answered: a mapping failure is not an outage.
		c.recordSuccess()
		return nil, dErrors.New(dErrors.CodeIDMapping, "one or more ids couldn't be mapped")
	}
	c.recordSuccess()

	var payload map[string]map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "identity provider returned malformed response")
	}
	return payload[tool], nil
}

func (c *RevoloriClient) recordFailure() {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.Error("identity provider circuit opened")
	}
}

func (c *RevoloriClient) recordSuccess() {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.Info("identity provider circuit closed")
	}
}
