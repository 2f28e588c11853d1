package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider talks to the calendar provider's REST API. The credential is an
// opaque bearer token supplied per call; the provider is stateless and never
// held open across requests.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type eventPayload struct {
	ID      string     `json:"id"`
	Summary string     `json:"summary"`
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
}

func (p *HTTPProvider) ListEvents(ctx context.Context, credential string, from, to time.Time) ([]Event, error) {
	u := fmt.Sprintf("%s/events?timeMin=%s&timeMax=%s",
		p.baseURL,
		url.QueryEscape(from.UTC().Format(time.RFC3339)),
		url.QueryEscape(to.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	p.addHeaders(req, credential)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar api error: status %d", resp.StatusCode)
	}

	var result struct {
		Items []eventPayload `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("calendar decode events: %w", err)
	}

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		events = append(events, Event{
			ID:      item.ID,
			Summary: item.Summary,
			Start:   item.Start,
			End:     item.End,
		})
	}
	return events, nil
}

func (p *HTTPProvider) InsertEvent(ctx context.Context, credential string, spec EventSpec) (string, error) {
	transparency := "opaque"
	if spec.Transparent {
		transparency = "transparent"
	}
	payload := map[string]any{
		"summary":      spec.Summary,
		"description":  spec.Description,
		"start":        spec.Start.UTC().Format(time.RFC3339),
		"end":          spec.End.UTC().Format(time.RFC3339),
		"transparency": transparency,
		"colorId":      spec.ColorID,
		"reminders":    map[string]any{"useDefault": !spec.NoReminders},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	p.addHeaders(req, credential)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calendar insert event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("calendar api error: status %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("calendar decode insert response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("calendar insert returned no event id")
	}
	return result.ID, nil
}

func (p *HTTPProvider) addHeaders(req *http.Request, credential string) {
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")
}

var _ Provider = (*HTTPProvider)(nil)
