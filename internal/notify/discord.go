package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	discordUsername  = "ScriptHost"
	discordAvatarURL = "https://cdn-icons-png.flaticon.com/512/2920/2920277.png"
	embedColor       = 0x00ff9d
)

// DiscordWebhook posts an embed to a Discord webhook for every upload.
type DiscordWebhook struct {
	url    string
	client *http.Client
}

func NewDiscordWebhook(url string) (*DiscordWebhook, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &DiscordWebhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedMedia struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Thumbnail   embedMedia   `json:"thumbnail"`
	Fields      []embedField `json:"fields"`
	Footer      embedFooter  `json:"footer"`
	Timestamp   string       `json:"timestamp"`
}

type webhookPayload struct {
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
	Embeds    []embed `json:"embeds"`
}

func (d *DiscordWebhook) ScriptUploaded(ctx context.Context, event Event) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	payload := webhookPayload{
		Username:  discordUsername,
		AvatarURL: discordAvatarURL,
		Embeds: []embed{{
			Title:       "New Script Hosted",
			Description: "A new script has been uploaded to ScriptHost",
			Color:       embedColor,
			Thumbnail:   embedMedia{URL: discordAvatarURL},
			Fields: []embedField{
				{Name: "Script ID", Value: fmt.Sprintf("```%s```", event.ScriptID)},
				{Name: "Owner Key", Value: fmt.Sprintf("```%s```", event.OwnerKey)},
				{Name: "Filename", Value: fmt.Sprintf("`%s`", event.Filename), Inline: true},
				{Name: "Size", Value: fmt.Sprintf("`%d chars`", event.ScriptBytes), Inline: true},
			},
			Footer: embedFooter{
				Text:    "ScriptHost | Secure Script Hosting",
				IconURL: discordAvatarURL,
			},
			Timestamp: occurredAt.UTC().Format(time.RFC3339),
		}},
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
