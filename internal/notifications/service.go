package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vibedispatch/internal/config"
)

const userAgent = "VibeDispatch-Go/0.1.0"

// Embed colors.
const (
	ColorSuccess = 0x2ECC71
	ColorInfo    = 0x3498DB
	ColorWarning = 0xF39C12
	ColorDanger  = 0xE74C3C
)

// Service defines the notification surface exposed to the contribution pipeline.
type Service interface {
	NotifyGoTierIssue(ctx context.Context, repo string, number int, title string, score int) error
	NotifyPRReadyForReview(ctx context.Context, repo string, number int, title string) error
	NotifyUpstreamMerged(ctx context.Context, originSlug, prURL, title string) error
	NotifyUpstreamFeedback(ctx context.Context, originSlug, prURL, reviewDecision string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a Discord webhook notifier when a webhook URL is
// configured. Without one a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	endpoint := strings.TrimSpace(cfg.Notifications.DiscordWebhookURL)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &discordService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Field is one name/value row inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Embed is the Discord rich message body.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
}

type webhookBody struct {
	Embeds []Embed `json:"embeds"`
}

type discordService struct {
	endpoint string
	client   *http.Client
}

func (d *discordService) NotifyGoTierIssue(ctx context.Context, repo string, number int, title string, score int) error {
	repo = strings.TrimSpace(repo)
	return d.send(ctx, Embed{
		Title:       "GO-tier Issue Found",
		Description: fmt.Sprintf("**%s#%d**: %s", repo, number, strings.TrimSpace(title)),
		Color:       ColorSuccess,
		Fields: []Field{
			{Name: "CVS Score", Value: strconv.Itoa(score), Inline: true},
			{Name: "Repository", Value: repo, Inline: true},
		},
	})
}

func (d *discordService) NotifyPRReadyForReview(ctx context.Context, repo string, number int, title string) error {
	repo = strings.TrimSpace(repo)
	return d.send(ctx, Embed{
		Title:       "Agent PR Ready for Review",
		Description: fmt.Sprintf("**%s#%d**: %s", repo, number, strings.TrimSpace(title)),
		Color:       ColorInfo,
		Fields: []Field{
			{Name: "Fork Repo", Value: repo, Inline: true},
			{Name: "PR", Value: fmt.Sprintf("#%d", number), Inline: true},
		},
	})
}

func (d *discordService) NotifyUpstreamMerged(ctx context.Context, originSlug, prURL, title string) error {
	return d.send(ctx, Embed{
		Title:       "Upstream PR Merged!",
		Description: fmt.Sprintf("**%s**: %s", strings.TrimSpace(originSlug), strings.TrimSpace(title)),
		Color:       ColorSuccess,
		Fields: []Field{
			{Name: "PR", Value: strings.TrimSpace(prURL)},
		},
	})
}

func (d *discordService) NotifyUpstreamFeedback(ctx context.Context, originSlug, prURL, reviewDecision string) error {
	reviewDecision = strings.TrimSpace(reviewDecision)
	color := ColorInfo
	if reviewDecision == "CHANGES_REQUESTED" {
		color = ColorWarning
	}
	decision := reviewDecision
	if decision == "" {
		decision = "pending"
	}
	return d.send(ctx, Embed{
		Title:       "Upstream PR Feedback",
		Description: fmt.Sprintf("**%s**: Review decision: %s", strings.TrimSpace(originSlug), reviewDecision),
		Color:       color,
		Fields: []Field{
			{Name: "PR", Value: strings.TrimSpace(prURL)},
			{Name: "Decision", Value: decision, Inline: true},
		},
	})
}

func (d *discordService) TestNotification(ctx context.Context) error {
	return d.send(ctx, Embed{
		Title:       "VibeDispatch - Test",
		Description: "Notification system test",
		Color:       ColorInfo,
	})
}

func (d *discordService) send(ctx context.Context, embed Embed) error {
	if d == nil || d.client == nil {
		return nil
	}
	if embed.Color == 0 {
		embed.Color = ColorInfo
	}

	body, err := json.Marshal(webhookBody{Embeds: []Embed{embed}})
	if err != nil {
		return fmt.Errorf("encode discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build discord request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("discord returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyGoTierIssue(context.Context, string, int, string, int) error    { return nil }
func (noopService) NotifyPRReadyForReview(context.Context, string, int, string) error    { return nil }
func (noopService) NotifyUpstreamMerged(context.Context, string, string, string) error   { return nil }
func (noopService) NotifyUpstreamFeedback(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
