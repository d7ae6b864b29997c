// Package telegram presents candidates to the curator chat and streams button
// decisions back via the bot API.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"spsdaily/internal/domain"
	"spsdaily/internal/ports"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	pollTimeoutSec = 30
	// sendPause keeps bursts of review messages under the bot API rate limit.
	sendPause = 300 * time.Millisecond
	// snapshotPrefix resolves to the latest Wayback Machine capture; the
	// curator uses it when the original sits behind a paywall.
	snapshotPrefix = "https://web.archive.org/web/2/"
)

// Bot implements the review channel over the Telegram bot API.
type Bot struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.ReviewChannel = (*Bot)(nil)

// NewBot registers the bot token and curator chat identifier.
func NewBot(token, chatID string, logger *slog.Logger) *Bot {
	return &Bot{
		apiBase: defaultAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 40 * time.Second},
		logger:  logger,
	}
}

// WithAPIBase points the bot at a different API host, for tests.
func (b *Bot) WithAPIBase(base string) *Bot {
	b.apiBase = strings.TrimSuffix(base, "/")
	return b
}

// SendForReview posts a summary followed by one message per candidate with
// approve/reject/pick buttons. Callback payloads carry the short article ref,
// never the URL (callback data is capped at 64 bytes).
func (b *Bot) SendForReview(ctx context.Context, batch map[domain.Category][]domain.Article) error {
	if b.token == "" || b.chatID == "" {
		return fmt.Errorf("telegram bot misconfigured")
	}

	total := 0
	var countsLine []string
	for _, cat := range domain.Categories() {
		n := len(batch[cat])
		total += n
		if n > 0 {
			countsLine = append(countsLine, fmt.Sprintf("%s: %d", titled(string(cat)), n))
		}
	}
	if total == 0 {
		return b.sendMessage(ctx, "No candidates passed the quality gate today.", nil)
	}

	summary := fmt.Sprintf("<b>SPS Daily - %d Articles for Review</b>\n\n%s\n\nTap buttons to approve/reject. Approved articles go live immediately.",
		total, strings.Join(countsLine, " | "))
	if err := b.sendMessage(ctx, summary, nil); err != nil {
		return err
	}

	for _, cat := range domain.Categories() {
		articles := batch[cat]
		if len(articles) == 0 {
			continue
		}

		header := fmt.Sprintf("<b>%s</b> (%d articles)", strings.ToUpper(string(cat)), len(articles))
		if err := b.sendMessage(ctx, header, nil); err != nil {
			return err
		}

		for _, article := range articles {
			if err := b.sendCandidate(ctx, cat, article); err != nil {
				return err
			}
			select {
			case <-time.After(sendPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return b.sendMessage(ctx, "All articles sent. Unreviewed articles auto-resolve after the review window.", nil)
}

func (b *Bot) sendCandidate(ctx context.Context, cat domain.Category, article domain.Article) error {
	var metrics []string
	if article.WordCount > 0 {
		metrics = append(metrics, fmt.Sprintf("%d words", article.WordCount))
	}
	if article.ReadingMin > 0 {
		metrics = append(metrics, fmt.Sprintf("~%d min", article.ReadingMin))
	}
	if article.Score > 0 {
		metrics = append(metrics, fmt.Sprintf("score: %.2f", article.Score))
	}
	metricsLine := ""
	if len(metrics) > 0 {
		metricsLine = "<i>" + strings.Join(metrics, " | ") + "</i>\n"
	}

	text := fmt.Sprintf("<b>%s</b>\n%s\n<b>%s</b>\n\n%s\n\n<i>Source: %s</i>\n<a href=\"%s\">Original</a> | <a href=\"%s\">Archive</a>",
		strings.ToUpper(string(cat)),
		metricsLine,
		html.EscapeString(article.Title),
		html.EscapeString(article.Teaser),
		html.EscapeString(article.Source),
		article.URL,
		snapshotPrefix+article.URL)

	ref := article.Ref()
	keyboard := map[string]any{
		"inline_keyboard": [][]map[string]string{
			{
				{"text": "Approve", "callback_data": "approve:" + ref},
				{"text": "Reject", "callback_data": "reject:" + ref},
			},
			{
				{"text": "Editor's Pick", "callback_data": "pick:" + ref},
			},
		},
	}

	return b.sendMessage(ctx, text, keyboard)
}

func (b *Bot) sendMessage(ctx context.Context, text string, keyboard map[string]any) error {
	form := url.Values{}
	form.Set("chat_id", b.chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")
	if keyboard != nil {
		raw, err := json.Marshal(keyboard)
		if err != nil {
			return fmt.Errorf("marshal keyboard: %w", err)
		}
		form.Set("reply_markup", string(raw))
	}
	return b.call(ctx, "sendMessage", form, nil)
}

// update mirrors the subset of the bot API update object the listener needs.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// Listen long-polls getUpdates and dispatches callbacks and commands. Each
// callback is acknowledged with the handler's result text. Transient API
// failures back off briefly and the loop continues until ctx is done.
func (b *Bot) Listen(ctx context.Context, onDecision func(context.Context, domain.Decision) string, onCommand func(context.Context, string) string) error {
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("getUpdates failed", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1

			switch {
			case u.CallbackQuery != nil:
				decision, ok := parseCallback(u.CallbackQuery.Data)
				ack := "Unknown action"
				if ok {
					ack = onDecision(ctx, decision)
				}
				if err := b.answerCallback(ctx, u.CallbackQuery.ID, ack); err != nil {
					b.logger.Warn("answerCallbackQuery failed", "error", err)
				}

			case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
				reply := onCommand(ctx, strings.TrimSpace(u.Message.Text))
				if reply != "" {
					if err := b.sendMessage(ctx, reply, nil); err != nil {
						b.logger.Warn("command reply failed", "error", err)
					}
				}
			}
		}
	}
}

func titled(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseCallback(data string) (domain.Decision, bool) {
	action, ref, ok := strings.Cut(data, ":")
	if !ok || ref == "" {
		return domain.Decision{}, false
	}
	switch domain.Action(action) {
	case domain.ActionApprove, domain.ActionReject, domain.ActionPick:
		return domain.Decision{Ref: ref, Action: domain.Action(action)}, true
	}
	return domain.Decision{}, false
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	form := url.Values{}
	form.Set("timeout", fmt.Sprint(pollTimeoutSec))
	if offset > 0 {
		form.Set("offset", fmt.Sprint(offset))
	}

	var result []update
	if err := b.call(ctx, "getUpdates", form, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Bot) answerCallback(ctx context.Context, callbackID, text string) error {
	form := url.Values{}
	form.Set("callback_query_id", callbackID)
	form.Set("text", text)
	return b.call(ctx, "answerCallbackQuery", form, nil)
}

func (b *Bot) call(ctx context.Context, method string, form url.Values, result any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
