// Package telegram adapts the Telegram Bot API to the chat.Transport
// and update-feed contracts. It speaks plain HTTPS to api.telegram.org;
// only the handful of methods the file manager needs are wired.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/chat"
	"github.com/archivist/archivist/internal/logging"
)

const defaultAPIBase = "https://api.telegram.org"

// Client is a minimal Bot API client. It implements chat.Transport and
// feeds inbound updates to a chat.Handler via Poll.
type Client struct {
	token       string
	apiBase     string
	pollTimeout time.Duration
	httpClient  *http.Client
}

// New returns a client for the given bot token.
func New(token string, pollTimeout time.Duration) *Client {
	return &Client{
		token:       token,
		apiBase:     defaultAPIBase,
		pollTimeout: pollTimeout,
		// Long polls hold the connection for pollTimeout; leave slack.
		httpClient: &http.Client{Timeout: pollTimeout + 30*time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type apiUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type apiDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

type apiMessage struct {
	MessageID int          `json:"message_id"`
	From      *apiUser     `json:"from"`
	Text      string       `json:"text"`
	Document  *apiDocument `json:"document"`
}

type apiCallbackQuery struct {
	ID      string      `json:"id"`
	From    apiUser     `json:"from"`
	Message *apiMessage `json:"message"`
	Data    string      `json:"data"`
}

type apiUpdate struct {
	UpdateID      int64             `json:"update_id"`
	Message       *apiMessage       `json:"message"`
	CallbackQuery *apiCallbackQuery `json:"callback_query"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func toReplyMarkup(kb chat.Keyboard) *inlineKeyboard {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		var buttons []inlineButton
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Label, CallbackData: b.Token})
		}
		rows = append(rows, buttons)
	}
	return &inlineKeyboard{InlineKeyboard: rows}
}

// call posts a JSON payload to a Bot API method and unmarshals the
// result into out when out is non-nil.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("%s: api error: %s", method, apiResp.Description)
	}
	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// SendMessage implements chat.Transport.
func (c *Client) SendMessage(ctx context.Context, userID int64, text string, kb chat.Keyboard) (int, error) {
	payload := map[string]any{
		"chat_id": userID,
		"text":    text,
	}
	if rm := toReplyMarkup(kb); rm != nil {
		payload["reply_markup"] = rm
	}
	var msg apiMessage
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessage implements chat.Transport.
func (c *Client) EditMessage(ctx context.Context, userID int64, messageID int, text string, kb chat.Keyboard) error {
	payload := map[string]any{
		"chat_id":    userID,
		"message_id": messageID,
		"text":       text,
	}
	if rm := toReplyMarkup(kb); rm != nil {
		payload["reply_markup"] = rm
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerControl implements chat.Transport.
func (c *Client) AnswerControl(ctx context.Context, controlID, text string, alert bool) error {
	payload := map[string]any{"callback_query_id": controlID}
	if text != "" {
		payload["text"] = text
		payload["show_alert"] = alert
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// SendFile implements chat.Transport via multipart sendDocument.
func (c *Client) SendFile(ctx context.Context, userID int64, name string, body io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", fmt.Sprintf("%d", userID)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("document", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("buffer document %s: %w", name, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendDocument", c.apiBase, c.token), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode sendDocument response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("sendDocument: api error: %s", apiResp.Description)
	}
	return nil
}

// FetchFile implements chat.Transport: getFile for the server-side
// path, then a plain download from the file endpoint.
func (c *Client) FetchFile(ctx context.Context, ref string) (io.ReadCloser, error) {
	var info struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": ref}, &info); err != nil {
		return nil, err
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("getFile %s: empty file_path", ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, info.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", ref, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: status %d", ref, resp.StatusCode)
	}
	return resp.Body, nil
}

// Poll long-polls getUpdates until ctx is cancelled, classifying each
// update and handing it to h. Different users' updates run in parallel;
// the handler serializes per user.
func (c *Client) Poll(ctx context.Context, h chat.Handler) error {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := c.getUpdates(ctx, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logging.Error("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			u, ok := classify(upd)
			if !ok {
				continue
			}
			go h.HandleUpdate(ctx, u)
		}
	}
}

func (c *Client) getUpdates(ctx context.Context, offset int64) ([]apiUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.pollTimeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []apiUpdate
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// classify maps a raw Bot API update onto the transport-neutral form.
func classify(upd apiUpdate) (chat.Update, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		u := chat.Update{
			Kind:      chat.KindControl,
			UserID:    cq.From.ID,
			Username:  cq.From.Username,
			ControlID: cq.ID,
			Token:     cq.Data,
		}
		if cq.Message != nil {
			u.MessageID = cq.Message.MessageID
		}
		return u, true
	}

	msg := upd.Message
	if msg == nil || msg.From == nil {
		return chat.Update{}, false
	}
	base := chat.Update{
		UserID:    msg.From.ID,
		Username:  msg.From.Username,
		MessageID: msg.MessageID,
	}

	if doc := msg.Document; doc != nil {
		base.Kind = chat.KindFile
		base.File = &chat.FileMeta{Ref: doc.FileID, Name: doc.FileName, SizeBytes: doc.FileSize}
		if base.File.Name == "" {
			base.File.Name = "file"
		}
		return base, true
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return chat.Update{}, false
	}
	if strings.HasPrefix(text, "/") {
		fields := strings.Fields(text)
		name := strings.TrimPrefix(fields[0], "/")
		// Group chats address commands as /cmd@botname.
		if i := strings.Index(name, "@"); i >= 0 {
			name = name[:i]
		}
		base.Kind = chat.KindCommand
		base.Command = name
		base.Args = fields[1:]
		return base, true
	}

	base.Kind = chat.KindText
	base.Text = text
	return base, true
}

var _ chat.Transport = (*Client)(nil)
