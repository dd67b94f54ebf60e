package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	http "github.com/bogdanfinn/fhttp"

	"github.com/Alfex4936/feishu-outbound/internal/model"
	"github.com/Alfex4936/feishu-outbound/internal/util"
)

const messagesPath = "/open-apis/im/v1/messages"

// ErrNoReceiver is returned when the target resolves to an empty id.
var ErrNoReceiver = errors.New("feishu: empty receive id")

var receiveIDTypes = []string{"chat_id", "open_id", "union_id", "user_id", "email"}

// resolveReceiver turns a delivery target into a receive id and its type.
//
//	chat_id:oc_123  explicit type
//	feishu:oc_123   channel prefix is dropped
//	oc_123          chat_id, ou_ open_id, on_ union_id, a@b email
//
// Anything else uses fallback.
func resolveReceiver(to, fallback string) (id, idType string) {
	to = strings.TrimSpace(to)
	to = strings.TrimPrefix(to, Channel+":")
	for _, t := range receiveIDTypes {
		if rest, ok := strings.CutPrefix(to, t+":"); ok {
			return rest, t
		}
	}
	switch {
	case strings.HasPrefix(to, "oc_"):
		return to, "chat_id"
	case strings.HasPrefix(to, "ou_"):
		return to, "open_id"
	case strings.HasPrefix(to, "on_"):
		return to, "union_id"
	case strings.Contains(to, "@"):
		return to, "email"
	}
	return to, fallback
}

type sendMessageRequest struct {
	ReceiveID string `json:"receive_id"`
	MsgType   string `json:"msg_type"`
	Content   string `json:"content"`
	UUID      string `json:"uuid,omitempty"` // same value on every attempt of one message
}

type messageData struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// SendText posts one plain text message. Splitting is the caller's job.
func (c *Client) SendText(ctx context.Context, to, text string) (model.SendResult, error) {
	content, err := util.ContentString(map[string]string{"text": text})
	if err != nil {
		return model.SendResult{}, err
	}
	return c.sendMessage(ctx, to, "text", content)
}

func (c *Client) sendMessage(ctx context.Context, to, msgType, content string) (model.SendResult, error) {
	id, idType := resolveReceiver(to, c.receiveIDType)
	if id == "" {
		return model.SendResult{}, ErrNoReceiver
	}

	// Feishu drops a repeat of a uuid it has already accepted, so a
	// retried message must reuse the caller's key.
	key := util.IdempotencyKey(ctx)
	if key == "" {
		key = c.newUUID()
	}
	body, err := json.Marshal(sendMessageRequest{
		ReceiveID: id,
		MsgType:   msgType,
		Content:   content,
		UUID:      key,
	})
	if err != nil {
		return model.SendResult{}, err
	}

	path := messagesPath + "?receive_id_type=" + url.QueryEscape(idType)
	var data messageData
	if err := c.call(ctx, "send "+msgType, http.MethodPost, path, body, "application/json; charset=utf-8", &data); err != nil {
		return model.SendResult{}, err
	}
	return model.SendResult{Channel: Channel, MessageID: data.MessageID, ChatID: data.ChatID}, nil
}
