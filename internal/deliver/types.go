// Package deliver sends rendered digests to their destination channel.
package deliver

import (
	"context"
	"fmt"
	"strings"

	"courtcast/internal/model"
)

// Message is one outbound send.
type Message struct {
	ClubID      string         `json:"club_id"`
	Category    model.Category `json:"category"`
	Destination string         `json:"destination"`
	Text        string         `json:"message"`
}

// Response is the collaborator's reply. A send only counts as delivered
// when the transport succeeded AND Status reports ok.
type Response struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// OK reports whether the collaborator explicitly acknowledged the send.
func (r Response) OK() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), "ok")
}

// Sender is one destination adapter.
type Sender interface {
	Send(ctx context.Context, m Message) (Response, error)
}

// Router picks an adapter by destination prefix: "tg:<chat_id>" goes to
// the telegram adapter, everything else to the chat gateway.
type Router struct {
	Gateway  Sender
	Telegram Sender
}

func (r *Router) Send(ctx context.Context, m Message) (Response, error) {
	if strings.HasPrefix(m.Destination, telegramPrefix) && r.Telegram != nil {
		return r.Telegram.Send(ctx, m)
	}
	if r.Gateway == nil {
		return Response{}, fmt.Errorf("no adapter configured for destination %q", m.Destination)
	}
	return r.Gateway.Send(ctx, m)
}
