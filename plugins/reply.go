package plugins

import (
	"context"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// replyText sends text to chat, quoting the given message when there is one.
func replyText(ctx context.Context, client Client, chat types.JID, text string, quoted *events.Message) (whatsmeow.SendResponse, error) {
	return client.SendMessage(ctx, chat, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: quoteOf(quoted),
		},
	})
}

// quoteOf builds the context info that makes a sent message a reply to v.
func quoteOf(v *events.Message) *waE2E.ContextInfo {
	if v == nil || v.Info.ID == "" {
		return nil
	}
	return &waE2E.ContextInfo{
		StanzaID:      proto.String(v.Info.ID),
		Participant:   proto.String(v.Info.Sender.ToNonAD().String()),
		QuotedMessage: v.Message,
	}
}

// messageText returns the text of plain and extended text messages.
func messageText(msg *waE2E.Message) string {
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	return msg.GetConversation()
}
