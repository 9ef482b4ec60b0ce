package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/UserUnkown0/Iam.LSpooky/media"
	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

const EspiarTrigger = "!espiar"

const (
	TextPremiumOnly     = "🚫 Este comando es exclusivo para *usuarios premium*. Contacta con el administrador."
	TextNeedQuote       = "❌ Debes responder a una *imagen, video o audio* para usar este comando."
	TextUnsupportedType = "❌ Solo se pueden reenviar *imágenes, videos o audios*."
	TextInvalidMedia    = "❌ El mensaje citado no contiene un medio válido."
	TextProcessFailed   = "❌ Ocurrió un error al procesar el archivo. Inténtalo de nuevo más tarde."
)

var ErrEmptyDownload = errors.New("no se pudo obtener el buffer del archivo multimedia")

func init() {
	Register("espiar", "Media", func(d Deps) uint32 {
		return NewEspiar(d.Client, d.Premium, d.Media, d.LIDs, d.Log).Attach()
	})
}

// Espiar re-sends the image, video or audio a premium group member replied
// to with !espiar.
type Espiar struct {
	client  Client
	premium premium.Checker
	media   MediaFetcher
	lids    LIDResolver
	log     waLog.Logger
}

func NewEspiar(client Client, checker premium.Checker, fetcher MediaFetcher, lids LIDResolver, log waLog.Logger) *Espiar {
	if log == nil {
		log = waLog.Noop
	}
	return &Espiar{client: client, premium: checker, media: fetcher, lids: lids, log: log.Sub("Espiar")}
}

// Attach adds the message listener to the client and returns its handler id.
func (e *Espiar) Attach() uint32 {
	return e.client.AddEventHandler(e.listen)
}

func (e *Espiar) listen(evt any) {
	if v, ok := evt.(*events.Message); ok {
		// whatsmeow calls handlers from its receive loop, don't block it
		go e.Handle(context.Background(), []*events.Message{v})
	}
}

// Handle processes the first message of batch. Failures are answered in the
// chat and never returned.
func (e *Espiar) Handle(ctx context.Context, batch []*events.Message) {
	var v *events.Message
	if len(batch) > 0 {
		v = batch[0]
	}
	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, v, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := e.process(ctx, v); err != nil {
		e.fail(ctx, v, err)
	}
}

func (e *Espiar) process(ctx context.Context, v *events.Message) error {
	if v == nil || v.Message == nil || v.Info.IsFromMe {
		return nil
	}
	if !v.Info.IsGroup {
		return nil
	}

	chat := v.Info.Chat
	sender := v.Info.Sender
	body := messageText(v.Message)
	if !strings.HasPrefix(strings.ToLower(body), EspiarTrigger) {
		return nil
	}

	reqID := uuid.NewString()
	e.log.Infof("[%s] %s from %s in %s", reqID, EspiarTrigger, sender, chat)

	ok, err := e.premium.IsPremium(ctx, phoneJID(ctx, e.lids, e.log, sender, v.Info.SenderAlt))
	if err != nil {
		return fmt.Errorf("premium lookup for %s: %w", sender, err)
	}
	if !ok {
		e.log.Debugf("[%s] %s is not premium", reqID, sender)
		_, err := replyText(ctx, e.client, chat, TextPremiumOnly, v)
		return err
	}

	ctxInfo := v.Message.GetExtendedTextMessage().GetContextInfo()
	quoted := ctxInfo.GetQuotedMessage()
	if quoted == nil {
		_, err := replyText(ctx, e.client, chat, TextNeedQuote, v)
		return err
	}

	q := Classify(quoted)
	if q.Kind == MediaNone {
		_, err := replyText(ctx, e.client, chat, TextUnsupportedType, v)
		return err
	}

	ref := media.Reference{
		Message: quoted,
		ID:      ctxInfo.GetStanzaID(),
		Chat:    chat,
		FromMe:  false,
	}
	if p := ctxInfo.GetParticipant(); p != "" {
		if jid, err := types.ParseJID(p); err == nil {
			ref.Sender = jid
		}
	}
	data, err := e.media.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyDownload
	}

	if _, err := sendMedia(ctx, e.client, e.log, chat, q, data, quoteOf(v)); err != nil {
		return fmt.Errorf("send %s: %w", q.Kind, err)
	}
	e.log.Infof("[%s] Re-sent %s (%d bytes) to %s", reqID, q.Kind, len(data), chat)
	return nil
}

// fail answers a failed invocation. The reply is best effort.
func (e *Espiar) fail(ctx context.Context, v *events.Message, err error) {
	e.log.Errorf("Error: %v", err)

	text := TextProcessFailed
	if isNotMedia(err) {
		text = TextInvalidMedia
	}
	chat := types.EmptyJID
	if v != nil {
		chat = v.Info.Chat
	}
	if _, serr := replyText(ctx, e.client, chat, text, v); serr != nil {
		e.log.Warnf("Failed to send error reply to %s: %v", chat, serr)
	}
}

func isNotMedia(err error) bool {
	return errors.Is(err, media.ErrNotMediaMessage) ||
		strings.Contains(err.Error(), media.ErrNotMediaMessage.Error())
}
