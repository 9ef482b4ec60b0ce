// Package media fetches the bytes behind WhatsApp media messages.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waMmsRetry"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// ErrNotMediaMessage means the referenced message carries nothing downloadable.
var ErrNotMediaMessage = errors.New("not a media message")

var ErrReuploadFailed = errors.New("media reupload request failed")

// Reference points at a message whose media should be fetched. ID, Chat and
// Sender are only needed when the media has expired and must be re-requested
// from the original sender's phone.
type Reference struct {
	Message *waE2E.Message
	ID      types.MessageID
	Chat    types.JID
	Sender  types.JID
	FromMe  bool
}

// Client is the part of *whatsmeow.Client the fetcher uses.
type Client interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	SendMediaRetryReceipt(ctx context.Context, message *types.MessageInfo, mediaKey []byte) error
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	RemoveEventHandler(id uint32) bool
}

type Options struct {
	// Reupload asks the sender's phone to re-upload expired media.
	Reupload        bool
	ReuploadTimeout time.Duration
	Log             waLog.Logger
}

type Fetcher struct {
	client  Client
	opts    Options
	decrypt func(evt *events.MediaRetry, mediaKey []byte) (*waMmsRetry.MediaRetryNotification, error)
}

func NewFetcher(client Client, opts Options) *Fetcher {
	if opts.Log == nil {
		opts.Log = waLog.Noop
	}
	if opts.ReuploadTimeout <= 0 {
		opts.ReuploadTimeout = 30 * time.Second
	}
	return &Fetcher{client: client, opts: opts, decrypt: whatsmeow.DecryptMediaRetryNotification}
}

// Downloadable returns the media sub-message of msg, or nil.
func Downloadable(msg *waE2E.Message) whatsmeow.DownloadableMessage {
	switch {
	case msg == nil:
		return nil
	case msg.ImageMessage != nil:
		return msg.ImageMessage
	case msg.VideoMessage != nil:
		return msg.VideoMessage
	case msg.AudioMessage != nil:
		return msg.AudioMessage
	case msg.DocumentMessage != nil:
		return msg.DocumentMessage
	case msg.StickerMessage != nil:
		return msg.StickerMessage
	}
	return nil
}

// Fetch downloads and decrypts the media referenced by ref.
func (f *Fetcher) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	dl := Downloadable(ref.Message)
	if dl == nil {
		return nil, ErrNotMediaMessage
	}

	data, err := f.download(ctx, dl)
	if err == nil || !f.opts.Reupload || !expired(err) {
		return data, err
	}

	f.opts.Log.Infof("Media for %s expired (%v), requesting reupload", ref.ID, err)
	patched, rerr := f.reupload(ctx, ref, dl)
	if rerr != nil {
		return nil, fmt.Errorf("%w: %w", err, rerr)
	}
	return f.download(ctx, patched)
}

func (f *Fetcher) download(ctx context.Context, dl whatsmeow.DownloadableMessage) ([]byte, error) {
	data, err := f.client.Download(ctx, dl)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, whatsmeow.ErrNothingDownloadable),
		errors.Is(err, whatsmeow.ErrNoURLPresent),
		errors.Is(err, whatsmeow.ErrUnknownMediaType):
		return nil, fmt.Errorf("%w: %w", ErrNotMediaMessage, err)
	}
	return nil, fmt.Errorf("download media: %w", err)
}

func expired(err error) bool {
	return errors.Is(err, whatsmeow.ErrMediaDownloadFailedWith404) ||
		errors.Is(err, whatsmeow.ErrMediaDownloadFailedWith410)
}

// reupload sends a media retry receipt and waits for the phone to answer
// with a fresh direct path. The returned message is a patched copy of dl.
func (f *Fetcher) reupload(ctx context.Context, ref Reference, dl whatsmeow.DownloadableMessage) (whatsmeow.DownloadableMessage, error) {
	if ref.ID == "" || ref.Chat.IsEmpty() {
		return nil, fmt.Errorf("%w: reference has no message id or chat", ErrReuploadFailed)
	}
	mediaKey := dl.GetMediaKey()

	retries := make(chan *events.MediaRetry, 1)
	handlerID := f.client.AddEventHandler(func(evt any) {
		if mr, ok := evt.(*events.MediaRetry); ok && mr.MessageID == ref.ID {
			select {
			case retries <- mr:
			default:
			}
		}
	})
	defer f.client.RemoveEventHandler(handlerID)

	sender := ref.Sender
	if sender.IsEmpty() {
		sender = ref.Chat
	}
	info := &types.MessageInfo{
		MessageSource: types.MessageSource{
			Chat:     ref.Chat,
			Sender:   sender,
			IsFromMe: ref.FromMe,
			IsGroup:  ref.Chat.Server == types.GroupServer,
		},
		ID: ref.ID,
	}
	if err := f.client.SendMediaRetryReceipt(ctx, info, mediaKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReuploadFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.ReuploadTimeout)
	defer cancel()

	var evt *events.MediaRetry
	select {
	case evt = <-retries:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrReuploadFailed, ctx.Err())
	}

	if evt.Error != nil {
		return nil, fmt.Errorf("%w: phone answered with error code %d", ErrReuploadFailed, evt.Error.Code)
	}
	notif, err := f.decrypt(evt, mediaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReuploadFailed, err)
	}
	if notif.GetResult() != waMmsRetry.MediaRetryNotification_SUCCESS || notif.GetDirectPath() == "" {
		return nil, fmt.Errorf("%w: result %s", ErrReuploadFailed, notif.GetResult())
	}
	return withDirectPath(dl, notif.GetDirectPath()), nil
}

func withDirectPath(dl whatsmeow.DownloadableMessage, path string) whatsmeow.DownloadableMessage {
	switch m := dl.(type) {
	case *waE2E.ImageMessage:
		c := proto.Clone(m).(*waE2E.ImageMessage)
		c.DirectPath = proto.String(path)
		return c
	case *waE2E.VideoMessage:
		c := proto.Clone(m).(*waE2E.VideoMessage)
		c.DirectPath = proto.String(path)
		return c
	case *waE2E.AudioMessage:
		c := proto.Clone(m).(*waE2E.AudioMessage)
		c.DirectPath = proto.String(path)
		return c
	case *waE2E.DocumentMessage:
		c := proto.Clone(m).(*waE2E.DocumentMessage)
		c.DirectPath = proto.String(path)
		return c
	case *waE2E.StickerMessage:
		c := proto.Clone(m).(*waE2E.StickerMessage)
		c.DirectPath = proto.String(path)
		return c
	}
	return dl
}
