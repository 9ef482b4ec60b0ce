package plugins

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/UserUnkown0/Iam.LSpooky/media"
)

// MediaKind is the kind of media a quoted message carries.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	}
	return ""
}

func (k MediaKind) uploadType() whatsmeow.MediaType {
	switch k {
	case MediaVideo:
		return whatsmeow.MediaVideo
	case MediaAudio:
		return whatsmeow.MediaAudio
	}
	return whatsmeow.MediaImage
}

// Caption is the caption put on re-sent media, e.g. "Image reenviado".
func (k MediaKind) Caption() string {
	s := k.String()
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:] + " reenviado"
}

// QuotedMedia is the media found in a quoted message. Exactly one of the
// payload fields is set, matching Kind; all are nil for MediaNone.
type QuotedMedia struct {
	Kind  MediaKind
	Image *waE2E.ImageMessage
	Video *waE2E.VideoMessage
	Audio *waE2E.AudioMessage
}

// Classify picks the media of a quoted message in the order image, video,
// audio.
func Classify(quoted *waE2E.Message) QuotedMedia {
	switch {
	case quoted.GetImageMessage() != nil:
		return QuotedMedia{Kind: MediaImage, Image: quoted.GetImageMessage()}
	case quoted.GetVideoMessage() != nil:
		return QuotedMedia{Kind: MediaVideo, Video: quoted.GetVideoMessage()}
	case quoted.GetAudioMessage() != nil:
		return QuotedMedia{Kind: MediaAudio, Audio: quoted.GetAudioMessage()}
	}
	return QuotedMedia{Kind: MediaNone}
}

// sendMedia uploads data and sends it to chat as the same kind of media as
// q, captioned and quoting ctxInfo.
func sendMedia(ctx context.Context, client Client, log waLog.Logger, chat types.JID, q QuotedMedia, data []byte, ctxInfo *waE2E.ContextInfo) (whatsmeow.SendResponse, error) {
	up, err := client.Upload(ctx, data, q.Kind.uploadType())
	if err != nil {
		return whatsmeow.SendResponse{}, fmt.Errorf("upload %s: %w", q.Kind, err)
	}
	msg, err := buildMediaMessage(log, q, data, up, ctxInfo)
	if err != nil {
		return whatsmeow.SendResponse{}, err
	}
	return client.SendMessage(ctx, chat, msg)
}

func buildMediaMessage(log waLog.Logger, q QuotedMedia, data []byte, up whatsmeow.UploadResponse, ctxInfo *waE2E.ContextInfo) (*waE2E.Message, error) {
	caption := proto.String(q.Kind.Caption())
	switch q.Kind {
	case MediaImage:
		thumb := q.Image.GetJPEGThumbnail()
		if len(thumb) == 0 {
			var err error
			if thumb, err = media.Thumbnail(data); err != nil {
				log.Debugf("Sending image without thumbnail: %v", err)
			}
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(mimetypeOr(q.Image.GetMimetype(), "image/jpeg")),
			Width:         q.Image.Width,
			Height:        q.Image.Height,
			JPEGThumbnail: thumb,
			Caption:       caption,
			ContextInfo:   ctxInfo,
		}}, nil
	case MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(mimetypeOr(q.Video.GetMimetype(), "video/mp4")),
			Seconds:       q.Video.Seconds,
			Width:         q.Video.Width,
			Height:        q.Video.Height,
			GifPlayback:   q.Video.GifPlayback,
			JPEGThumbnail: q.Video.GetJPEGThumbnail(),
			Caption:       caption,
			ContextInfo:   ctxInfo,
		}}, nil
	case MediaAudio:
		// audio messages have no caption field
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			Mimetype:      proto.String(mimetypeOr(q.Audio.GetMimetype(), "audio/ogg; codecs=opus")),
			Seconds:       q.Audio.Seconds,
			PTT:           q.Audio.PTT,
			Waveform:      q.Audio.GetWaveform(),
			ContextInfo:   ctxInfo,
		}}, nil
	}
	return nil, fmt.Errorf("no media to send")
}

func mimetypeOr(mt, fallback string) string {
	if mt == "" {
		return fallback
	}
	return mt
}
