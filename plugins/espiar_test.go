package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/UserUnkown0/Iam.LSpooky/media"
)

type espiarFixture struct {
	client  *fakeClient
	premium *fakePremium
	fetcher *fakeFetcher
	lids    *fakeLIDs
	espiar  *Espiar
}

func newFixture(isPremium bool) *espiarFixture {
	f := &espiarFixture{
		client:  &fakeClient{},
		premium: &fakePremium{users: map[string]bool{senderJID.User: isPremium}},
		fetcher: &fakeFetcher{data: []byte("media-bytes")},
		lids:    &fakeLIDs{pn: map[string]types.JID{}},
	}
	f.espiar = NewEspiar(f.client, f.premium, f.fetcher, f.lids, nil)
	return f
}

func (f *espiarFixture) handle(v *events.Message) {
	f.espiar.Handle(context.Background(), []*events.Message{v})
}

func imageQuote() *waE2E.Message {
	return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Mimetype:      proto.String("image/png"),
		JPEGThumbnail: []byte("thumb"),
		Width:         proto.Uint32(640),
		Height:        proto.Uint32(480),
	}}
}

func TestEspiarIgnores(t *testing.T) {
	fromMe := groupMessage("!espiar", quoting(imageQuote()))
	fromMe.Info.IsFromMe = true

	noContent := groupMessage("!espiar", nil)
	noContent.Message = nil

	private := groupMessage("!espiar", quoting(imageQuote()))
	private.Info.IsGroup = false
	private.Info.Chat = senderJID

	cases := map[string]*events.Message{
		"nil message":  nil,
		"from me":      fromMe,
		"no content":   noContent,
		"private chat": private,
		"other text":   groupMessage("hola !espiar", quoting(imageQuote())),
		"empty text":   groupMessage("", quoting(imageQuote())),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(true)
			f.handle(v)
			assert.Empty(t, f.client.messages())
			assert.Empty(t, f.fetcher.refs)
		})
	}
}

func TestEspiarEmptyBatch(t *testing.T) {
	f := newFixture(true)
	f.espiar.Handle(context.Background(), nil)
	assert.Empty(t, f.client.messages())
}

func TestEspiarOnlyFirstOfBatch(t *testing.T) {
	f := newFixture(false)
	other := groupMessage("!espiar", nil)
	other.Info.ID = "CMD2"
	f.espiar.Handle(context.Background(), []*events.Message{groupMessage("hola", nil), other})
	assert.Empty(t, f.client.messages())
}

func TestEspiarRejectsNonPremium(t *testing.T) {
	f := newFixture(false)
	f.handle(groupMessage("!ESPIAR por favor", quoting(imageQuote())))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, groupJID, sent[0].to)
	assert.Equal(t, TextPremiumOnly, textReply(sent[0]))
	ci := sent[0].msg.GetExtendedTextMessage().GetContextInfo()
	assert.Equal(t, "CMD1", ci.GetStanzaID())
	assert.Equal(t, senderJID.String(), ci.GetParticipant())
	assert.Empty(t, f.fetcher.refs)
}

func TestEspiarResolvesLIDSender(t *testing.T) {
	lidSender := types.NewJID("123456789012345", types.HiddenUserServer)

	t.Run("from the message", func(t *testing.T) {
		f := newFixture(true)
		v := groupMessage("!espiar", quoting(imageQuote()))
		v.Info.Sender = lidSender
		v.Info.SenderAlt = senderJID
		f.handle(v)

		require.Len(t, f.fetcher.refs, 1)
		require.Len(t, f.client.messages(), 1)
		assert.Equal(t, "Image reenviado", f.client.messages()[0].msg.GetImageMessage().GetCaption())
		assert.Empty(t, f.lids.asked)
	})

	t.Run("from the LID store", func(t *testing.T) {
		f := newFixture(true)
		f.lids.pn[lidSender.User] = senderJID
		v := groupMessage("!espiar", quoting(imageQuote()))
		v.Info.Sender = lidSender
		f.handle(v)

		require.Len(t, f.fetcher.refs, 1)
		assert.Equal(t, []types.JID{lidSender}, f.lids.asked)
	})

	t.Run("unknown LID is not premium", func(t *testing.T) {
		f := newFixture(true)
		v := groupMessage("!espiar", quoting(imageQuote()))
		v.Info.Sender = lidSender
		f.handle(v)

		assert.Empty(t, f.fetcher.refs)
		require.Len(t, f.client.messages(), 1)
		assert.Equal(t, TextPremiumOnly, textReply(f.client.messages()[0]))
	})

	t.Run("LID store error is not premium", func(t *testing.T) {
		f := newFixture(true)
		f.lids.err = errors.New("db locked")
		v := groupMessage("!espiar", quoting(imageQuote()))
		v.Info.Sender = lidSender
		f.handle(v)

		assert.Empty(t, f.fetcher.refs)
		require.Len(t, f.client.messages(), 1)
		assert.Equal(t, TextPremiumOnly, textReply(f.client.messages()[0]))
	})
}

func TestEspiarPlainConversationNeedsQuote(t *testing.T) {
	f := newFixture(true)
	v := groupMessage("", nil)
	v.Message = &waE2E.Message{Conversation: proto.String("!Espiar")}
	f.handle(v)

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, TextNeedQuote, textReply(sent[0]))
}

func TestEspiarNeedsQuote(t *testing.T) {
	f := newFixture(true)
	f.handle(groupMessage("!espiar", &waE2E.ContextInfo{StanzaID: proto.String("X")}))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, TextNeedQuote, textReply(sent[0]))
	assert.Empty(t, f.fetcher.refs)
}

func TestEspiarUnsupportedType(t *testing.T) {
	f := newFixture(true)
	quoted := &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}
	f.handle(groupMessage("!espiar", quoting(quoted)))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, TextUnsupportedType, textReply(sent[0]))
	assert.Empty(t, f.fetcher.refs)
}

func TestEspiarForwardsImage(t *testing.T) {
	f := newFixture(true)
	quoted := imageQuote()
	f.handle(groupMessage("!espiar", quoting(quoted)))

	require.Len(t, f.fetcher.refs, 1)
	ref := f.fetcher.refs[0]
	assert.Same(t, quoted, ref.Message)
	assert.Equal(t, types.MessageID("QUOTED1"), ref.ID)
	assert.Equal(t, groupJID, ref.Chat)
	assert.Equal(t, authorJID, ref.Sender)
	assert.False(t, ref.FromMe)

	require.Len(t, f.client.uploads, 1)
	assert.Equal(t, whatsmeow.MediaImage, f.client.uploads[0].mediaType)
	assert.Equal(t, []byte("media-bytes"), f.client.uploads[0].data)

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, groupJID, sent[0].to)
	img := sent[0].msg.GetImageMessage()
	require.NotNil(t, img)
	assert.Equal(t, "Image reenviado", img.GetCaption())
	assert.Equal(t, "image/png", img.GetMimetype())
	assert.Equal(t, []byte("thumb"), img.GetJPEGThumbnail())
	assert.Equal(t, uint32(640), img.GetWidth())
	assert.Equal(t, "/v/t62/x", img.GetDirectPath())
	assert.Equal(t, uint64(len("media-bytes")), img.GetFileLength())
	assert.Equal(t, "CMD1", img.GetContextInfo().GetStanzaID())
	assert.NotNil(t, img.GetContextInfo().GetQuotedMessage())
}

func TestEspiarForwardsVideoAndAudio(t *testing.T) {
	f := newFixture(true)
	f.handle(groupMessage("!espiar", quoting(&waE2E.Message{VideoMessage: &waE2E.VideoMessage{
		Seconds: proto.Uint32(12),
	}})))
	sent := f.client.messages()
	require.Len(t, sent, 1)
	vid := sent[0].msg.GetVideoMessage()
	require.NotNil(t, vid)
	assert.Equal(t, "Video reenviado", vid.GetCaption())
	assert.Equal(t, "video/mp4", vid.GetMimetype())
	assert.Equal(t, uint32(12), vid.GetSeconds())
	assert.Equal(t, whatsmeow.MediaVideo, f.client.uploads[0].mediaType)

	f = newFixture(true)
	f.handle(groupMessage("!espiar", quoting(&waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		PTT:      proto.Bool(true),
		Mimetype: proto.String("audio/ogg; codecs=opus"),
	}})))
	sent = f.client.messages()
	require.Len(t, sent, 1)
	aud := sent[0].msg.GetAudioMessage()
	require.NotNil(t, aud)
	assert.True(t, aud.GetPTT())
	assert.Equal(t, "CMD1", aud.GetContextInfo().GetStanzaID())
	assert.Equal(t, whatsmeow.MediaAudio, f.client.uploads[0].mediaType)
}

func TestEspiarGeneratesMissingThumbnail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 100, 100))))

	f := newFixture(true)
	f.fetcher.data = buf.Bytes()
	f.handle(groupMessage("!espiar", quoting(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}})))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.NotEmpty(t, sent[0].msg.GetImageMessage().GetJPEGThumbnail())
	assert.Equal(t, "image/jpeg", sent[0].msg.GetImageMessage().GetMimetype())
}

func TestEspiarLogsUndecodableThumbnailSource(t *testing.T) {
	f := newFixture(true)
	log := newRecordingLog()
	f.espiar = NewEspiar(f.client, f.premium, f.fetcher, f.lids, log)
	f.handle(groupMessage("!espiar", quoting(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}})))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].msg.GetImageMessage().GetJPEGThumbnail())
	assert.Equal(t, "Image reenviado", sent[0].msg.GetImageMessage().GetCaption())

	var found bool
	for _, line := range log.all() {
		if strings.HasPrefix(line, "DEBUG Sending image without thumbnail") {
			found = true
		}
	}
	assert.True(t, found, "logged lines: %v", log.all())
}

func TestEspiarNotMediaErrors(t *testing.T) {
	cases := map[string]error{
		"message text": errors.New("the quoted thing is not a media message"),
		"typed":        fmt.Errorf("fetch: %w", media.ErrNotMediaMessage),
	}
	for name, ferr := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(true)
			f.fetcher.err = ferr
			f.handle(groupMessage("!espiar", quoting(&waE2E.Message{VideoMessage: &waE2E.VideoMessage{}})))

			sent := f.client.messages()
			require.Len(t, sent, 1)
			assert.Equal(t, TextInvalidMedia, textReply(sent[0]))
			assert.Equal(t, "CMD1", sent[0].msg.GetExtendedTextMessage().GetContextInfo().GetStanzaID())
			assert.Empty(t, f.client.uploads)
		})
	}
}

func TestEspiarGenericFailures(t *testing.T) {
	audio := quoting(&waE2E.Message{AudioMessage: &waE2E.AudioMessage{}})
	cases := map[string]func(f *espiarFixture){
		"empty buffer":   func(f *espiarFixture) { f.fetcher.data = nil },
		"network error":  func(f *espiarFixture) { f.fetcher.err = errors.New("connection reset") },
		"fetch panics":   func(f *espiarFixture) { f.fetcher.panic = true },
		"premium lookup": func(f *espiarFixture) { f.premium.err = errors.New("mongo down") },
		"upload fails":   func(f *espiarFixture) { f.client.uploadErr = errors.New("upload 500") },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(true)
			setup(f)
			f.handle(groupMessage("!espiar", audio))

			sent := f.client.messages()
			require.Len(t, sent, 1)
			assert.Equal(t, TextProcessFailed, textReply(sent[0]))
			assert.Equal(t, groupJID, sent[0].to)
		})
	}
}

func TestEspiarErrorReplyIsBestEffort(t *testing.T) {
	f := newFixture(false)
	f.client.sendErr = errors.New("not connected")
	f.handle(groupMessage("!espiar", quoting(imageQuote())))

	// the rejection fails, then the generic error reply is attempted once
	sent := f.client.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, TextPremiumOnly, textReply(sent[0]))
	assert.Equal(t, TextProcessFailed, textReply(sent[1]))
}

func TestEspiarFailWithoutMessage(t *testing.T) {
	f := newFixture(true)
	f.espiar.fail(context.Background(), nil, errors.New("boom"))

	sent := f.client.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, types.EmptyJID, sent[0].to)
	assert.Nil(t, sent[0].msg.GetExtendedTextMessage().GetContextInfo())
}

func TestEspiarAttachListensForMessages(t *testing.T) {
	f := newFixture(false)
	f.espiar.Attach()
	require.Len(t, f.client.handlers, 1)

	f.client.handlers[0](&events.Connected{})
	f.client.handlers[0](groupMessage("!espiar", nil))

	require.Eventually(t, func() bool { return len(f.client.messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, TextPremiumOnly, textReply(f.client.messages()[0]))
}

func TestClassify(t *testing.T) {
	img := &waE2E.ImageMessage{}
	vid := &waE2E.VideoMessage{}
	aud := &waE2E.AudioMessage{}

	cases := []struct {
		name   string
		quoted *waE2E.Message
		kind   MediaKind
		tag    string
	}{
		{"image", &waE2E.Message{ImageMessage: img}, MediaImage, "image"},
		{"video", &waE2E.Message{VideoMessage: vid}, MediaVideo, "video"},
		{"audio", &waE2E.Message{AudioMessage: aud}, MediaAudio, "audio"},
		{"image wins", &waE2E.Message{ImageMessage: img, VideoMessage: vid, AudioMessage: aud}, MediaImage, "image"},
		{"video before audio", &waE2E.Message{VideoMessage: vid, AudioMessage: aud}, MediaVideo, "video"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, MediaNone, ""},
		{"text", &waE2E.Message{Conversation: proto.String("hi")}, MediaNone, ""},
		{"nil", nil, MediaNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := Classify(tc.quoted)
			assert.Equal(t, tc.kind, q.Kind)
			assert.Equal(t, tc.tag, q.Kind.String())
		})
	}

	q := Classify(&waE2E.Message{VideoMessage: vid, AudioMessage: aud})
	assert.Same(t, vid, q.Video)
	assert.Nil(t, q.Image)
	assert.Nil(t, q.Audio)
}

func TestCaption(t *testing.T) {
	assert.Equal(t, "Image reenviado", MediaImage.Caption())
	assert.Equal(t, "Video reenviado", MediaVideo.Caption())
	assert.Equal(t, "Audio reenviado", MediaAudio.Caption())
	assert.Equal(t, "", MediaNone.Caption())
}
