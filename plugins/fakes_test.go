package plugins

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/UserUnkown0/Iam.LSpooky/media"
)

var (
	groupJID  = types.NewJID("120363025246125486", types.GroupServer)
	senderJID = types.NewJID("5215512345678", types.DefaultUserServer)
	authorJID = types.NewJID("5215587654321", types.DefaultUserServer)
)

type sentMessage struct {
	to  types.JID
	msg *waE2E.Message
}

type upload struct {
	data      []byte
	mediaType whatsmeow.MediaType
}

type fakeClient struct {
	mu        sync.Mutex
	sent      []sentMessage
	uploads   []upload
	handlers  []whatsmeow.EventHandler
	sendErr   error
	uploadErr error
}

func (c *fakeClient) AddEventHandler(h whatsmeow.EventHandler) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
	return uint32(len(c.handlers))
}

func (c *fakeClient) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: to, msg: msg})
	if c.sendErr != nil {
		return whatsmeow.SendResponse{}, c.sendErr
	}
	return whatsmeow.SendResponse{ID: "SENT", Timestamp: time.Now()}, nil
}

func (c *fakeClient) Upload(_ context.Context, data []byte, mt whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads = append(c.uploads, upload{data: data, mediaType: mt})
	if c.uploadErr != nil {
		return whatsmeow.UploadResponse{}, c.uploadErr
	}
	return whatsmeow.UploadResponse{
		URL:           "https://mmg.whatsapp.net/x",
		DirectPath:    "/v/t62/x",
		MediaKey:      []byte("mediakey"),
		FileEncSHA256: []byte("enc"),
		FileSHA256:    []byte("sha"),
		FileLength:    uint64(len(data)),
	}, nil
}

func (c *fakeClient) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type fakePremium struct {
	users map[string]bool
	err   error
}

func (p *fakePremium) IsPremium(_ context.Context, sender types.JID) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.users[sender.User], nil
}

type fakeLIDs struct {
	mu    sync.Mutex
	pn    map[string]types.JID
	err   error
	asked []types.JID
}

func (l *fakeLIDs) GetPNForLID(_ context.Context, lid types.JID) (types.JID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.asked = append(l.asked, lid)
	if l.err != nil {
		return types.EmptyJID, l.err
	}
	return l.pn[lid.User], nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	data  []byte
	err   error
	panic bool
	refs  []media.Reference
}

func (f *fakeFetcher) Fetch(_ context.Context, ref media.Reference) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	if f.panic {
		panic("boom")
	}
	return f.data, f.err
}

// recordingLog keeps every formatted line, prefixed with its level.
type recordingLog struct {
	mu    *sync.Mutex
	lines *[]string
}

func newRecordingLog() recordingLog {
	return recordingLog{mu: &sync.Mutex{}, lines: &[]string{}}
}

func (l recordingLog) add(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.lines = append(*l.lines, level+" "+fmt.Sprintf(msg, args...))
}

func (l recordingLog) Warnf(msg string, args ...any)  { l.add("WARN", msg, args...) }
func (l recordingLog) Errorf(msg string, args ...any) { l.add("ERROR", msg, args...) }
func (l recordingLog) Infof(msg string, args ...any)  { l.add("INFO", msg, args...) }
func (l recordingLog) Debugf(msg string, args ...any) { l.add("DEBUG", msg, args...) }
func (l recordingLog) Sub(string) waLog.Logger        { return l }

func (l recordingLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), *l.lines...)
}

func textReply(m sentMessage) string {
	return m.msg.GetExtendedTextMessage().GetText()
}

func groupMessage(text string, ci *waE2E.ContextInfo) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    groupJID,
				Sender:  senderJID,
				IsGroup: true,
			},
			ID: "CMD1",
		},
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(text),
			ContextInfo: ci,
		}},
	}
}

func quoting(quoted *waE2E.Message) *waE2E.ContextInfo {
	return &waE2E.ContextInfo{
		StanzaID:      proto.String("QUOTED1"),
		Participant:   proto.String(authorJID.String()),
		QuotedMessage: quoted,
	}
}
