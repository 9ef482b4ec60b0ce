package plugins

import (
	"context"
	"sort"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/UserUnkown0/Iam.LSpooky/media"
	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

// Client is the part of *whatsmeow.Client the plugins talk to.
type Client interface {
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

// MediaFetcher resolves a reference into media bytes.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref media.Reference) ([]byte, error)
}

// Deps is everything a plugin may need. Plugins receive it once when they
// are attached to a client.
type Deps struct {
	Client  Client
	Premium premium.Store
	Media   MediaFetcher
	// LIDs resolves @lid senders to phone numbers. May be nil.
	LIDs LIDResolver
	// IsOwner reports whether a sender may run owner commands.
	IsOwner func(sender types.JID) bool
	Log     waLog.Logger
}

type Plugin struct {
	Name     string
	Category string
	Attach   func(Deps) uint32
}

var Plugins = make(map[string]Plugin)

// Register makes a plugin available to AttachAll. Called from init().
func Register(name, category string, attach func(Deps) uint32) {
	Plugins[name] = Plugin{Name: name, Category: category, Attach: attach}
}

// AttachAll attaches every registered plugin to d.Client and returns the
// event handler id of each, keyed by plugin name.
func AttachAll(d Deps) map[string]uint32 {
	if d.Log == nil {
		d.Log = waLog.Noop
	}
	if d.IsOwner == nil {
		d.IsOwner = func(types.JID) bool { return false }
	}
	names := make([]string, 0, len(Plugins))
	for name := range Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	ids := make(map[string]uint32, len(names))
	for _, name := range names {
		p := Plugins[name]
		ids[name] = p.Attach(d)
		d.Log.Infof("Plugin %s (%s) attached", p.Name, p.Category)
	}
	return ids
}
