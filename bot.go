package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/UserUnkown0/Iam.LSpooky/media"
	"github.com/UserUnkown0/Iam.LSpooky/plugins"
	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

// Bot owns the whatsmeow client. Replacing the client (after a new pairing)
// attaches every plugin to the new one.
type Bot struct {
	cfg       *Config
	container *sqlstore.Container
	premium   premium.Store
	log       waLog.Logger

	mu     sync.RWMutex
	client *whatsmeow.Client
}

func NewBot(cfg *Config, container *sqlstore.Container, store premium.Store, log waLog.Logger) *Bot {
	return &Bot{cfg: cfg, container: container, premium: store, log: log}
}

// findDevice returns this bot's device by push name tag, or a fresh one.
func (b *Bot) findDevice(ctx context.Context) (*store.Device, error) {
	devices, err := b.container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.PushName == b.cfg.BotTag {
			return dev, nil
		}
	}
	b.log.Infof("No session for %s, waiting for pairing from the web dashboard", b.cfg.BotTag)
	dev := b.container.NewDevice()
	dev.PushName = b.cfg.BotTag
	return dev, nil
}

func (b *Bot) newClient(dev *store.Device) *whatsmeow.Client {
	client := whatsmeow.NewClient(dev, waLog.Stdout("Client", b.cfg.LogLevel, true))
	client.AddEventHandler(b.onEvent)

	fetcher := media.NewFetcher(client, media.Options{
		Reupload:        b.cfg.MediaReupload,
		ReuploadTimeout: b.cfg.MediaReuploadTimeout,
		Log:             b.log.Sub("Media"),
	})
	plugins.AttachAll(plugins.Deps{
		Client:  client,
		Premium: b.premium,
		Media:   fetcher,
		LIDs:    client.Store.LIDs,
		IsOwner: func(sender types.JID) bool { return b.isOwner(client, sender) },
		Log:     b.log,
	})
	return client
}

func (b *Bot) onEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		b.log.Infof("Connected")
	case *events.PairSuccess:
		b.log.Infof("Paired as %s (%s)", v.ID, v.Platform)
	case *events.LoggedOut:
		b.log.Warnf("Logged out: %s", v.Reason)
	}
}

// Start loads the device and connects if it is already logged in.
func (b *Bot) Start(ctx context.Context) error {
	dev, err := b.findDevice(ctx)
	if err != nil {
		return err
	}
	client := b.newClient(dev)

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()

	if client.Store.ID == nil {
		return nil
	}
	b.log.Infof("Logged in as %s", client.Store.ID.User)
	return client.Connect()
}

// Pair wipes this bot's old session and returns a phone pairing code for
// number.
func (b *Bot) Pair(ctx context.Context, number string) (string, error) {
	b.log.Infof("Wiping session %s for pairing with %s", b.cfg.BotTag, number)
	devices, err := b.container.GetAllDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.PushName == b.cfg.BotTag {
			if err := b.container.DeleteDevice(ctx, dev); err != nil {
				b.log.Warnf("Failed to delete old device %s: %v", dev.ID, err)
			}
		}
	}

	dev := b.container.NewDevice()
	dev.PushName = b.cfg.BotTag

	b.mu.Lock()
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect()
	}
	client := b.newClient(dev)
	b.client = client
	b.mu.Unlock()

	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	select {
	case <-time.After(b.cfg.PairWait):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return client.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

func (b *Bot) Connected() (connected, loggedIn bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.client == nil {
		return false, false
	}
	return b.client.IsConnected(), b.client.IsLoggedIn()
}

func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect()
	}
}

// isOwner allows the configured owner and the bot's own account. Plugins
// resolve @lid senders before asking; an unresolved one only matches the
// bot's own LID.
func (b *Bot) isOwner(client *whatsmeow.Client, sender types.JID) bool {
	n := premium.Normalize(sender)
	if n == "" {
		return false
	}
	if sender.Server == types.HiddenUserServer {
		return !client.Store.LID.IsEmpty() && n == premium.Normalize(client.Store.LID)
	}
	if owner := premium.NormalizeNumber(b.cfg.OwnerNumber); owner != "" && n == owner {
		return true
	}
	return client.Store.ID != nil && n == premium.Normalize(*client.Store.ID)
}
