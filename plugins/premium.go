package plugins

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/UserUnkown0/Iam.LSpooky/premium"
)

const PremiumTrigger = "!premium"

func init() {
	Register("premium", "Owner", func(d Deps) uint32 {
		return NewPremiumAdmin(d.Client, d.Premium, d.LIDs, d.IsOwner, d.Log).Attach()
	})
}

// PremiumAdmin lets the owner manage premium users from the chat:
//
//	!premium                        am I premium?
//	!premium add <n|@user> [days]   grant, optionally for a number of days
//	!premium del <n|@user>          revoke
//	!premium list                   show everyone
//
// The target may also be given by replying to one of their messages.
type PremiumAdmin struct {
	client  Client
	store   premium.Store
	lids    LIDResolver
	isOwner func(types.JID) bool
	log     waLog.Logger
	now     func() time.Time
}

func NewPremiumAdmin(client Client, store premium.Store, lids LIDResolver, isOwner func(types.JID) bool, log waLog.Logger) *PremiumAdmin {
	if log == nil {
		log = waLog.Noop
	}
	if isOwner == nil {
		isOwner = func(types.JID) bool { return false }
	}
	return &PremiumAdmin{client: client, store: store, lids: lids, isOwner: isOwner, log: log.Sub("Premium"), now: time.Now}
}

func (p *PremiumAdmin) Attach() uint32 {
	return p.client.AddEventHandler(func(evt any) {
		if v, ok := evt.(*events.Message); ok {
			go p.Handle(context.Background(), v)
		}
	})
}

func (p *PremiumAdmin) Handle(ctx context.Context, v *events.Message) {
	if v == nil || v.Message == nil || v.Info.IsFromMe {
		return
	}
	fields := strings.Fields(messageText(v.Message))
	if len(fields) == 0 || strings.ToLower(fields[0]) != PremiumTrigger {
		return
	}
	args := fields[1:]
	sender := phoneJID(ctx, p.lids, p.log, v.Info.Sender, v.Info.SenderAlt)

	var (
		text string
		err  error
	)
	if len(args) == 0 {
		text, err = p.self(ctx, sender)
	} else {
		if !p.isOwner(sender) {
			p.log.Debugf("Ignoring %s %s from non-owner %s", PremiumTrigger, args[0], sender)
			return
		}
		switch strings.ToLower(args[0]) {
		case "add":
			text, err = p.add(ctx, v, sender, args[1:])
		case "del", "delete", "remove":
			text, err = p.del(ctx, v, args[1:])
		case "list":
			text, err = p.list(ctx)
		default:
			text = usage
		}
	}
	if err != nil {
		p.log.Errorf("%s failed: %v", PremiumTrigger, err)
		text = "❌ Error: " + err.Error()
	}
	if _, err := replyText(ctx, p.client, v.Info.Chat, text, v); err != nil {
		p.log.Warnf("Failed to reply to %s: %v", v.Info.Chat, err)
	}
}

const usage = "ℹ️ Uso:\n*!premium add* <número> [días]\n*!premium del* <número>\n*!premium list*"

func (p *PremiumAdmin) self(ctx context.Context, sender types.JID) (string, error) {
	ok, err := p.store.IsPremium(ctx, sender)
	if err != nil {
		return "", err
	}
	if ok {
		return "💎 Eres *usuario premium*.", nil
	}
	return "🔒 No eres usuario premium.", nil
}

func (p *PremiumAdmin) add(ctx context.Context, v *events.Message, by types.JID, args []string) (string, error) {
	number, rest := p.target(ctx, v, args)
	if number == "" {
		return usage, nil
	}
	e := premium.Entry{Number: number, AddedBy: premium.Normalize(by), AddedAt: p.now()}
	if len(rest) > 0 {
		days, err := strconv.Atoi(rest[0])
		if err != nil || days <= 0 {
			return "❌ Días inválidos: " + rest[0], nil
		}
		e.ExpiresAt = e.AddedAt.Add(time.Duration(days) * 24 * time.Hour)
	}
	if err := p.store.Add(ctx, e); err != nil {
		return "", err
	}
	if e.ExpiresAt.IsZero() {
		return fmt.Sprintf("✅ %s ahora es premium.", number), nil
	}
	return fmt.Sprintf("✅ %s es premium hasta %s.", number, e.ExpiresAt.Format("2006-01-02")), nil
}

func (p *PremiumAdmin) del(ctx context.Context, v *events.Message, args []string) (string, error) {
	number, _ := p.target(ctx, v, args)
	if number == "" {
		return usage, nil
	}
	err := p.store.Remove(ctx, number)
	if errors.Is(err, premium.ErrNotFound) {
		return fmt.Sprintf("⚠️ %s no era premium.", number), nil
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑️ %s ya no es premium.", number), nil
}

func (p *PremiumAdmin) list(ctx context.Context) (string, error) {
	entries, err := p.store.List(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "📭 No hay usuarios premium.", nil
	}
	now := p.now()
	var b strings.Builder
	b.WriteString("💎 *Usuarios premium*\n")
	for _, e := range entries {
		switch {
		case e.ExpiresAt.IsZero():
			fmt.Fprintf(&b, "• %s\n", e.Number)
		case e.Active(now):
			fmt.Fprintf(&b, "• %s (hasta %s)\n", e.Number, e.ExpiresAt.Format("2006-01-02"))
		default:
			fmt.Fprintf(&b, "• %s (vencido)\n", e.Number)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// target picks who a sub-command is about: a mention, then the author of
// the quoted message, then the first argument. It returns the arguments
// left after the target. Mentions and quoted authors in @lid form are
// resolved to their phone number.
func (p *PremiumAdmin) target(ctx context.Context, v *events.Message, args []string) (string, []string) {
	ci := v.Message.GetExtendedTextMessage().GetContextInfo()
	if m := ci.GetMentionedJID(); len(m) > 0 {
		if len(args) > 0 && strings.HasPrefix(args[0], "@") {
			args = args[1:]
		}
		return p.targetNumber(ctx, m[0]), args
	}
	if part := ci.GetParticipant(); part != "" && ci.GetQuotedMessage() != nil {
		return p.targetNumber(ctx, part), args
	}
	if len(args) > 0 {
		if n := premium.NormalizeNumber(args[0]); n != "" {
			return n, args[1:]
		}
	}
	return "", args
}

func (p *PremiumAdmin) targetNumber(ctx context.Context, raw string) string {
	jid, err := types.ParseJID(raw)
	if err != nil {
		return premium.NormalizeNumber(raw)
	}
	return premium.Normalize(phoneJID(ctx, p.lids, p.log, jid, types.EmptyJID))
}
