// Package premium decides which senders may use the gated bot commands.
package premium

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"
)

var ErrNotFound = errors.New("premium user not found")

// Checker answers whether a sender may use premium commands.
type Checker interface {
	IsPremium(ctx context.Context, sender types.JID) (bool, error)
}

// Store is a Checker that can also be managed.
type Store interface {
	Checker
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, number string) error
	List(ctx context.Context) ([]Entry, error)
}

// Entry is one premium user. A zero ExpiresAt never expires.
type Entry struct {
	Number    string    `bson:"_id" json:"number" yaml:"number"`
	AddedBy   string    `bson:"added_by,omitempty" json:"added_by,omitempty" yaml:"added_by,omitempty"`
	AddedAt   time.Time `bson:"added_at" json:"added_at" yaml:"added_at,omitempty"`
	ExpiresAt time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func (e Entry) Active(now time.Time) bool {
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// Normalize reduces a JID to the bare user part, dropping the device suffix.
func Normalize(jid types.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	return NormalizeNumber(jid.ToNonAD().User)
}

// NormalizeNumber turns "+92 300-1234567", "923001234567@s.whatsapp.net" or
// "923001234567:12@s.whatsapp.net" into "923001234567".
func NormalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
