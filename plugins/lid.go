package plugins

import (
	"context"

	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// LIDResolver maps hidden user ids (@lid) to phone number JIDs.
// whatsmeow's store.LIDStore implements it.
type LIDResolver interface {
	GetPNForLID(ctx context.Context, lid types.JID) (types.JID, error)
}

// phoneJID returns the phone number JID behind jid. A @lid jid is resolved
// from alt when that is a phone number JID, then from the LID store. Any other
// jid, or one that can't be resolved, is returned as is.
func phoneJID(ctx context.Context, lids LIDResolver, log waLog.Logger, jid, alt types.JID) types.JID {
	if jid.Server != types.HiddenUserServer {
		return jid
	}
	if alt.Server == types.DefaultUserServer {
		return alt
	}
	if lids == nil {
		return jid
	}
	pn, err := lids.GetPNForLID(ctx, jid.ToNonAD())
	if err != nil {
		log.Warnf("Failed to resolve %s to a phone number: %v", jid, err)
		return jid
	}
	if pn.IsEmpty() {
		log.Debugf("No phone number known for %s", jid)
		return jid
	}
	return pn
}
