package runtime

import (
	"chat-relay/codec"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"time"
)

type censor interface {
	Censor(text string) string
}

// Router resolves recipients through the registry and hands encoded frames to
// their sessions. It never touches a connection: every write goes through
// contract.Peer.Send, which holds the recipient's outbound lock.
//
// Delivery is best-effort. A recipient whose socket just died is skipped and
// the rest of the fan-out continues; the sender never sees the failure.
type Router struct {
	log      *slog.Logger
	registry contract.IRegistry
	censor   censor
	now      func() time.Time
}

// NewRouter builds a router. moderator may be nil to relay text untouched.
func NewRouter(log *slog.Logger, registry contract.IRegistry, moderator censor) *Router {
	return &Router{log: log, registry: registry, censor: moderator, now: time.Now}
}

// Route dispatches a validated message received from an Active sender.
// From and Timestamp are always overwritten with the sender's registered
// name and the dispatch time.
func (r *Router) Route(sender contract.Peer, msg domain.Message) {
	at := r.now()
	from := sender.Username()

	switch msg.Kind {
	case domain.KindMsg:
		out := domain.Message{Kind: domain.KindMsg, Text: r.moderate(msg.Text)}.Stamp(from, at)
		n := r.BroadcastToAll(out)
		r.log.Debug("Message broadcast", "from", from, "recipients", n)

	case domain.KindPM:
		out := domain.Message{Kind: domain.KindPM, To: msg.To, Text: r.moderate(msg.Text)}.Stamp(from, at)
		if err := r.DeliverTo(msg.To, out); err != nil {
			r.log.Debug("Private message not delivered", "from", from, "to", msg.To, "error", err)
			r.reply(sender, domain.NewSys(fmt.Sprintf("User '%s' not found", msg.To), at))
		}
		// The sender renders its own copy from the echo.
		r.reply(sender, out)

	case domain.KindLeave:
		r.log.Info("Client announced leave", "username", from)

	default:
		r.log.Debug("Ignoring message", "username", from, "kind", msg.Kind)
	}
}

// Joined notifies every other session of a new member, then converges
// everyone, newcomer included, on the same roster.
func (r *Router) Joined(username string) {
	r.BroadcastExcept(domain.NewPresence(domain.KindJoin, username, r.now()), username)
	r.BroadcastToAll(r.Roster())
}

// Left notifies the remaining sessions. The username must already be
// unregistered so the refreshed roster no longer carries it.
func (r *Router) Left(username string) {
	r.BroadcastToAll(domain.NewPresence(domain.KindLeave, username, r.now()))
	r.BroadcastToAll(r.Roster())
}

// Roster builds a userlist message from the current registry snapshot.
func (r *Router) Roster() domain.Message {
	return domain.NewUserList(r.registry.Roster(), r.now())
}

// BroadcastToAll delivers to every registered session and returns how many
// deliveries succeeded.
func (r *Router) BroadcastToAll(msg domain.Message) int {
	return r.broadcast(msg, "")
}

// BroadcastExcept delivers to every registered session but one.
func (r *Router) BroadcastExcept(msg domain.Message, username string) int {
	return r.broadcast(msg, username)
}

// DeliverTo sends to exactly one session. It fails only when the username is
// not registered; a write failure to a registered session is swallowed.
func (r *Router) DeliverTo(username string, msg domain.Message) error {
	peer, ok := r.registry.Lookup(username)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUserNotFound, username)
	}
	r.reply(peer, msg)
	return nil
}

func (r *Router) broadcast(msg domain.Message, skip string) int {
	frame, err := codec.Encode(msg)
	if err != nil {
		r.log.Error("Dropping unencodable message", "kind", msg.Kind, "error", err)
		return 0
	}

	delivered := 0
	for _, peer := range r.registry.Peers() {
		if skip != "" && peer.Username() == skip {
			continue
		}
		if r.send(peer, msg.Kind, frame) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) reply(peer contract.Peer, msg domain.Message) {
	frame, err := codec.Encode(msg)
	if err != nil {
		r.log.Error("Dropping unencodable message", "kind", msg.Kind, "error", err)
		return
	}
	r.send(peer, msg.Kind, frame)
}

func (r *Router) send(peer contract.Peer, kind domain.Kind, frame []byte) bool {
	if err := peer.Send(frame); err != nil {
		r.log.Debug("Delivery failed",
			"username", peer.Username(),
			"kind", kind,
			"error", fmt.Errorf("%w: %v", errors.ErrDelivery, err))
		return false
	}
	return true
}

func (r *Router) moderate(text string) string {
	if r.censor == nil {
		return text
	}
	return r.censor.Censor(text)
}
