package pakd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pakctl/internal/logfields"
)

// NATSStreamer is an alternative ChangeStreamer for deployments where the
// daemon publishes change updates on a NATS bus instead of (or alongside)
// its SSE endpoint. One subject per change: <prefix>.change.<id>.
type NATSStreamer struct {
	conn   *nats.Conn
	prefix string
}

var _ ChangeStreamer = (*NATSStreamer)(nil)

// NewNATSStreamer connects to the NATS server at url. The prefix defaults to
// "pakd" when empty.
func NewNATSStreamer(url, prefix string) (*NATSStreamer, error) {
	if prefix == "" {
		prefix = "pakd"
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS change streamer connected", "url", url, "subject_prefix", prefix)

	return &NATSStreamer{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject carrying updates for a change id.
func (s *NATSStreamer) Subject(changeID string) string {
	return fmt.Sprintf("%s.change.%s", s.prefix, changeID)
}

// Stream implements ChangeStreamer. The subscription is torn down when the
// change goes terminal or ctx is canceled; the change itself is untouched.
func (s *NATSStreamer) Stream(ctx context.Context, changeID string) (<-chan ChangeUpdate, error) {
	subject := s.Subject(changeID)
	msgs := make(chan *nats.Msg, 16)
	sub, err := s.conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, &DaemonError{Verb: "watch", Message: "subscribe " + subject, Cause: err}
	}

	out := make(chan ChangeUpdate)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				slog.Warn("Failed to unsubscribe change stream",
					logfields.Subject(subject), logfields.Error(err))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				update, err := DecodeUpdate(msg.Data, changeID)
				if err != nil {
					slog.Warn("Dropping malformed change event",
						logfields.Subject(subject), logfields.Error(err))
					continue
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
				if update.Terminal() {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the NATS connection.
func (s *NATSStreamer) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// DecodeUpdate decodes one published change event. The change id is filled
// in from the subject when the payload omits it.
func DecodeUpdate(data []byte, changeID string) (ChangeUpdate, error) {
	var update ChangeUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return ChangeUpdate{}, fmt.Errorf("decode change event: %w", err)
	}
	if update.ID == "" {
		update.ID = changeID
	}
	return update, nil
}
