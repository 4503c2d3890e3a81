package rfid

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/repositories/scanlog"
)

// Handler receives accepted scans. The returned tap id (if any) is recorded
// in the scan log.
type Handler func(ctx context.Context, s Scan) (tapID string, err error)

type Listener struct {
	rdb     *redis.Client
	channel string
	filter  *Filter
	log     scanlog.Repository
	logger  logging.Logger
	now     func() time.Time

	connected atomic.Bool
}

func NewListener(rdb *redis.Client, channel string, filter *Filter, log scanlog.Repository, logger logging.Logger) *Listener {
	return &Listener{
		rdb:     rdb,
		channel: channel,
		filter:  filter,
		log:     log,
		logger:  logger,
		now:     time.Now,
	}
}

// Connected reports whether the subscription is live.
func (l *Listener) Connected() bool { return l.connected.Load() }

// Run subscribes to the scan channel and dispatches every message until ctx
// is cancelled. The last stored scan is dispatched once on start, so a tap
// that happened moments before a restart is not lost (the staleness window
// still applies).
func (l *Listener) Run(ctx context.Context, handle Handler) error {
	for {
		err := l.subscribe(ctx, handle)
		l.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn(ctx, "scan subscription lost, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (l *Listener) subscribe(ctx context.Context, handle Handler) error {
	sub := l.rdb.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	l.connected.Store(true)
	l.logger.Info(ctx, "listening for scans", "channel", l.channel)

	if last, err := l.rdb.Get(ctx, l.channel).Bytes(); err == nil {
		l.Dispatch(ctx, last, handle)
	} else if !errors.Is(err, redis.Nil) {
		l.logger.Warn(ctx, "read last scan", "error", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			l.Dispatch(ctx, []byte(msg.Payload), handle)
		}
	}
}

// Dispatch parses, filters and logs one payload, then hands accepted scans to handle.
func (l *Listener) Dispatch(ctx context.Context, payload []byte, handle Handler) Verdict {
	now := l.now()
	scan, err := ParseScan(payload, now)
	verdict := Invalid
	if err == nil {
		verdict = l.filter.Check(scan, now)
	}

	entry := scanlog.Entry{
		CardID:     scan.CardID,
		Verdict:    string(verdict),
		ScannedAt:  scan.Timestamp,
		ReceivedAt: now,
		Raw:        scan.Raw,
	}

	if verdict == Accepted && handle != nil {
		tapID, herr := handle(ctx, scan)
		entry.TapID = tapID
		if herr != nil {
			l.logger.Info(ctx, "scan not routed", "card_id", scan.CardID, "reason", herr.Error())
		}
	} else {
		l.logger.Debug(ctx, "scan ignored", "card_id", scan.CardID, "verdict", verdict)
	}

	if err := l.log.Append(ctx, entry); err != nil {
		l.logger.Warn(ctx, "scan log append failed", "error", err)
	}
	return verdict
}

// Publisher stores the latest scan and announces it on the channel, the same
// way the kiosk reader does.
type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, s Scan) error {
	payload := s.Encode()
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.channel, payload, time.Minute)
		pipe.Publish(ctx, p.channel, payload)
		return nil
	})
	return err
}
