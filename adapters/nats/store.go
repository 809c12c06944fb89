package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/GeorGeWzw/aggregates-go/core/aggregate"
)

const (
	defaultStreamName    = "AGG_EVENTS"
	defaultSubjectPrefix = "agg.events"

	headerEventType = "x-event-type"
	headerAggType   = "x-aggregate-type"
	headerAggID     = "x-aggregate-id"
	headerBucket    = "x-bucket"

	// loadBatch is how many messages one fetch pulls during a replay.
	loadBatch = 100
)

type EventStoreConfig struct {
	// Connect opens the NATS connection, ConnectDefault when nil.
	Connect Connector
	Log     *slog.Logger
	// StreamName is the JetStream stream holding all events, uppercased,
	// default AGG_EVENTS.
	StreamName string
	// SubjectPrefix prefixes every event subject; events are published to
	// "<prefix>.<bucket>.<type>.<id>". Default "agg.events".
	SubjectPrefix string
}

func (c EventStoreConfig) withDefaults() EventStoreConfig {
	if c.Connect == nil {
		c.Connect = ConnectDefault()
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	c.StreamName = strings.ToUpper(c.StreamName)
	if c.StreamName == "" {
		c.StreamName = defaultStreamName
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = defaultSubjectPrefix
	}
	return c
}

// EventStore stores streams as JetStream subjects under one stream. Appends
// are guarded twice: a read of the stream's last envelope checks the
// expected version, and every publish carries the expected last subject
// sequence so a racing writer loses at the server.
type EventStore struct {
	release func()
	js      jetstream.JetStream
	stream  jetstream.Stream
	log     *slog.Logger
	prefix  string
}

var _ aggregate.EventStore = (*EventStore)(nil)

func NewEventStore(cfg EventStoreConfig) (*EventStore, error) {
	cfg = cfg.withDefaults()

	nc, release, err := cfg.Connect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		release()
		return nil, err
	}

	log := cfg.Log.With(
		slog.String("store", "jetstream"),
		slog.String("stream", cfg.StreamName),
		slog.String("subject_prefix", cfg.SubjectPrefix),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
		FirstSeq: 1,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}
	log.Debug("stream ensured")

	return &EventStore{
		release: release,
		js:      js,
		stream:  stream,
		log:     log,
		prefix:  cfg.SubjectPrefix,
	}, nil
}

func (e *EventStore) Close() error {
	e.release()
	e.log.Debug("event store closed")
	return nil
}

func (e *EventStore) subjectFor(sid aggregate.StreamID) string {
	return e.prefix + "." + sid.Bucket + "." + sid.Type + "." + sid.ID
}

func (e *EventStore) Load(ctx context.Context, sid aggregate.StreamID, opts ...aggregate.StoreLoadOption) ([]aggregate.Envelope, error) {
	if err := sid.Validate(); err != nil {
		return nil, err
	}
	options := aggregate.NewStoreLoadOptions(opts...)

	startAt := time.Now()

	last, err := e.lastEnvelope(ctx, sid)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, fmt.Errorf("%w: %s", aggregate.ErrAggregateNotFound, sid.Key())
	}
	// everything up to the tail is already covered, e.g. by a memento
	if options.StartSeq > last.Seq {
		return []aggregate.Envelope{}, nil
	}

	oc := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{e.subjectFor(sid)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if options.StartSeq > 0 {
		oc.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		oc.OptStartSeq = options.StartSeq
	}
	consumer, err := e.stream.OrderedConsumer(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", sid.Key(), err)
	}

	envs, err := e.drainUntil(ctx, consumer, last.Seq, options.StartVersion)
	if err != nil {
		return nil, err
	}

	e.log.Debug("events loaded",
		sid.SlogAttr(),
		slog.Int("num_events", len(envs)),
		slog.Duration("duration", time.Since(startAt)),
	)
	return envs, nil
}

// drainUntil reads the filtered subject up to and including endSeq, skipping
// envelopes below minVersion.
func (e *EventStore) drainUntil(ctx context.Context, cc jetstream.Consumer, endSeq uint64, minVersion aggregate.Version) ([]aggregate.Envelope, error) {
	envs := make([]aggregate.Envelope, 0, 64)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := cc.FetchNoWait(loadBatch)
		if err != nil {
			return nil, err
		}
		if batch.Error() != nil {
			return nil, batch.Error()
		}

		fetched := 0
		for msg := range batch.Messages() {
			fetched++
			env, err := e.decodeMsg(msg)
			if err != nil {
				return nil, err
			}
			if env.Version >= minVersion {
				envs = append(envs, *env)
			}
			if env.Seq >= endSeq {
				return envs, nil
			}
		}
		// a drained batch before endSeq means the subject has no more
		// messages, stop instead of spinning
		if fetched == 0 {
			return envs, nil
		}
	}
}

func (e *EventStore) Append(ctx context.Context, sid aggregate.StreamID, expect aggregate.Version, envs []aggregate.Envelope) (*aggregate.AppendResult, error) {
	if err := sid.Validate(); err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, aggregate.ErrNoEvents
	}

	last, err := e.lastEnvelope(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("read stream tail: %w", err)
	}
	var (
		current     aggregate.Version
		lastSubjSeq uint64
	)
	if last != nil {
		current = last.Version
		lastSubjSeq = last.Seq
	}
	if current != expect {
		return nil, fmt.Errorf("%w: stream %s at version %d, expected %d",
			aggregate.ErrStreamConflict, sid.Key(), current, expect)
	}
	// validate the whole batch before the first publish; a multi-envelope
	// append is not atomic, so nothing avoidable may fail mid-batch
	if err := aggregate.ValidateAppend(sid, current, envs); err != nil {
		return nil, err
	}

	subject := e.subjectFor(sid)
	for _, env := range envs {
		msg := natsgo.NewMsg(subject)
		msg.Header.Set(headerEventType, env.Type)
		msg.Header.Set(headerAggType, sid.Type)
		msg.Header.Set(headerAggID, sid.ID)
		msg.Header.Set(headerBucket, sid.Bucket)
		msg.Data, err = json.Marshal(env)
		if err != nil {
			return nil, err
		}

		ack, err := e.js.PublishMsg(ctx, msg,
			jetstream.WithMsgID(env.ID),
			jetstream.WithExpectLastSequencePerSubject(lastSubjSeq),
		)
		if err != nil {
			if isWrongLastSequence(err) {
				return nil, fmt.Errorf("%w: stream %s moved past subject seq %d",
					aggregate.ErrStreamConflict, sid.Key(), lastSubjSeq)
			}
			return nil, fmt.Errorf("publish %s to %s: %w", env.Type, subject, err)
		}
		lastSubjSeq = ack.Sequence
	}

	e.log.Debug("events appended",
		sid.SlogAttr(),
		slog.Int("num_events", len(envs)),
		slog.Uint64("last_seq", lastSubjSeq),
	)
	return &aggregate.AppendResult{LastSeq: lastSubjSeq}, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

func (e *EventStore) decodeMsg(msg jetstream.Msg) (*aggregate.Envelope, error) {
	md, err := msg.Metadata()
	if err != nil {
		return nil, err
	}
	out := &aggregate.Envelope{}
	if err := json.Unmarshal(msg.Data(), out); err != nil {
		return nil, fmt.Errorf("decode message %d: %w", md.Sequence.Stream, err)
	}
	out.Seq = md.Sequence.Stream
	return out, nil
}

// lastEnvelope returns the newest envelope of the stream, nil when the
// subject has no messages.
func (e *EventStore) lastEnvelope(ctx context.Context, sid aggregate.StreamID) (*aggregate.Envelope, error) {
	subject := e.subjectFor(sid)
	lm, err := e.stream.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := &aggregate.Envelope{}
	if err := json.Unmarshal(lm.Data, out); err != nil {
		return nil, fmt.Errorf("decode last message for %s: %w", subject, err)
	}
	out.Seq = lm.Sequence
	return out, nil
}
