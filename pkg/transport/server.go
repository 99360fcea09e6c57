// Package transport is the wire edge of the translator: it consumes
// translation requests from a Redis Stream, admits them into the pool
// manager, and publishes result envelopes back on a second stream.
//
// Streams layout:
//   - translator:requests: inbound requests, read through the
//     "translators" consumer group so several server instances can share
//     the work
//   - translator:results: outbound envelopes (completions, errors,
//     skips, pongs), capped with MAXLEN ~10000
package transport

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"babelpool/pkg/logger"
	"babelpool/pkg/tasks"
)

const (
	RequestStream = "translator:requests"
	ResultStream  = "translator:results"

	consumerGroup = "translators"
	maxStreamLen  = 10000

	// Version is stamped on every result envelope.
	Version = "1.0.0"
)

const (
	defaultBlock    = 2 * time.Second
	defaultCount    = 10
	defaultMaxText  = 10000
	busyGroupErrMsg = "BUSYGROUP Consumer Group name already exists"
)

// Request is the wire shape of one inbound message. Unset fields fall
// back to the historical defaults: sourceLanguage "fr", conversationId
// "unknown", modelType "basic".
type Request struct {
	Type            string   `json:"type,omitempty"`
	MessageID       string   `json:"messageId,omitempty"`
	ConversationID  string   `json:"conversationId,omitempty"`
	Text            string   `json:"text,omitempty"`
	SourceLanguage  string   `json:"sourceLanguage,omitempty"`
	TargetLanguages []string `json:"targetLanguages,omitempty"`
	ModelType       string   `json:"modelType,omitempty"`
	Timestamp       float64  `json:"timestamp,omitempty"`
}

// resultEnvelope wraps one per-language translation result.
type resultEnvelope struct {
	Type           string        `json:"type"`
	TaskID         string        `json:"taskId"`
	TargetLanguage string        `json:"targetLanguage"`
	Result         *tasks.Result `json:"result"`
	Timestamp      float64       `json:"timestamp"`
	ProcessingNode string        `json:"processingNode"`
	Version        string        `json:"version"`
}

type errorMessage struct {
	Type           string `json:"type"`
	TaskID         string `json:"taskId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Error          string `json:"error"`
	ConversationID string `json:"conversationId,omitempty"`
}

type skippedMessage struct {
	Type           string `json:"type"`
	MessageID      string `json:"messageId,omitempty"`
	Reason         string `json:"reason"`
	Length         int    `json:"length"`
	MaxLength      int    `json:"maxLength"`
	ConversationID string `json:"conversationId"`
}

type pongMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
	Status    string  `json:"status"`
}

// Enqueuer admits tasks into the scheduling core. Implemented by
// pool.Manager.
type Enqueuer interface {
	Enqueue(t *tasks.Task) bool
}

// Config tunes the stream consumer.
type Config struct {
	// MaxTextLength is the translation length guard; longer texts get a
	// translation_skipped envelope instead of a task.
	MaxTextLength int

	// ConsumerName identifies this instance inside the consumer group.
	// Defaults to the hostname.
	ConsumerName string

	// Block and Count shape each XREADGROUP call.
	Block time.Duration
	Count int64
}

func (c Config) withDefaults() Config {
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = defaultMaxText
	}
	if c.ConsumerName == "" {
		c.ConsumerName = hostname()
	}
	if c.Block <= 0 {
		c.Block = defaultBlock
	}
	if c.Count <= 0 {
		c.Count = defaultCount
	}
	return c
}

// Server owns the consume loop, the result publisher and the cron
// scheduler for recurring translation requests.
type Server struct {
	rdb  *redis.Client
	cfg  Config
	pool Enqueuer
	cron *cron.Cron
	node string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewServer wires the transport to a Redis client. The admission target
// arrives at Start: the pool manager needs the server's PublishResult
// before it exists, so the two meet in the middle.
func NewServer(rdb *redis.Client, cfg Config) *Server {
	return &Server{
		rdb:  rdb,
		cfg:  cfg.withDefaults(),
		cron: cron.New(cron.WithSeconds()),
		node: hostname(),
		log:  logger.With("transport"),
	}
}

// Start creates the consumer group if needed and launches the consume
// loop and the cron scheduler.
func (s *Server) Start(ctx context.Context, pool Enqueuer) error {
	s.pool = pool

	err := s.rdb.XGroupCreateMkStream(ctx, RequestStream, consumerGroup, "0").Err()
	if err != nil && err.Error() != busyGroupErrMsg {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.wg.Add(1)
	go s.consumeLoop()

	s.log.Info().
		Str("stream", RequestStream).
		Str("group", consumerGroup).
		Str("consumer", s.cfg.ConsumerName).
		Msg("transport started")
	return nil
}

// Stop halts the consume loop and the cron scheduler. Results can still
// be published afterwards, so the pool manager may drain before the
// process exits.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.cron.Stop()
	s.wg.Wait()
	s.log.Info().Msg("transport stopped")
}

func (s *Server) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		streams, err := s.rdb.XReadGroup(s.ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: s.cfg.ConsumerName,
			Streams:  []string{RequestStream, ">"},
			Count:    s.cfg.Count,
			Block:    s.cfg.Block,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.log.Error().Err(err).Msg("request stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				s.handle(msg)
				if err := s.rdb.XAck(s.ctx, RequestStream, consumerGroup, msg.ID).Err(); err != nil && s.ctx.Err() == nil {
					s.log.Error().Err(err).Str("msgId", msg.ID).Msg("ack failed")
				}
			}
		}
	}
}

func (s *Server) handle(msg redis.XMessage) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		s.log.Warn().Str("msgId", msg.ID).Msg("request without data field")
		return
	}

	var req Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		s.log.Error().Err(err).Str("msgId", msg.ID).Msg("malformed request dropped")
		return
	}

	s.dispatch(req)
}

func (s *Server) dispatch(req Request) {
	switch req.Type {
	case "ping":
		s.publish(pongMessage{Type: "pong", Timestamp: now(), Status: "alive"})

	// Translation requests historically arrive with type "translation"
	// or with no type at all.
	case "", "translation":
		s.handleTranslation(req)

	default:
		s.log.Warn().Str("type", req.Type).Msg("unknown request type")
	}
}

func (s *Server) handleTranslation(req Request) {
	if req.Text == "" || len(req.TargetLanguages) == 0 {
		s.log.Warn().
			Str("messageId", req.MessageID).
			Str("conversationId", req.ConversationID).
			Msg("invalid translation request")
		s.publish(errorMessage{
			Type:           "translation_error",
			MessageID:      req.MessageID,
			Error:          "missing text or target languages",
			ConversationID: req.ConversationID,
		})
		return
	}

	if len(req.Text) > s.cfg.MaxTextLength {
		s.log.Warn().
			Str("messageId", req.MessageID).
			Int("length", len(req.Text)).
			Int("maxLength", s.cfg.MaxTextLength).
			Msg("message too long to translate")
		s.publish(skippedMessage{
			Type:           "translation_skipped",
			MessageID:      req.MessageID,
			Reason:         "message_too_long",
			Length:         len(req.Text),
			MaxLength:      s.cfg.MaxTextLength,
			ConversationID: orDefault(req.ConversationID, "unknown"),
		})
		return
	}

	t := tasks.New(
		uuid.NewString(),
		req.MessageID,
		orDefault(req.ConversationID, "unknown"),
		req.Text,
		orDefault(req.SourceLanguage, "fr"),
		req.TargetLanguages,
		orDefault(req.ModelType, "basic"),
		0,
	)

	if !s.pool.Enqueue(t) {
		s.log.Warn().Str("taskId", t.TaskID).Msg("pool full, rejecting task")
		s.publish(errorMessage{
			Type:           "translation_error",
			TaskID:         t.TaskID,
			MessageID:      t.MessageID,
			Error:          "translation pool full",
			ConversationID: t.ConversationID,
		})
		return
	}

	s.log.Info().
		Str("taskId", t.TaskID).
		Str("conversationId", t.ConversationID).
		Int("targets", len(t.TargetLanguages)).
		Msg("task admitted")
}

// PublishResult sends one per-language result envelope. It satisfies
// translate.PublishFunc and enriches the result with the queue wait
// measured at publish time.
func (s *Server) PublishResult(t *tasks.Task, res *tasks.Result) {
	if !t.CreatedAt.IsZero() {
		res.QueueTime = time.Since(t.CreatedAt).Seconds()
	}

	s.publish(resultEnvelope{
		Type:           "translation_completed",
		TaskID:         t.TaskID,
		TargetLanguage: res.TargetLanguage,
		Result:         res,
		Timestamp:      now(),
		ProcessingNode: s.node,
		Version:        Version,
	})
}

// publish XAdds one envelope onto the results stream. It runs on a
// background context: results produced while the pool drains after
// Stop must still go out.
func (s *Server) publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal envelope failed")
		return
	}

	err = s.rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: ResultStream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		s.log.Error().Err(err).Msg("publish envelope failed")
	}
}

// Schedule registers a recurring translation request. Each firing mints
// a fresh task, so repeated runs never collide on task IDs. The spec is
// a six-field cron expression with a leading seconds column.
func (s *Server) Schedule(spec string, req Request) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		s.log.Debug().Str("spec", spec).Msg("scheduled translation fired")
		s.handleTranslation(req)
	})
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func now() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
