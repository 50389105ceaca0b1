package command

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"feebot/internal/monitor"
	"feebot/internal/storage"
	"feebot/internal/threshold"
	kit "feebot/internal/transport"
	logx "feebot/pkg/logx"
)

// Controller is the slice of *monitor.Monitor the handler drives.
type Controller interface {
	Thresholds() threshold.Thresholds
	SetMin(v int64) (threshold.Thresholds, error)
	SetMax(v int64) (threshold.Thresholds, error)
	Status(ctx context.Context) (monitor.Status, error)
}

// Handler answers commands from the single authorized chat.
type Handler struct {
	owner   int64
	ctl     Controller
	sender  kit.Sender
	store   storage.Store
	log     logx.Logger
	timeout time.Duration
}

type Option func(*Handler)

// WithStore records threshold changes in st. A nil store disables auditing.
func WithStore(st storage.Store) Option {
	return func(h *Handler) { h.store = st }
}

// WithTimeout bounds the handling of a single update.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

func WithLogger(log logx.Logger) Option {
	return func(h *Handler) { h.log = log }
}

func NewHandler(owner int64, ctl Controller, sender kit.Sender, opts ...Option) *Handler {
	h := &Handler{owner: owner, ctl: ctl, sender: sender, timeout: 30 * time.Second}
	for _, o := range opts {
		o(h)
	}
	if h.log.IsZero() {
		h.log = logx.Nop()
	}
	h.log = h.log.With(logx.String("comp", "command"))
	return h
}

// Run consumes updates until ctx is done or in is closed. Updates are handled
// one at a time.
func (h *Handler) Run(ctx context.Context, in <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-in:
			if !ok {
				return nil
			}
			h.safeHandle(ctx, u)
		}
	}
}

func (h *Handler) safeHandle(ctx context.Context, u kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic recovered",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	_ = h.Handle(ctx, u)
}

// Handle processes one update. Messages from any chat other than the owner's
// are dropped without a reply.
func (h *Handler) Handle(ctx context.Context, u kit.Update) error {
	if u.Kind != kit.UpdateMessage || u.Message == nil {
		return nil
	}
	msg := u.Message
	if msg.ChatID != h.owner {
		h.log.Debug("ignoring message from unauthorized chat",
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		)
		return nil
	}

	start := time.Now()
	cmd := Parse(msg.Text)
	reqID := uuid.NewString()
	log := h.log.With(logx.String("req_id", reqID), logx.String("cmd", cmd.Kind.String()))

	reply, opt := h.execute(ctx, log, reqID, msg, cmd)
	_, err := h.sender.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, reply, opt)

	fields := []logx.Field{
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.Duration("dur", time.Since(start)),
	}
	if err != nil {
		log.Warn("reply failed", append(fields, logx.Err(err))...)
		return fmt.Errorf("reply: %w", err)
	}
	log.Debug("request ok", fields...)
	return nil
}

func (h *Handler) execute(ctx context.Context, log logx.Logger, reqID string, msg *kit.Message, cmd Command) (string, *kit.SendOptions) {
	html := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	switch cmd.Kind {
	case KindMin, KindMax:
		old := h.ctl.Thresholds()
		var err error
		if cmd.Kind == KindMin {
			_, err = h.ctl.SetMin(cmd.Value)
		} else {
			_, err = h.ctl.SetMax(cmd.Value)
		}
		if err != nil {
			return invalidReply(cmd.Kind), nil
		}
		h.audit(ctx, log, reqID, msg, cmd, old)
		return setReply(cmd.Kind, cmd.Value), nil
	case KindInvalid:
		log.Debug("rejected threshold argument", logx.String("text", cmd.Text))
		return invalidReply(cmd.For), nil
	case KindStatus:
		st, err := h.ctl.Status(ctx)
		if err != nil {
			log.Warn("status fetch failed", logx.Err(err))
			return replyFetchError, nil
		}
		return statusReply(st), html
	case KindHelp:
		return helpText, html
	default:
		return replyUnknown, nil
	}
}

func (h *Handler) audit(ctx context.Context, log logx.Logger, reqID string, msg *kit.Message, cmd Command, old threshold.Thresholds) {
	if h.store == nil {
		return
	}
	prev := old.Min
	if cmd.Kind == KindMax {
		prev = old.Max
	}
	meta, _ := json.Marshal(map[string]any{"old": prev, "new": cmd.Value, "username": msg.FromUsername})
	e := storage.AuditEntry{
		At:       time.Now(),
		ReqID:    reqID,
		ActorID:  msg.FromID,
		ChatID:   msg.ChatID,
		Action:   "set_" + cmd.Kind.String(),
		Target:   strconv.FormatInt(cmd.Value, 10),
		MetaJSON: string(meta),
	}
	if err := h.store.AppendAudit(ctx, e); err != nil {
		log.Warn("audit append failed", logx.Err(err))
	}
}
