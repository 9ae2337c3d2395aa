// Package telegram presents notifications in a Telegram chat. Each
// notification action becomes an inline button; pressing one is fed back to
// the dispatcher as an interaction. The same bot doubles as the remote log
// sink.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"pushgate/internal/dispatch"
	"pushgate/internal/host"
	"pushgate/internal/notification"
	"pushgate/internal/runtime/supervisor"
	"pushgate/internal/transport"
	"pushgate/pkg/logx"
)

type Config struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Adapter is a present.Sink, a present.Dismisser and a logx.Sink.
type Adapter struct {
	cfg  Config
	log  logx.Logger
	bot  *tele.Bot
	api  api
	disp transport.Dispatcher

	mu     sync.Mutex
	byTag  map[string]MessageRef
	shown  *recent
	runMu  sync.Mutex
	sup    *supervisor.Supervisor
	active bool
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	a := newAdapter(cfg, b, log)
	a.bot = b
	b.Handle(tele.OnCallback, a.onCallback)
	return a, nil
}

func newAdapter(cfg Config, api api, log logx.Logger) *Adapter {
	return &Adapter{
		cfg:   cfg,
		log:   log.With(logx.String("comp", "telegram")),
		api:   api,
		byTag: map[string]MessageRef{},
		shown: newRecent(historySize),
	}
}

// SetDispatcher routes button presses. Without one, presses are answered
// and ignored.
func (a *Adapter) SetDispatcher(d transport.Dispatcher) {
	a.runMu.Lock()
	a.disp = d
	a.runMu.Unlock()
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) target() *tele.Chat { return &tele.Chat{ID: a.cfg.ChatID} }

// Show sends the notification. A notification with a tag already on screen
// replaces the previous message.
func (a *Adapter) Show(ctx context.Context, p host.Presentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := a.shown.put(p)
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              a.cfg.ThreadID,
		ReplyMarkup:           keyboard(p.Actions, key),
	}
	msg, err := a.api.Send(a.target(), render(p), opts)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	ref := MessageRef{ChatID: a.cfg.ChatID, MessageID: msg.ID}
	a.mu.Lock()
	prev, had := a.byTag[p.Tag]
	a.byTag[p.Tag] = ref
	a.mu.Unlock()
	if had {
		_ = a.delete(prev)
	}
	return nil
}

// Dismiss deletes the message currently shown for tag.
func (a *Adapter) Dismiss(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	ref, ok := a.byTag[tag]
	delete(a.byTag, tag)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return a.delete(ref)
}

func (a *Adapter) delete(ref MessageRef) error {
	err := a.api.Delete(tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID})
	if err != nil {
		a.log.Debug("telegram delete failed", logx.Int("message_id", ref.MessageID), logx.Err(err))
	}
	return err
}

// SendLog implements logx.Sink.
func (a *Adapter) SendLog(ctx context.Context, text string) error {
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.api.Send(a.target(), chunk, &tele.SendOptions{ThreadID: a.cfg.ThreadID, DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	ev, err := a.interaction(cb.Data)
	if err != nil {
		a.log.Debug("ignoring callback", logx.String("data", cb.Data), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Notification expirée"})
	}

	a.runMu.Lock()
	disp, sup := a.disp, a.sup
	a.runMu.Unlock()
	if disp == nil || sup == nil {
		return c.Respond()
	}
	// Telegram expects a quick answer; the interaction runs on its own.
	sup.Go("callback."+ev.Action, func(ctx context.Context) error {
		out, err := disp.Dispatch(ctx, ev)
		if err != nil {
			a.log.Warn("interaction failed", logx.String("action", ev.Action), logx.Err(err))
			return nil
		}
		a.log.Debug("interaction handled", logx.String("action", ev.Action), logx.String("effect", out.Effect.String()))
		return nil
	})
	return c.Respond()
}

// interaction decodes button data back into an interaction event.
func (a *Adapter) interaction(data string) (dispatch.Event, error) {
	action, key, ok := decodeData(data)
	if !ok {
		return dispatch.Event{}, errors.New("malformed callback data")
	}
	p, ok := a.shown.get(key)
	if !ok {
		return dispatch.Event{}, errors.New("notification no longer tracked")
	}
	return dispatch.InteractionOf(action, canonicalOf(p)), nil
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.active || a.bot == nil {
		return nil
	}
	a.active = true
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup := a.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

// Stop never blocks shutdown on a pending long poll for more than a couple
// of seconds.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasActive := a.active
	a.active = false
	a.runMu.Unlock()
	if !wasActive || sup == nil {
		return nil
	}
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Debug("telegram stopped with error", logx.Err(err))
	} else if err != nil {
		a.log.Warn("telegram stop timed out", logx.Err(err))
	}
	return nil
}

func render(p host.Presentation) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(p.Title))
	b.WriteString("</b>\n")
	b.WriteString(html.EscapeString(p.Body))
	if u, ok := p.Payload["url"].(string); ok && u != "" && u != "/" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(u))
		b.WriteString("</i>")
	}
	return b.String()
}

func keyboard(actions []host.Action, key string) *tele.ReplyMarkup {
	if len(actions) == 0 {
		return nil
	}
	row := make([]tele.InlineButton, 0, len(actions))
	for _, act := range actions {
		row = append(row, tele.InlineButton{Text: act.Label, Data: encodeData(act.ID, key)})
	}
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{row}}
}

func canonicalOf(p host.Presentation) notification.Canonical {
	acts := make([]notification.Action, 0, len(p.Actions))
	for _, a := range p.Actions {
		acts = append(acts, notification.Action{ID: a.ID, Label: a.Label})
	}
	return notification.Canonical{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    p.Icon,
		Badge:   p.Badge,
		Tag:     p.Tag,
		Payload: p.Payload,
		Actions: acts,
	}
}
