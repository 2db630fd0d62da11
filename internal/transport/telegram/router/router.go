package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"standupbot/internal/runtime/supervisor"
	"standupbot/internal/standup"
	"standupbot/internal/transport"
	logx "standupbot/pkg/logx"
)

// Submitter runs a completed form through the submission flow.
type Submitter interface {
	Submit(ctx context.Context, userID string, raw standup.RawAnswers) (standup.Result, error)
}

// Trigger prompts the whole roster on demand.
type Trigger interface {
	PromptAll(ctx context.Context) standup.TickReport
}

type Config struct {
	Workers int
	// FormTTL drops unfinished forms after this much inactivity.
	FormTTL time.Duration
	// HandlerTimeout bounds each command or submission job.
	HandlerTimeout time.Duration
}

// Replies sent by the router.
const (
	HelpText = "Daily standup bot.\n\n" +
		"/update - submit today's update\n" +
		"/skip - skip the current question\n" +
		"/cancel - abandon the current update\n" +
		"/standup - send the standup prompt to everyone now"
	UnknownCommandText = "Unknown command. Try /help"
	NoFormText         = "Nothing to cancel."
	CancelledText      = "Update cancelled."
	BusyText           = "Busy, try again in a moment."
	NotPostedText      = "⚠️ Your update was saved but could not be posted to the notifications channel."
	EmptyRosterText    = "⚠️ No target users configured. Set TARGET_USERS to a comma-separated list of userId:timezone."
)

// Router turns chat updates into standup actions.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	submit  Submitter
	trigger Trigger
	forms   *forms

	workers        int
	handlerTimeout time.Duration
	jobs           chan job
}

type job struct {
	req *Request
	h   HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Text    string
	ReqID   string
	Logger  logx.Logger
}

func New(cfg Config, a transport.Adapter, s Submitter, t Trigger, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 60 * time.Second
	}
	return &Router{
		log:            log,
		adapter:        a,
		submit:         s,
		trigger:        t,
		forms:          newForms(cfg.FormTTL),
		workers:        cfg.Workers,
		handlerTimeout: cfg.HandlerTimeout,
		jobs:           make(chan job, 256),
	}
}

// SetFormTTL applies a reloaded form timeout.
func (r *Router) SetFormTTL(d time.Duration) { r.forms.setTTL(d) }

// Commands is the command menu published to the chat client.
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "update", Description: "Submit today's update"},
		{Command: "skip", Description: "Skip the current question"},
		{Command: "cancel", Description: "Abandon the current update"},
		{Command: "standup", Description: "Prompt everyone now"},
		{Command: "help", Description: "Show help"},
	}
}

// DispatchLoop routes updates until ctx ends or updates closes. Handlers run
// on a bounded worker pool; form state transitions run inline so each
// user's answers are applied in arrival order.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	for i := 0; i < r.workers; i++ {
		sup.GoRestart("router.worker."+strconv.Itoa(i), func(c context.Context) error {
			return r.work(c)
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	sup.Go0("router.forms.sweep", func(c context.Context) {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				if n := r.forms.sweep(); n > 0 {
					r.log.Debug("expired answer forms dropped", logx.Int("count", n))
				}
			}
		}
	})
	r.log.Info("dispatcher started", logx.Int("workers", r.workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-r.jobs:
			h := Chain(j.h, MWPanicRecover(), MWRequestLog(), MWTimeout(r.handlerTimeout))
			_ = h(ctx, j.req)
		}
	}
}

// enqueue hands a job to the worker pool. It reports false, after telling
// the user to retry, when the queue is full.
func (r *Router) enqueue(ctx context.Context, req *Request, h HandlerFunc) bool {
	select {
	case r.jobs <- job{req: req, h: h}:
		return true
	default:
		req.Logger.Warn("job queue full; request dropped")
		r.reply(ctx, req.Chat, BusyText)
		return false
	}
}

func (r *Router) newRequest(up transport.Update, chat transport.ChatTarget, from int64, cmd, text string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		Text:    text,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", cmd),
		),
	}
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.routeMessage(ctx, up)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.routeCallback(ctx, up)
		}
	}
}

// commandWord returns the command name of "/cmd@bot args", or "".
func commandWord(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word, _, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(strings.TrimSpace(word))
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)
	user := msg.FromID
	dm := transport.ChatTarget{ChatID: user}

	switch cmd := commandWord(text); cmd {
	case "":
		if !msg.IsPrivate {
			return
		}
		r.advanceForm(ctx, up, dm, user, msg.Text)
	case "start", "help":
		r.reply(ctx, chat, HelpText)
	case "update":
		r.reply(ctx, dm, r.forms.start(user))
	case "skip":
		if !r.forms.active(user) {
			r.reply(ctx, chat, NoFormText)
			return
		}
		r.advanceForm(ctx, up, dm, user, "")
	case "cancel":
		if r.forms.cancel(user) {
			r.reply(ctx, chat, CancelledText)
		} else {
			r.reply(ctx, chat, NoFormText)
		}
	case "standup":
		req := r.newRequest(up, chat, user, cmd, text)
		r.enqueue(ctx, req, r.handleManualTrigger)
	default:
		if msg.IsPrivate {
			r.reply(ctx, chat, UnknownCommandText)
		}
	}
}

// advanceForm records one answer and either asks the next question or
// queues the submission.
func (r *Router) advanceForm(ctx context.Context, up transport.Update, dm transport.ChatTarget, user int64, text string) {
	next, done, answers, ok := r.forms.answer(user, text)
	if !ok {
		return
	}
	if !done {
		r.reply(ctx, dm, next)
		return
	}
	req := r.newRequest(up, dm, user, "submit", "")
	queued := r.enqueue(ctx, req, func(ctx context.Context, req *Request) error {
		return r.handleSubmit(ctx, req, answers)
	})
	if !queued {
		// keep the answers; the next blockers reply (or /skip) submits again
		r.forms.restore(user, answers)
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	// Data built by telebot's markup helpers arrives as "\funique|payload".
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	action, _, _ := strings.Cut(data, "|")

	switch action {
	case CallbackSubmit:
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		r.reply(ctx, transport.ChatTarget{ChatID: cb.FromID}, r.forms.start(cb.FromID))
	default:
		r.log.Debug("unknown callback", logx.String("data", data))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

func (r *Router) handleSubmit(ctx context.Context, req *Request, answers standup.RawAnswers) error {
	res, err := r.submit.Submit(ctx, strconv.FormatInt(req.FromID, 10), answers)
	if err == nil {
		return nil
	}
	var perr *standup.SubmissionPostError
	if errors.As(err, &perr) && res.State >= standup.StateStored {
		r.reply(ctx, req.Chat, NotPostedText)
	}
	// Ack failures are already logged by the coordinator; there is no one to tell.
	var aerr *standup.AckError
	if errors.As(err, &aerr) {
		return nil
	}
	return err
}

func (r *Router) handleManualTrigger(ctx context.Context, req *Request) error {
	rep := r.trigger.PromptAll(ctx)
	if rep.Roster == 0 {
		r.reply(ctx, req.Chat, EmptyRosterText)
		return nil
	}
	text := fmt.Sprintf("✅ Standup questions sent to %d user(s).", rep.Sent)
	if rep.Failed > 0 {
		text += fmt.Sprintf(" %d failed.", rep.Failed)
	}
	r.reply(ctx, req.Chat, text)
	return nil
}

func (r *Router) reply(ctx context.Context, to transport.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
