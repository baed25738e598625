package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventmon/pkg/events"
)

// DispatcherOptions configures the async action dispatcher.
type DispatcherOptions struct {
	// Workers is the number of concurrent dispatch goroutines.
	Workers int
	// QueueSize bounds the pending-dispatch queue; overflow is dropped.
	QueueSize int
	// Timeout bounds each individual dispatch (webhook, command, email).
	Timeout time.Duration
	// SMTPAddr and SMTPFrom enable email actions when set.
	SMTPAddr string
	SMTPFrom string
}

type job struct {
	rule Rule
	ev   *events.MonitoredEvent
}

// Dispatcher executes alert actions on a bounded worker pool,
// fire-and-forget relative to the ingestion loop: a full queue drops
// the dispatch and every failure is logged and swallowed.
type Dispatcher struct {
	jobs     chan job
	opts     DispatcherOptions
	client   *http.Client
	logger   *zap.Logger
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
}

func NewDispatcher(opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:   make(chan job, opts.QueueSize),
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// Start launches the workers. They stop when the context is cancelled,
// abandoning in-flight dispatches at their timeout.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.jobs:
					d.run(ctx, j)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Send enqueues a fired rule. Never blocks; a full queue drops the
// dispatch with a log line.
func (d *Dispatcher) Send(rule Rule, ev *events.MonitoredEvent) {
	select {
	case d.jobs <- job{rule: rule, ev: ev}:
	default:
		d.logger.Warn("alert dispatch queue full, dropping",
			zap.String("rule", rule.Name), zap.String("event_id", ev.ID))
	}
}

func (d *Dispatcher) run(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	switch j.rule.Action.Kind {
	case ActionLog:
		d.logAlert(j)
	case ActionWebhook:
		d.postWebhook(ctx, j)
	case ActionCommand:
		d.runCommand(ctx, j)
	case ActionEmail:
		d.sendEmail(j)
	default:
		d.logger.Warn("unknown alert action kind",
			zap.String("rule", j.rule.Name), zap.String("kind", string(j.rule.Action.Kind)))
	}
}

func (d *Dispatcher) logAlert(j job) {
	fields := []zap.Field{
		zap.String("rule", j.rule.Name),
		zap.String("event_id", j.ev.ID),
		zap.String("domain", j.ev.Domain),
		zap.String("event_type", j.ev.EventType),
		zap.Stringer("severity", j.ev.Severity),
		zap.String("subject", j.ev.Subject),
	}
	switch j.rule.Action.Severity {
	case events.SeverityDebug:
		d.logger.Debug("alert", fields...)
	case events.SeverityInfo:
		d.logger.Info("alert", fields...)
	case events.SeverityWarning:
		d.logger.Warn("alert", fields...)
	default:
		d.logger.Error("alert", fields...)
	}
}

func (d *Dispatcher) postWebhook(ctx context.Context, j job) {
	body, err := json.Marshal(j.ev)
	if err != nil {
		d.logger.Warn("webhook dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.rule.Action.Target, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("webhook dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook dispatch rejected",
			zap.String("rule", j.rule.Name), zap.Int("status", resp.StatusCode))
	}
}

// runCommand executes the shell command with the event JSON on stdin.
func (d *Dispatcher) runCommand(ctx context.Context, j job) {
	body, err := json.Marshal(j.ev)
	if err != nil {
		d.logger.Warn("command dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
		return
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", j.rule.Action.Target)
	cmd.Stdin = bytes.NewReader(body)
	if out, err := cmd.CombinedOutput(); err != nil {
		d.logger.Warn("command dispatch failed",
			zap.String("rule", j.rule.Name), zap.Error(err),
			zap.ByteString("output", truncate(out, 256)))
	}
}

func (d *Dispatcher) sendEmail(j job) {
	if d.opts.SMTPAddr == "" {
		d.logger.Warn("email action skipped: smtp not configured",
			zap.String("rule", j.rule.Name), zap.String("to", j.rule.Action.Target))
		return
	}
	body, err := json.Marshal(j.ev)
	if err != nil {
		d.logger.Warn("email dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
		return
	}
	msg := fmt.Sprintf("To: %s\r\nSubject: [eventmon] %s\r\nContent-Type: application/json\r\n\r\n%s\r\n",
		j.rule.Action.Target, j.rule.Name, body)
	err = smtp.SendMail(d.opts.SMTPAddr, nil, d.opts.SMTPFrom, []string{j.rule.Action.Target}, []byte(msg))
	if err != nil {
		d.logger.Warn("email dispatch failed", zap.String("rule", j.rule.Name), zap.Error(err))
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
