package protocol

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Exchange is one command/response interaction.
type Exchange struct {
	// Command is sent followed by the newline. An empty command sends the
	// wakeup sequence.
	Command string
	// Terminal is the pattern that completes the response. It defaults to
	// the capability prompt.
	Terminal *regexp.Regexp
	// Timeout bounds the wait for Terminal. It defaults to the driver's
	// command timeout.
	Timeout time.Duration
}

// exchangeState collects the response of the running exchange.
type exchangeState struct {
	transcript []byte
	confirmed  int
	gotData    bool
}

// Execute sends ex.Command and waits for its terminal pattern.
//
// If nothing arrives within the wake interval, the wakeup sequence is sent
// and the command resent once. Every byte received meanwhile also flows
// through the chunker, so frames embedded in the response reach the decoder
// and the parameter dictionary. An error-shaped response returns a
// *CommandRejectedError and is never retried. A confirmation request is
// answered with the configured reply.
//
// Execute must be called from a handler.
func (d *Driver) Execute(ctx context.Context, ex Exchange) (string, error) {
	terminal := ex.Terminal
	if terminal == nil {
		terminal = d.caps.Prompt
	}

	timeout := ex.Timeout
	if timeout <= 0 {
		timeout = d.cfg.commandTimeout
	}

	payload := []byte(d.caps.wakeup())
	if ex.Command != "" {
		payload = []byte(ex.Command + d.caps.Newline)
	}

	st := &exchangeState{}
	d.pending = st
	defer func() { d.pending = nil }()

	d.metrics.incCommandCount()
	d.logger.Debug("protocol: send command", "command", ex.Command)

	if err := d.Write(payload); err != nil {
		return "", fmt.Errorf("protocol: %s: send %q: %w", d.caps.Name, ex.Command, err)
	}

	start := time.Now()
	deadline := start.Add(timeout)
	lastSend := start
	woke := false

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if resp, done, err := d.checkResponse(st, ex.Command, terminal); done {
			return resp, err
		}

		now := time.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			d.metrics.incCommandTimeoutCount()
			d.logger.Warn("protocol: command timeout", "command", ex.Command, "timeout", timeout)

			return "", fmt.Errorf("%w: %s: no response to %q within %v",
				ErrCommunicationTimeout, d.caps.Name, ex.Command, timeout)
		}

		if !woke && !st.gotData && now.Sub(lastSend) >= d.cfg.wakeInterval {
			woke = true
			lastSend = now
			d.metrics.incWakeupCount()
			d.logger.Debug("protocol: device silent, waking", "command", ex.Command)

			if err := d.wakeAndResend(ctx, st, payload, ex.Command != "", deadline); err != nil {
				return "", err
			}

			continue
		}

		data, err := d.ch.Read(min(d.cfg.pollTimeout, remaining))
		if err != nil {
			return "", fmt.Errorf("protocol: %s: read: %w", d.caps.Name, err)
		}

		if len(data) > 0 {
			d.receive(data)
		}
	}
}

// wakeAndResend sends the wakeup sequence, waits up to the wake interval for
// the device's prompt and then resends the command on a clean transcript.
func (d *Driver) wakeAndResend(ctx context.Context, st *exchangeState, payload []byte, resend bool, deadline time.Time) error {
	if err := d.Write([]byte(d.caps.wakeup())); err != nil {
		return fmt.Errorf("protocol: %s: wakeup: %w", d.caps.Name, err)
	}

	if !resend {
		return nil
	}

	until := time.Now().Add(d.cfg.wakeInterval)
	if deadline.Before(until) {
		until = deadline
	}

	for !d.caps.Prompt.Match(st.transcript) {
		if err := ctx.Err(); err != nil {
			return err
		}

		wait := time.Until(until)
		if wait <= 0 {
			break
		}

		data, err := d.ch.Read(min(d.cfg.pollTimeout, wait))
		if err != nil {
			return fmt.Errorf("protocol: %s: read: %w", d.caps.Name, err)
		}
		if len(data) > 0 {
			d.receive(data)
		}
	}

	st.transcript = st.transcript[:0]
	st.confirmed = 0

	if err := d.Write(payload); err != nil {
		return fmt.Errorf("protocol: %s: resend: %w", d.caps.Name, err)
	}

	return nil
}

// checkResponse inspects the transcript. The error prompt is checked before
// the terminal since it usually ends with the same prompt.
func (d *Driver) checkResponse(st *exchangeState, command string, terminal *regexp.Regexp) (string, bool, error) {
	if len(st.transcript) == 0 {
		return "", false, nil
	}

	if d.caps.ErrorPrompt != nil {
		if loc := d.caps.ErrorPrompt.FindIndex(st.transcript); loc != nil {
			d.metrics.incCommandRejectCount()
			resp := string(st.transcript[:loc[1]])
			d.logger.Warn("protocol: command rejected", "command", command, "response", resp)

			return "", true, &CommandRejectedError{Command: command, Response: resp}
		}
	}

	if loc := terminal.FindIndex(st.transcript); loc != nil {
		return string(st.transcript[:loc[1]]), true, nil
	}

	if d.caps.ConfirmPrompt != nil {
		if loc := d.caps.ConfirmPrompt.FindIndex(st.transcript[st.confirmed:]); loc != nil {
			st.confirmed += loc[1]
			d.logger.Debug("protocol: confirming", "command", command)

			if err := d.Write([]byte(d.caps.ConfirmReply + d.caps.Newline)); err != nil {
				return "", true, fmt.Errorf("protocol: %s: confirm: %w", d.caps.Name, err)
			}
		}
	}

	return "", false, nil
}
