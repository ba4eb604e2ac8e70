package protocol

import (
	"bytes"
	"errors"
	"time"

	"github.com/arloliu/go-instrument/chunker"
)

// GotData feeds bytes received outside of Poll, e.g. by a reader the caller
// owns. It must not be called from a handler.
func (d *Driver) GotData(data []byte) {
	if len(data) == 0 {
		return
	}

	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.receive(data)
}

func (d *Driver) receive(data []byte) {
	d.metrics.addBytesRecv(len(data))

	if d.State() == StateDirectAccess {
		d.receiveDirect(data)
		return
	}

	if d.pending != nil {
		d.pending.transcript = append(d.pending.transcript, data...)
		d.pending.gotData = true
	}

	if err := d.chunker.Feed(data); err != nil {
		d.metrics.incStallCount()
		d.notifyError(err)

		var stall *chunker.StalledFrameError
		if errors.As(err, &stall) && d.cfg.flushOnStall {
			d.chunker.Flush()
		}
	}

	for {
		frame, ok := d.chunker.NextFrame()
		if !ok {
			break
		}
		d.metrics.incFrameCount()
		d.handleFrame(frame)
	}
}

// handleFrame refreshes the dictionary from parameter frames and decodes
// data frames. A decode failure drops the frame and the stream continues.
func (d *Driver) handleFrame(frame *chunker.Frame) {
	isParam := d.caps.isParamKind(frame.Kind)
	if isParam {
		if updated := d.caps.Params.UpdateFrom(frame.Text()); len(updated) > 0 {
			d.logger.Debug("protocol: parameters updated", "kind", frame.Kind, "params", updated)
		}

		if !d.caps.Decoder.Handles(frame.Kind) {
			return
		}
	}

	sample, err := d.caps.Decoder.Decode(frame)
	if err != nil {
		d.metrics.incDecodeErrCount()
		d.logger.Debug("protocol: frame dropped", "kind", frame.Kind, "seq", frame.Seq, "error", err)

		d.notifyError(err)

		return
	}

	d.metrics.incSampleCount()

	now := time.Now()
	for _, sh := range d.cfg.sampleHandlers {
		sh(sample, now)
	}
}

// receiveDirect strips the echo of commands sent in direct access, oldest
// first and each at most once, and hands the rest to the direct-access
// handler. A trailing partial echo is held back and matched again with the
// next read.
func (d *Driver) receiveDirect(data []byte) {
	data = append(d.echoTail, data...)
	d.echoTail = nil

	for {
		cmd, ok := d.sentCmds.Peek()
		if !ok {
			break
		}

		idx := bytes.Index(data, cmd)
		if idx < 0 {
			if n := echoPrefixLen(data, cmd); n > 0 {
				d.echoTail = bytes.Clone(data[len(data)-n:])
				data = data[:len(data)-n]
			}

			break
		}

		data = append(data[:idx], data[idx+len(cmd):]...)
		d.sentCmds.Dequeue()
		d.metrics.incEchoStripCount()
	}

	d.deliverDirect(data)
}

// flushDirect delivers a held-back partial echo as regular output.
func (d *Driver) flushDirect() {
	data := d.echoTail
	d.echoTail = nil
	d.deliverDirect(data)
}

func (d *Driver) deliverDirect(data []byte) {
	if len(data) == 0 || d.cfg.daHandler == nil {
		return
	}

	d.cfg.daHandler(data)
}

// echoPrefixLen returns the length of the longest proper prefix of echo that
// ends data.
func echoPrefixLen(data []byte, echo []byte) int {
	for n := min(len(data), len(echo)-1); n > 0; n-- {
		if bytes.HasSuffix(data, echo[:n]) {
			return n
		}
	}

	return 0
}

// executeDirect writes raw bytes and remembers them so their echo can be
// removed from the inbound stream.
func (d *Driver) executeDirect(data []byte) error {
	if err := d.Write(data); err != nil {
		return err
	}
	d.sentCmds.Enqueue(bytes.Clone(data))

	return nil
}
