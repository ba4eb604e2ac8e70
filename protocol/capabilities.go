package protocol

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/param"
	"github.com/arloliu/go-instrument/record"
)

// HandlerFunc handles one (state, event) pair. It returns the next state, or
// StateNone to stay, and an optional result for the caller.
type HandlerFunc func(ctx context.Context, d *Driver, arg any) (State, any, error)

// ClockSync describes the device's set-time command.
type ClockSync struct {
	// Command is the set-time keyword; the command is "Command=<time>".
	Command string
	// Layout is the Go time layout of the device clock.
	Layout string
}

// Capabilities is the instrument-specific configuration of a Driver. The
// core never hardcodes an instrument's command set; everything it needs is
// supplied here.
type Capabilities struct {
	// Name identifies the instrument in logs and errors.
	Name string

	// Matchers recognize frames, highest priority first.
	Matchers []chunker.Matcher
	// Decoder turns frames into samples.
	Decoder *record.Decoder
	// Params holds the parameter table. Forced restore values are configured
	// on the dictionary with param.WithForcedRestore.
	Params *param.Dictionary
	// ParamKinds lists frame kinds whose text feeds Params.UpdateFrom.
	ParamKinds []chunker.Kind

	// Handlers overrides entries of the default transition table. A nil
	// handler removes the entry.
	Handlers map[Key]HandlerFunc

	// Newline terminates every command.
	Newline string
	// Wakeup is sent to rouse a silent device; it defaults to Newline.
	Wakeup string
	// Prompt is the default terminal pattern of an exchange.
	Prompt *regexp.Regexp
	// AutosamplePrompt is the terminal pattern of commands that leave the
	// device sampling. It defaults to Prompt.
	AutosamplePrompt *regexp.Regexp
	// ErrorPrompt recognizes a rejected command.
	ErrorPrompt *regexp.Regexp
	// ConfirmPrompt recognizes a confirmation request; it is answered with
	// ConfirmReply.
	ConfirmPrompt *regexp.Regexp
	ConfirmReply  string

	// StatusCommands refresh the parameter dictionary on entering COMMAND
	// and serve ACQUIRE_STATUS.
	StatusCommands []string
	SampleCommand  string
	StartCommand   string
	StopCommand    string
	TestCommands   []string
	ClockSync      ClockSync

	// SetCommand builds a set command. It defaults to Params.Command.
	SetCommand func(name string, value any) (string, error)
}

func (c *Capabilities) validate() error {
	if c == nil {
		return errors.New("protocol: nil capabilities")
	}
	if len(c.Matchers) == 0 {
		return fmt.Errorf("protocol: %s: %w", c.Name, chunker.ErrNoMatchers)
	}
	if c.Decoder == nil {
		return fmt.Errorf("protocol: %s: capabilities without decoder", c.Name)
	}
	if c.Params == nil {
		return fmt.Errorf("protocol: %s: capabilities without parameter dictionary", c.Name)
	}
	if c.Prompt == nil {
		return fmt.Errorf("protocol: %s: capabilities without prompt", c.Name)
	}
	if c.ConfirmPrompt != nil && c.ConfirmReply == "" {
		return fmt.Errorf("protocol: %s: confirmation prompt without reply", c.Name)
	}

	return nil
}

func (c *Capabilities) wakeup() string {
	if c.Wakeup != "" {
		return c.Wakeup
	}

	return c.Newline
}

func (c *Capabilities) autosamplePrompt() *regexp.Regexp {
	if c.AutosamplePrompt != nil {
		return c.AutosamplePrompt
	}

	return c.Prompt
}

func (c *Capabilities) setCommand(name string, value any) (string, error) {
	if c.SetCommand != nil {
		return c.SetCommand(name, value)
	}

	return c.Params.Command(name, value)
}

func (c *Capabilities) isParamKind(kind chunker.Kind) bool {
	for _, k := range c.ParamKinds {
		if k == kind {
			return true
		}
	}

	return false
}
