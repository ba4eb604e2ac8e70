// Package sbe16 describes the Sea-Bird SBE 16plus V2 CTD. The capability set
// is the embedded YAML profile plus a discovery handler that reads the
// logging status.
package sbe16

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/arloliu/go-instrument/chunker"
	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/profile"
	"github.com/arloliu/go-instrument/protocol"
)

//go:embed sbe16plus.yaml
var profileYAML []byte

// Frame kinds.
const (
	KindStatus      chunker.Kind = "sbe16_status"
	KindCalibration chunker.Kind = "sbe16_calibration"
	KindSample      chunker.Kind = "sbe16_sample"
)

// Parameter names used by the driver.
const (
	ParamLogging        = "Logging"
	ParamSampleInterval = "SampleInterval"
	ParamSyncMode       = "SyncMode"
)

const cmdStatus = "ds"

// Profile returns the embedded instrument profile.
func Profile() (*profile.Profile, error) {
	return profile.Parse(profileYAML)
}

// Capabilities returns the SBE 16plus capability set.
func Capabilities(l logger.Logger) (*protocol.Capabilities, error) {
	p, err := Profile()
	if err != nil {
		return nil, fmt.Errorf("sbe16: %w", err)
	}

	caps, err := p.Build(l)
	if err != nil {
		return nil, fmt.Errorf("sbe16: %w", err)
	}

	caps.Handlers = map[protocol.Key]protocol.HandlerFunc{
		{State: protocol.StateUninitialized, Event: protocol.EventDiscover}: Discover,
	}

	return caps, nil
}

// Discover wakes the instrument and reads its status; a logging instrument
// is in AUTOSAMPLE, anything else in COMMAND.
func Discover(ctx context.Context, d *protocol.Driver, _ any) (protocol.State, any, error) {
	if _, err := d.Execute(ctx, protocol.Exchange{}); err != nil {
		return protocol.StateNone, nil, err
	}

	if _, err := d.Execute(ctx, protocol.Exchange{Command: cmdStatus}); err != nil {
		return protocol.StateNone, nil, err
	}

	if logging, err := d.Params().Get(ParamLogging); err == nil && logging == true {
		return protocol.StateAutosample, protocol.StateAutosample, nil
	}

	return protocol.StateCommand, protocol.StateCommand, nil
}
