package inspector

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
	"github.com/Nao-Mk2/isp-log-reporter/internal/util"
)

// Default router service, action and output field holding the device log.
const (
	DefaultService = "DeviceInfo:1"
	DefaultAction  = "GetDeviceLog"
	DefaultField   = "NewDeviceLog"
)

var (
	// ErrEmptyLog is returned when the log action produced no output arguments at all.
	ErrEmptyLog = errors.New("router returned no log output")
	// ErrNoLogField is returned when the log field cannot be located in the action output.
	ErrNoLogField = errors.New("log field not found in action output")
)

// ActionCaller is the subset of the router session API we use.
type ActionCaller interface {
	CallAction(ctx context.Context, service, action string, args map[string]string) (map[string]string, error)
}

// Inspector retrieves the device log from a router.
type Inspector struct {
	client  ActionCaller
	service string
	action  string
	field   string
}

// New creates an Inspector. Empty service, action or field fall back to the defaults.
func New(client ActionCaller, service, action, field string) *Inspector {
	if service == "" {
		service = DefaultService
	}
	if action == "" {
		action = DefaultAction
	}
	if field == "" {
		field = DefaultField
	}
	return &Inspector{client: client, service: service, action: action, field: field}
}

// Fetch issues the single log action and returns its raw output.
func (in *Inspector) Fetch(ctx context.Context) (model.LogBundle, error) {
	out, err := in.client.CallAction(ctx, in.service, in.action, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", in.service, in.action, err)
	}
	return model.LogBundle(out), nil
}

// Lines fetches the log and splits it into lines. A log field that is present but empty
// (a freshly cleared router log) yields zero lines and no error.
func (in *Inspector) Lines(ctx context.Context) ([]model.LogLine, error) {
	bundle, err := in.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	blob, ok, err := util.ExtractValue(bundle, in.field)
	if err != nil {
		return nil, err
	}
	if !ok {
		switch {
		case len(bundle) == 0:
			return nil, ErrEmptyLog
		case !hasEmptyField(bundle, in.field):
			return nil, fmt.Errorf("%w: %s", ErrNoLogField, in.field)
		}
	}
	return Split(blob), nil
}

// hasEmptyField reports whether field, or the only entry of bundle, is present with an
// empty value.
func hasEmptyField(bundle model.LogBundle, field string) bool {
	if v, present := bundle[field]; present {
		return v == ""
	}
	if len(bundle) == 1 {
		for _, v := range bundle {
			return v == ""
		}
	}
	return false
}
