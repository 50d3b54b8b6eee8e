package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
)

// ErrNoConnection is returned when no connection can serve an action.
var ErrNoConnection = errors.New("no GonoPBX connection available")

// MakeCallRequest is the payload of the make_call action.
//
// Extension and Number must be present but are otherwise passed through
// unchecked; the backend decides whether they are valid.
type MakeCallRequest struct {
	// ConnectionID selects the target connection. Empty means the first
	// registered connection.
	ConnectionID string  `json:"connection_id,omitempty"`
	Extension    *string `json:"extension" validate:"required"`
	Number       *string `json:"number" validate:"required"`
}

// ToggleForwardingRequest is the payload of the toggle_forwarding action.
type ToggleForwardingRequest struct {
	ConnectionID string  `json:"connection_id,omitempty"`
	ForwardID    *int    `json:"forward_id" validate:"required"`
	Enabled      *bool   `json:"enabled" validate:"required"`
	Type         *string `json:"type,omitempty" validate:"omitempty,min=1"`
}

// ValidationError reports an action payload that failed validation.
type ValidationError struct {
	Action string
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid %s request: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("invalid %s request: %s", e.Action, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Dispatcher validates action payloads and routes them through a [Registry].
type Dispatcher struct {
	registry *Registry
	validate *validator.Validate
	logger   *slog.Logger
}

// NewDispatcher creates a [Dispatcher]. If logger is nil, [slog.Default] is used.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	return &Dispatcher{
		registry: registry,
		validate: v,
		logger:   logger,
	}
}

// MakeCall originates a call from req.Extension to req.Number.
func (d *Dispatcher) MakeCall(ctx context.Context, req MakeCallRequest) (pbxapi.Result, error) {
	if err := d.check("make_call", req); err != nil {
		return nil, err
	}
	id, client, err := d.target(req.ConnectionID)
	if err != nil {
		return nil, err
	}

	result, err := client.OriginateCall(ctx, *req.Extension, *req.Number)
	if err != nil {
		return nil, fmt.Errorf("make_call on %s: %w", id, err)
	}
	d.logger.Info("call originated", "connection", id, "extension", *req.Extension)
	return result, nil
}

// ToggleForwarding enables or disables the forwarding rule req.ForwardID.
func (d *Dispatcher) ToggleForwarding(ctx context.Context, req ToggleForwardingRequest) (pbxapi.Result, error) {
	if err := d.check("toggle_forwarding", req); err != nil {
		return nil, err
	}
	id, client, err := d.target(req.ConnectionID)
	if err != nil {
		return nil, err
	}

	result, err := client.ToggleForwarding(ctx, *req.ForwardID, *req.Enabled, req.Type)
	if err != nil {
		return nil, fmt.Errorf("toggle_forwarding on %s: %w", id, err)
	}
	d.logger.Info("forwarding toggled", "connection", id, "forward_id", *req.ForwardID, "enabled", *req.Enabled)
	return result, nil
}

// target resolves the connection an action is sent to.
func (d *Dispatcher) target(connectionID string) (string, Client, error) {
	if connectionID != "" {
		client, ok := d.registry.Get(connectionID)
		if !ok {
			return "", nil, fmt.Errorf("connection %q: %w", connectionID, ErrNoConnection)
		}
		return connectionID, client, nil
	}
	id, client, ok := d.registry.First()
	if !ok {
		return "", nil, ErrNoConnection
	}
	return id, client, nil
}

func (d *Dispatcher) check(action string, req any) error {
	err := d.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Action: action, Err: err}
	}
	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
	}
	return &ValidationError{Action: action, Fields: fields, Err: err}
}

// jsonFieldName reports validation failures under the JSON field name the
// caller sent.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
