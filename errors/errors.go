package errors

import (
	"errors"
	"fmt"
)

// Condition is an AMQP 1.0 error condition symbol.
type Condition string

// AMQP 1.0 error conditions (amqp-core-transport-v1.0 section 2.8.15 onwards)
const (
	InternalError         Condition = "amqp:internal-error"
	NotFound              Condition = "amqp:not-found"
	UnauthorizedAccess    Condition = "amqp:unauthorized-access"
	DecodeErrorCondition  Condition = "amqp:decode-error"
	ResourceLimitExceeded Condition = "amqp:resource-limit-exceeded"
	NotAllowed            Condition = "amqp:not-allowed"
	InvalidField          Condition = "amqp:invalid-field"
	NotImplemented        Condition = "amqp:not-implemented"
	PreconditionFailed    Condition = "amqp:precondition-failed"

	// Connection errors
	ConnectionForced = Condition("amqp:connection:forced")
	FramingError     = Condition("amqp:connection:framing-error")

	// Session errors
	WindowViolation  = Condition("amqp:session:window-violation")
	ErrantLink       = Condition("amqp:session:errant-link")
	HandleInUse      = Condition("amqp:session:handle-in-use")
	UnattachedHandle = Condition("amqp:session:unattached-handle")

	// Link errors
	DetachForced = Condition("amqp:link:detach-forced")
)

// AMQPError represents a general AMQP error
type AMQPError struct {
	Condition Condition `json:"condition"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
}

func (e *AMQPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Condition, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Condition, e.Message)
}

func (e *AMQPError) Unwrap() error {
	return e.Cause
}

func (e *AMQPError) As(target interface{}) bool {
	if amqpErr, ok := target.(**AMQPError); ok {
		*amqpErr = e
		return true
	}
	return false
}

// Encode Errors

// EncodeError is returned when a performative cannot be written, most often
// because a mandatory field was never set. It does not affect later encodes.
type EncodeError struct {
	AMQPError
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
}

func NewEncodeError(typeName, message string, cause error) *EncodeError {
	return &EncodeError{
		AMQPError: AMQPError{
			Condition: InvalidField,
			Message:   message,
			Cause:     cause,
		},
		Type: typeName,
	}
}

func NewMissingField(typeName, field string) *EncodeError {
	err := NewEncodeError(typeName, fmt.Sprintf("%s is missing mandatory field %q", typeName, field), nil)
	err.Field = field
	return err
}

func (e *EncodeError) As(target interface{}) bool {
	if amqpErr, ok := target.(**AMQPError); ok {
		*amqpErr = &e.AMQPError
		return true
	}
	return false
}

// Decode Errors

// DecodeError reports malformed inbound bytes. A frame decoder that returns one
// is finished and must not be fed again.
type DecodeError struct {
	AMQPError
	Stage string `json:"stage,omitempty"`
}

func NewDecodeError(message string, cause error) *DecodeError {
	return &DecodeError{
		AMQPError: AMQPError{
			Condition: DecodeErrorCondition,
			Message:   message,
			Cause:     cause,
		},
	}
}

func NewDecodeErrorf(format string, args ...interface{}) *DecodeError {
	return NewDecodeError(fmt.Sprintf(format, args...), nil)
}

func NewFramingError(stage, message string) *DecodeError {
	return &DecodeError{
		AMQPError: AMQPError{
			Condition: FramingError,
			Message:   message,
		},
		Stage: stage,
	}
}

func (e *DecodeError) As(target interface{}) bool {
	if amqpErr, ok := target.(**AMQPError); ok {
		*amqpErr = &e.AMQPError
		return true
	}
	return false
}

// Protocol Violations

// ProtocolViolationError is raised by the session and link trackers when a
// frame breaks the handshake rules (duplicate begin, unknown handle, ...).
type ProtocolViolationError struct {
	AMQPError
	Channel   uint16 `json:"channel"`
	Handle    uint32 `json:"handle,omitempty"`
	HasHandle bool   `json:"has_handle,omitempty"`
}

func NewProtocolViolation(condition Condition, message string, channel uint16) *ProtocolViolationError {
	return &ProtocolViolationError{
		AMQPError: AMQPError{
			Condition: condition,
			Message:   message,
		},
		Channel: channel,
	}
}

func NewDuplicateBegin(channel uint16) *ProtocolViolationError {
	return NewProtocolViolation(NotAllowed, fmt.Sprintf("begin already received on channel %d", channel), channel)
}

func NewBeginAlreadyAnswered(channel, localChannel, answeredOn uint16) *ProtocolViolationError {
	message := fmt.Sprintf("begin on channel %d answers local channel %d, already answered on channel %d",
		channel, localChannel, answeredOn)
	return NewProtocolViolation(NotAllowed, message, channel)
}

func NewChannelMaxExceeded(channel, channelMax uint16) *ProtocolViolationError {
	message := fmt.Sprintf("channel %d exceeds channel-max %d", channel, channelMax)
	return NewProtocolViolation(FramingError, message, channel)
}

func NewUnknownChannel(channel uint16) *ProtocolViolationError {
	return NewProtocolViolation(NotFound, fmt.Sprintf("no session tracked on channel %d", channel), channel)
}

func NewHandleInUse(channel uint16, handle uint32) *ProtocolViolationError {
	err := NewProtocolViolation(HandleInUse, fmt.Sprintf("handle %d already attached", handle), channel)
	err.Handle, err.HasHandle = handle, true
	return err
}

func NewHandleMaxExceeded(channel uint16, handle, handleMax uint32) *ProtocolViolationError {
	err := NewProtocolViolation(FramingError, fmt.Sprintf("handle %d exceeds handle-max %d", handle, handleMax), channel)
	err.Handle, err.HasHandle = handle, true
	return err
}

func NewUnattachedHandle(channel uint16, handle uint32, performative string) *ProtocolViolationError {
	message := fmt.Sprintf("%s references unattached handle %d", performative, handle)
	err := NewProtocolViolation(UnattachedHandle, message, channel)
	err.Handle, err.HasHandle = handle, true
	return err
}

func (e *ProtocolViolationError) As(target interface{}) bool {
	if amqpErr, ok := target.(**AMQPError); ok {
		*amqpErr = &e.AMQPError
		return true
	}
	return false
}

// Authentication Errors

// AuthError represents SASL authentication errors
type AuthError struct {
	AMQPError
	Username  string `json:"username,omitempty"`
	Mechanism string `json:"mechanism,omitempty"`
}

func NewAuthError(message, username, mechanism string, cause error) *AuthError {
	return &AuthError{
		AMQPError: AMQPError{
			Condition: UnauthorizedAccess,
			Message:   message,
			Cause:     cause,
		},
		Username:  username,
		Mechanism: mechanism,
	}
}

func NewAuthenticationFailed(username, reason string) *AuthError {
	message := fmt.Sprintf("Authentication failed for user '%s': %s", username, reason)
	return NewAuthError(message, username, "", nil)
}

func NewUnsupportedMechanism(mechanism string) *AuthError {
	return NewAuthError(fmt.Sprintf("unsupported SASL mechanism: %s", mechanism), "", mechanism, nil)
}

func (e *AuthError) As(target interface{}) bool {
	if amqpErr, ok := target.(**AMQPError); ok {
		*amqpErr = &e.AMQPError
		return true
	}
	return false
}

// Configuration Errors

// ConfigError represents configuration-specific errors
type ConfigError struct {
	AMQPError
	Section string `json:"section"`
	Key     string `json:"key,omitempty"`
}

func NewConfigError(message, section, key string, cause error) *ConfigError {
	return &ConfigError{
		AMQPError: AMQPError{
			Condition: InternalError,
			Message:   message,
			Cause:     cause,
		},
		Section: section,
		Key:     key,
	}
}

func NewConfigValidationError(section, key, reason string) *ConfigError {
	message := fmt.Sprintf("Configuration validation failed for %s.%s: %s", section, key, reason)
	return NewConfigError(message, section, key, nil)
}

// Helper functions for common error checking

// IsEncodeError checks if an error is an EncodeError
func IsEncodeError(err error) bool {
	var encErr *EncodeError
	return errors.As(err, &encErr)
}

// IsDecodeError checks if an error is a DecodeError
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// IsProtocolViolation checks if an error is a ProtocolViolationError
func IsProtocolViolation(err error) bool {
	var pvErr *ProtocolViolationError
	return errors.As(err, &pvErr)
}

// IsAuthError checks if an error is an AuthError
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConfigError checks if an error is a ConfigError
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// ConditionOf returns the AMQP condition carried by err, or InternalError
// when err is not one of ours.
func ConditionOf(err error) Condition {
	var amqpErr *AMQPError
	if errors.As(err, &amqpErr) {
		return amqpErr.Condition
	}
	return InternalError
}
