package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// CONNACK return codes (MQTT 3.1.1 section 3.2.2.3).
const (
	ReturnCodeBadProtocol       = int(packets.ErrRefusedBadProtocolVersion)
	ReturnCodeIDRejected        = int(packets.ErrRefusedIDRejected)
	ReturnCodeServerUnavailable = int(packets.ErrRefusedServerUnavailable)
	ReturnCodeBadCredentials    = int(packets.ErrRefusedBadUsernameOrPassword)
	ReturnCodeNotAuthorized     = int(packets.ErrRefusedNotAuthorised)
)

var refusedErrors = map[error]int{
	packets.ErrorRefusedBadProtocolVersion:    ReturnCodeBadProtocol,
	packets.ErrorRefusedIDRejected:            ReturnCodeIDRejected,
	packets.ErrorRefusedServerUnavailable:     ReturnCodeServerUnavailable,
	packets.ErrorRefusedBadUsernameOrPassword: ReturnCodeBadCredentials,
	packets.ErrorRefusedNotAuthorised:         ReturnCodeNotAuthorized,
}

// classifyConnectError turns a failed connect token into an error event.
func classifyConnectError(token pahomqtt.Token, err error) Event {
	ev := Event{Kind: EventError, Err: err}

	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		if rc := ct.ReturnCode(); rc != packets.Accepted && rc != packets.ErrNetworkError && rc != packets.ErrProtocolViolation {
			ev.Type = ErrorTypeConnectionRefused
			ev.Code = int(rc)
			return ev
		}
	}

	ev.Type, ev.Code = ClassifyError(err)
	return ev
}

// ClassifyError maps a transport or protocol error to an ErrorType and code.
func ClassifyError(err error) (ErrorType, int) {
	if err == nil {
		return ErrorTypeNone, 0
	}

	for target, rc := range refusedErrors {
		if errors.Is(err, target) {
			return ErrorTypeConnectionRefused, rc
		}
	}

	var alert tls.AlertError
	if errors.As(err, &alert) {
		return ErrorTypeTLS, int(alert)
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return ErrorTypeTLS, int(invalid.Reason)
	}
	var verify *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var header tls.RecordHeaderError
	if errors.As(err, &verify) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) || errors.As(err, &header) {
		return ErrorTypeTLS, 0
	}

	return ErrorTypeTransport, int(ErrorTypeTransport)
}
