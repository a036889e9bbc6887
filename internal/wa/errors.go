package wa

import "errors"

var (
	// ErrMalformedPayload indicates the webhook body is not a WhatsApp
	// Business Account envelope.
	ErrMalformedPayload = errors.New("malformed webhook payload")

	// ErrVerificationFailed indicates a rejected webhook handshake.
	ErrVerificationFailed = errors.New("webhook verification failed")

	// ErrCredentialExpired indicates the provider rejected the stored access
	// token. Distinct from transport failures so operators can rotate it.
	ErrCredentialExpired = errors.New("channel credential expired")

	// ErrMediaDownloadFailed indicates media bytes could not be retrieved.
	ErrMediaDownloadFailed = errors.New("media download failed")

	// ErrSendFailed indicates an outbound message was not accepted.
	ErrSendFailed = errors.New("message send failed")
)
