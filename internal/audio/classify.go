package audio

import "strings"

type Failure int

const (
	FailureOther Failure = iota
	FailureSSL
	FailureForbidden
)

var (
	sslMarkers       = []string{"CERTIFICATE_VERIFY_FAILED", "certificate verify failed", "SSLError", "[SSL"}
	forbiddenMarkers = []string{"HTTP Error 403", "403: Forbidden", "403 Forbidden"}
)

// Classify inspects tool output for failure causes worth telling the user
// about.
func Classify(output string) Failure {
	for _, m := range sslMarkers {
		if strings.Contains(output, m) {
			return FailureSSL
		}
	}
	for _, m := range forbiddenMarkers {
		if strings.Contains(output, m) {
			return FailureForbidden
		}
	}
	return FailureOther
}

// Message is the status and user text for a classified failure.
func (f Failure) Message() string {
	switch f {
	case FailureSSL:
		return "SSL certificate verification failed while contacting YouTube; check the system clock and CA certificates"
	case FailureForbidden:
		return "Access denied by YouTube (HTTP 403); updating yt-dlp usually fixes this"
	default:
		return ""
	}
}
