package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
)

// ClassifyStatus maps an HTTP status code returned by a provider API.
func ClassifyStatus(code int) Class {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusPaymentRequired:
		return ClassQuotaExceeded
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code >= 500:
		return ClassTransient
	default:
		return ClassAuth
	}
}

// ClassifyMessage inspects an error message for the well known wording
// providers use when they do not hand back a usable status code. Patterns
// match whole words only, so a "429" inside a request id does not count.
func ClassifyMessage(msg string) Class {
	lower := strings.ToLower(msg)
	switch {
	case lower == "":
		return ClassAuth
	case quotaWords.MatchString(lower):
		return ClassQuotaExceeded
	case transientWords.MatchString(lower):
		return ClassTransient
	default:
		return ClassAuth
	}
}

var quotaWords = wordPattern(
	"429",
	"rate_limit",
	"rate limit",
	"too many requests",
	"exceeded your current quota",
	"quota exceeded",
	"insufficient_quota",
	"resource_exhausted",
	"resource has been exhausted",
	"requests per day",
	"payment required",
	"credit balance",
)

var transientWords = wordPattern(
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"overloaded",
	"server is busy",
	"temporarily unavailable",
	"service unavailable",
	"bad gateway",
	"502",
	"503",
	"504",
)

// wordPattern compiles phrases into one alternation bounded by anything that
// is not a letter or digit. Underscores count as boundaries so "rate_limit"
// still matches inside "rate_limit_exceeded".
func wordPattern(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?:^|[^a-z0-9])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9])`)
}

// Classify turns any error coming out of a provider SDK or HTTP client into a
// classified *Error. Already classified errors pass through unchanged.
func Classify(id string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if IsTransportFailure(err) {
		return Transient(id, err)
	}
	return NewError(ClassifyMessage(err.Error()), id, err)
}

// IsTransportFailure reports timeouts and dropped connections, including a
// body cut off mid-read.
func IsTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
