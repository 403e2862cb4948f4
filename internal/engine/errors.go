package engine

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// errorClass is the result of classifying a provider failure.
type errorClass int

const (
	classTransient errorClass = iota
	classPermanent
)

// transientCodes are AWS error codes that indicate throttling or an
// internal service fault; retrying has a chance of succeeding.
var transientCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"TooManyRequestsException":               true,
	"RequestLimitExceeded":                   true,
	"ProvisionedThroughputExceededException": true,
	"RequestTimeout":                         true,
	"ServiceUnavailable":                     true,
	"ServiceUnavailableException":            true,
	"InternalError":                          true,
	"InternalFailure":                        true,
	"InternalServiceException":               true,
	"SlowDown":                               true,
}

// transientPatterns is the fallback for transport-level failures that
// never reached the service and carry no API error code.
var transientPatterns = []string{
	"throttl",
	"rate exceed",
	"too many requests",
	"request limit",
	"service unavailable",
	"internal server error",
	"connection reset",
	"connection refused",
	"timeout",
	"tls handshake",
	"i/o timeout",
	"temporary failure",
}

// classify maps a provider failure to transient or permanent. Coded API
// errors are permanent unless the code names a throttling or internal
// fault; permission, conflict, not-found and validation failures will
// not succeed on retry.
func classify(err error) errorClass {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		if transientCodes[ae.ErrorCode()] {
			return classTransient
		}
		return classPermanent
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return classTransient
		}
	}
	return classPermanent
}

// notFoundCodes are the per-service "resource does not exist" codes a
// describe call can return.
var notFoundCodes = map[string]bool{
	"NotFound":                  true,
	"404":                       true,
	"NoSuchBucket":              true,
	"NoSuchEntity":              true,
	"EntityNotFoundException":   true,
	"ResourceNotFoundException": true,
	"NoSuchTagSet":              true,
	"NoSuchPublicAccessBlockConfiguration":           true,
	"ServerSideEncryptionConfigurationNotFoundError": true,
}

// isNotFound reports whether err is a describe-call miss rather than a
// real failure.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return notFoundCodes[ae.ErrorCode()]
	}
	return false
}
