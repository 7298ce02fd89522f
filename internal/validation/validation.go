// Package validation provides input validation for the PayGuard API.
package validation

import (
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxReasonLength caps free-text reason fields (appeals, revocations).
const MaxReasonLength = 2000

var (
	// userIDRegex validates wallet user identifiers
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	// amountRegex validates positive decimal amounts with at most 2 decimal places
	amountRegex = regexp.MustCompile(`^\d{1,12}(\.\d{1,2})?$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUserID checks if a string is a well-formed wallet user ID
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// IsValidAmount checks if a string is a positive decimal amount with at most
// two decimal places. "0" and "0.00" are not valid transfer amounts.
func IsValidAmount(amount string) bool {
	if !amountRegex.MatchString(amount) {
		return false
	}
	f, err := strconv.ParseFloat(amount, 64)
	return err == nil && f > 0
}

// IsValidIP checks if a string parses as an IPv4 or IPv6 address
func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidUserID checks if a field is a well-formed user ID
func ValidUserID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidUserID(value) {
			return &ValidationError{Field: field, Message: "must be 3-64 characters of [a-zA-Z0-9_-]"}
		}
		return nil
	}
}

// ValidAmount checks if a field is a positive 2dp decimal amount
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAmount(value) {
			return &ValidationError{Field: field, Message: "must be a positive amount with at most 2 decimal places"}
		}
		return nil
	}
}

// ValidIP checks if a field parses as an IP address
func ValidIP(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidIP(value) {
			return &ValidationError{Field: field, Message: "must be a valid IP address"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed maxLen bytes
func MaxLength(field, value string, maxLen int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > maxLen {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
