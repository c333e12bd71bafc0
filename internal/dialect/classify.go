// internal/dialect/classify.go
package dialect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Annany2002/dataspace-backend/internal/errs"
)

const timeoutMessage = "Connection timed out. Please ensure the database server is reachable."

type rule struct {
	category errs.ConnCategory
	// any group matches when all of its substrings are present
	groups  [][]string
	message string
}

// Checked in order; the first matching rule wins.
var classificationRules = []rule{
	{
		category: errs.ConnAuth,
		groups:   [][]string{{"access denied"}, {"authentication failed"}, {"invalid user"}, {"invalid password"}},
		message:  "Invalid username or password. Please verify your credentials.",
	},
	{
		category: errs.ConnUnknownDatabase,
		groups:   [][]string{{"unknown database"}, {"database", "not found"}, {"database", "does not exist"}},
		message:  "Database not found. Please check the database name.",
	},
	{
		category: errs.ConnUnreachable,
		groups: [][]string{
			{"can't connect"}, {"connection refused"}, {"no such host"}, {"host", "not known"},
			{"network is unreachable"}, {"could not connect"}, {"failed to establish"},
		},
		message: "Unable to reach database host. Please check host and port.",
	},
	{
		category: errs.ConnTimeout,
		groups:   [][]string{{"timeout"}, {"timed out"}, {"deadline exceeded"}},
		message:  timeoutMessage,
	},
	{
		category: errs.ConnTLSMismatch,
		groups:   [][]string{{"ssl"}, {"tls"}, {"x509"}},
		message:  "SSL/TLS configuration mismatch. Try disabling SSL or check server TLS settings.",
	},
	{
		category: errs.ConnTooMany,
		groups:   [][]string{{"too many connections"}, {"too many clients"}},
		message:  "Too many open connections. Try again later.",
	},
}

// Classify maps a driver error onto the connection-failure taxonomy by its
// message. Unmatched errors become ConnGeneric and keep the raw message.
func Classify(d Dialect, err error) *errs.Error {
	if err == nil {
		return nil
	}
	if appErr, ok := errs.As(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Connection(errs.ConnTimeout, timeoutMessage, err)
	}

	msg := strings.ToLower(err.Error())
	for _, r := range classificationRules {
		if matchesAny(msg, r.groups) {
			return errs.Connection(r.category, r.message, err)
		}
	}
	return errs.Connection(errs.ConnGeneric,
		fmt.Sprintf("Could not establish %s connection: %s", strings.ToUpper(string(d)), err.Error()), err)
}

func matchesAny(msg string, groups [][]string) bool {
	for _, group := range groups {
		all := true
		for _, s := range group {
			if !strings.Contains(msg, s) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
