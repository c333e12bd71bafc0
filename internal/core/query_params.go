// internal/core/query_params.go
package core

import (
	"fmt"
	"net/url"
	"strconv"
)

// Row limits for preview listings
const (
	DefaultPreviewLimit = 20
	MaxPreviewLimit     = 1000
)

// ParsePreviewLimit reads the optional 'limit' query parameter.
func ParsePreviewLimit(queryParams url.Values) (int, error) {
	limitStr := queryParams.Get("limit")
	if limitStr == "" {
		return DefaultPreviewLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid 'limit' parameter: must be an integer")
	}
	if limit < 1 {
		return 0, fmt.Errorf("invalid 'limit' parameter: must be at least 1")
	}
	if limit > MaxPreviewLimit {
		return 0, fmt.Errorf("invalid 'limit' parameter: maximum is %d", MaxPreviewLimit)
	}
	return limit, nil
}
