// utils/http.go (shared client)
package utils

import (
	"net/http"
	"time"
)

var HTTPClient = &http.Client{
	Timeout: 30 * time.Second, // Coda can be slow on large row scans
}
