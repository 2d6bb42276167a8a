// Package internal holds helpers shared by the packages of this module.
package internal

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewID returns an identifier that sorts by creation time: twelve hex digits of the Unix
// milliseconds followed by eight random characters.
func NewID(now time.Time) string {
	var suffix [8]byte
	for i := range suffix {
		suffix[i] = idCharset[rand.IntN(len(idCharset))]
	}
	return fmt.Sprintf("%012x%s", now.UnixMilli(), suffix[:])
}
