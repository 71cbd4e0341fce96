package router

import (
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID is a short log correlation id: base36 time, sequence and two
// random characters.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixNano(), 36))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(ridSeq.Add(1), 36))
	for i := 0; i < 2; i++ {
		b.WriteByte(alpha[rand.Intn(len(alpha))])
	}
	return b.String()
}
