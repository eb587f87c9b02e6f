package kube

import (
	"bytes"
	"fmt"
)

type boundedBuffer struct {
	bytes.Buffer
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.max > 0 && b.Len()+len(p) > b.max {
		return 0, fmt.Errorf("kube: output exceeds %d bytes", b.max)
	}
	return b.Buffer.Write(p)
}
