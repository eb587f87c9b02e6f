package clone

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// transferBar shows bytes flowing through a dump of unknown size.
// A disabled bar passes writers through untouched.
type transferBar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func newTransferBar(enabled bool, name string) *transferBar {
	if !enabled {
		return &transferBar{}
	}
	p := mpb.New(mpb.WithWidth(40), mpb.WithRefreshRate(100*time.Millisecond), mpb.WithOutput(os.Stderr))
	prefix := name + " "
	bar := p.New(0, mpb.BarStyle().Rbound("|").Lbound("|"),
		mpb.PrependDecorators(decor.Name(prefix, decor.WC{W: len(prefix), C: decor.DSyncWidth})),
		mpb.AppendDecorators(
			decor.CurrentKibiByte("% .1f"),
			decor.Name(" "),
			decor.AverageSpeed(decor.SizeB1024(0), "% .1f"),
		))
	return &transferBar{p: p, bar: bar}
}

// Wrap counts bytes written to w.
func (t *transferBar) Wrap(w io.Writer) io.Writer {
	if t.bar == nil {
		return w
	}
	return &countingWriter{w: w, bar: t.bar}
}

// Done completes the bar and waits for the final render.
func (t *transferBar) Done() {
	if t.bar == nil {
		return
	}
	t.bar.SetTotal(-1, true)
	t.p.Wait()
}

type countingWriter struct {
	w   io.Writer
	bar *mpb.Bar
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.bar.IncrBy(n)
	return n, err
}
