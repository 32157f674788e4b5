package cmd

import (
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// uploadBar renders submission progress on a terminal. On other writers it
// does nothing.
type uploadBar struct {
	container *mpb.Progress
	bar       *mpb.Bar
}

func newUploadBar(w io.Writer, name string) *uploadBar {
	if !isTTY(w) {
		return &uploadBar{}
	}

	container := mpb.New(
		mpb.WithOutput(w),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	bar := container.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(name+" ", decor.WC{W: len(name) + 1, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace), " ✓"),
		),
	)
	return &uploadBar{container: container, bar: bar}
}

// Set moves the bar to percent.
func (u *uploadBar) Set(percent int) {
	if u.bar == nil {
		return
	}
	u.bar.SetCurrent(int64(percent))
}

// Finish completes the bar on success or aborts it in place on failure, then
// waits for the final render.
func (u *uploadBar) Finish(ok bool) {
	if u.bar == nil {
		return
	}
	if ok {
		u.bar.SetCurrent(100)
	} else {
		u.bar.Abort(false)
	}
	u.container.Wait()
}

func isTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := file.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
