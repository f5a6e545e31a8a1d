package desktop

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Window is the part of the wails runtime the App drives
type Window interface {
	Emit(event string, data ...interface{})
	SetAlwaysOnTop(onTop bool)
	Show()
	Quit()
}

// wailsWindow forwards to the wails runtime bound to ctx
type wailsWindow struct {
	ctx context.Context
}

func (w wailsWindow) Emit(event string, data ...interface{}) {
	runtime.EventsEmit(w.ctx, event, data...)
}

func (w wailsWindow) SetAlwaysOnTop(onTop bool) {
	runtime.WindowSetAlwaysOnTop(w.ctx, onTop)
}

func (w wailsWindow) Show() {
	runtime.WindowShow(w.ctx)
	runtime.WindowUnminimise(w.ctx)
}

func (w wailsWindow) Quit() {
	runtime.Quit(w.ctx)
}
