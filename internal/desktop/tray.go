package desktop

import (
	"fyne.io/systray"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/pkg/constants"
)

// tray owns the system tray icon. It runs on the wails main loop.
type tray struct {
	icon   []byte
	app    *App
	logger *zap.Logger
	end    func()
}

func (t *tray) start() {
	start, end := systray.RunWithExternalLoop(t.onReady, t.onExit)
	t.end = end
	start()
}

func (t *tray) stop() {
	if t.end != nil {
		t.end()
	}
}

func (t *tray) onReady() {
	if len(t.icon) > 0 {
		systray.SetIcon(t.icon)
	}
	systray.SetTitle(constants.AppDisplayName)
	systray.SetTooltip(constants.AppDescription)

	show := systray.AddMenuItem("Show", "Show the window")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit "+constants.AppDisplayName)

	go func() {
		for {
			select {
			case <-show.ClickedCh:
				if w := t.app.win(); w != nil {
					w.Show()
				}
			case <-quit.ClickedCh:
				t.logger.Info("Quit requested from tray")
				if w := t.app.win(); w != nil {
					w.Quit()
				}
				return
			}
		}
	}()
}

func (t *tray) onExit() {
	t.logger.Debug("Tray stopped")
}
