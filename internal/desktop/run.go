package desktop

import (
	"context"
	"io"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"github.com/professor93/cunzhi/internal/config"
	"github.com/professor93/cunzhi/internal/mcp"
	"github.com/professor93/cunzhi/pkg/constants"
)

// IconFile is the tray icon inside the asset bundle
const IconFile = "favicon.png"

// Options configures Run
type Options struct {
	Store   *config.Store
	Assets  fs.FS
	Version string
	// RequestFile, when set, is answered through the popup and the window
	// quits afterwards
	RequestFile string
	Out         io.Writer
	Logger      *zap.Logger
}

// Run opens the desktop window and blocks until it closes
func Run(opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var request *mcp.PopupRequest
	if opts.RequestFile != "" {
		req, err := mcp.LoadRequestFile(opts.RequestFile)
		if err != nil {
			return err
		}
		request = &req
	}

	app := NewApp(opts.Store, opts.Version, request, opts.Out, logger)

	icon, err := fs.ReadFile(opts.Assets, IconFile)
	if err != nil {
		logger.Warn("Tray icon not found in bundle", zap.Error(err))
	}
	t := &tray{icon: icon, app: app, logger: logger}

	// The tray belongs to the long-running window only
	withTray := request == nil

	err = wails.Run(&options.App{
		Title:       constants.AppDisplayName,
		Width:       constants.WindowWidth,
		Height:      constants.WindowHeight,
		AlwaysOnTop: opts.Store.AlwaysOnTop(),
		AssetServer: &assetserver.Options{
			Assets: opts.Assets,
		},
		OnStartup: func(ctx context.Context) {
			app.startup(ctx)
			if withTray {
				t.start()
			}
		},
		OnDomReady: app.domReady,
		OnShutdown: func(ctx context.Context) {
			app.shutdown(ctx)
			if withTray {
				t.stop()
			}
		},
		Bind: []interface{}{app},
	})
	if err != nil {
		return errors.Wrap(err, "desktop window failed")
	}

	if request != nil {
		select {
		case err := <-app.result():
			return err
		default:
			return errors.New("window closed without a response")
		}
	}
	return nil
}
