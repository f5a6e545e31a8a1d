package constants

const (
	// Application metadata
	AppName        = "cunzhi"
	AppDisplayName = "Cunzhi"
	AppDescription = "Code review approval companion"

	// Environment (read through koanf with this prefix stripped)
	EnvPrefix = "CUNZHI_"

	// Directory under os.UserConfigDir()
	ConfigDirName = "cunzhi"
	LogDirName    = "logs"

	// File names
	ConfigFileName   = "config.json"
	DatabaseFileName = "config.db"

	// Default configuration values
	DefaultWebPort       = 3000
	DefaultTheme         = "dark"
	DefaultAlwaysOnTop   = true
	DefaultAudioEnabled  = true
	DefaultTelegramAPI   = "https://api.telegram.org"
	DefaultLogLevel      = "info"
	DefaultStoreBackend  = "json"
	SQLiteStoreBackend   = "sqlite"
	ServerModeName       = "web"
	DesktopModeName      = "desktop"
	ContinueResponseText = "continue"

	// HTTP Server settings
	DefaultRequestTimeout  = 30 // seconds
	DefaultShutdownTimeout = 5  // seconds

	// Service settings
	ServiceName        = "cunzhi-web"
	ServiceDisplayName = "Cunzhi Web Server"
	ServiceDescription = "Cunzhi control server with the web frontend"

	// Desktop window
	WindowWidth  = 600
	WindowHeight = 900
)
