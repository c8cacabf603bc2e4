package config

const (
	defaultSaveDir                    = "~/Documents/Paradox Interactive/Victoria 3/save games"
	defaultDataDir                    = "~/.local/share/vigil/data"
	defaultLogDir                     = "~/.local/share/vigil/logs"
	defaultExtension                  = ".v3"
	defaultRotationMarker             = "autosave"
	defaultDebounceSeconds            = 1.5
	defaultSignaturePollSeconds       = 0.2
	defaultStabilizeTimeoutSeconds    = 30.0
	defaultCopyRetries                = 12
	defaultCopyRetryDelaySeconds      = 0.2
	defaultCaptureDrainTimeoutSeconds = 60
	defaultProcessDrainTimeoutSeconds = 120
	defaultMelterBinary               = "rakaly"
	defaultMelterTimeoutSeconds       = 120
	defaultLogFormat                  = "console"
	defaultLogLevel                   = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SaveDir: defaultSaveDir,
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Monitor: Monitor{
			Extension:                  defaultExtension,
			RotationMarker:             defaultRotationMarker,
			DebounceSeconds:            defaultDebounceSeconds,
			SignaturePollSeconds:       defaultSignaturePollSeconds,
			StabilizeTimeoutSeconds:    defaultStabilizeTimeoutSeconds,
			CopyRetries:                defaultCopyRetries,
			CopyRetryDelaySeconds:      defaultCopyRetryDelaySeconds,
			CaptureDrainTimeoutSeconds: defaultCaptureDrainTimeoutSeconds,
			ProcessDrainTimeoutSeconds: defaultProcessDrainTimeoutSeconds,
			ScanOnStart:                true,
		},
		Extraction: Extraction{
			MelterBinary:         defaultMelterBinary,
			MelterTimeoutSeconds: defaultMelterTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
