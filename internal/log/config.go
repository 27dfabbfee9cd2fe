package log

// LoggerConfig configures the process-wide logger. The zero value logs
// text at info level to stdout.
type LoggerConfig struct {
	Level string           `mapstructure:"level" yaml:"level"`
	File  *FileAppenderOpt `mapstructure:"file" yaml:"file,omitempty"`
}

// FileAppenderOpt configures the rotating file appender.
type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // files
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}
