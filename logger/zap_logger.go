package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/utils"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

// ZapLoggerConfig is decoded from the free-form `logger.config` section.
type ZapLoggerConfig struct {
	Level  string            `yaml:"level" json:"level"`
	Format string            `yaml:"format" json:"format"`
	Output string            `yaml:"output" json:"output"`
	File   string            `yaml:"file" json:"file"`
	Fields map[string]string `yaml:"fields" json:"fields"`
}

// NewDefaultLogger builds the zap logger described by config. Extra fields are
// attached to every entry.
func NewDefaultLogger(config *types.LoggerConfig, fields ...zap.Field) (types.Logger, error) {
	lConfig := &ZapLoggerConfig{
		Format: FormatConsole,
		Output: OutputStdout,
		Level:  config.Level,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, lConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal logger config")
		}
	}

	zl, err := buildZapLogger(lConfig)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	for k, v := range lConfig.Fields {
		fields = append(fields, zap.String(k, v))
	}
	if len(fields) > 0 {
		zl = zl.With(fields...)
	}

	l := &ZapWrapper{Logger: zl, stackOut: os.Stderr}
	l.Info("Logger initialized",
		zap.String("level", lConfig.Level),
		zap.String("format", lConfig.Format),
		zap.String("output", lConfig.Output),
	)

	return l, nil
}

func buildZapLogger(config *ZapLoggerConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if config.Format == FormatConsole {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.EncodeCaller = shortCallerEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.DisableStacktrace = true
	zapConfig.Level = zap.NewAtomicLevelAt(parseLogLevel(config.Level))

	out, errOut, err := outputPaths(config)
	if err != nil {
		return nil, err
	}
	zapConfig.OutputPaths = out
	zapConfig.ErrorOutputPaths = errOut

	return zapConfig.Build(zap.AddCaller())
}

func outputPaths(config *ZapLoggerConfig) ([]string, []string, error) {
	switch config.Output {
	case OutputStderr:
		return []string{OutputStderr}, []string{OutputStderr}, nil
	case OutputFile:
		if config.File == "" {
			return []string{OutputStdout}, []string{OutputStderr}, nil
		}
		if err := ensureLogDir(config.File); err != nil {
			return nil, nil, err
		}
		return []string{config.File}, []string{config.File}, nil
	default:
		return []string{OutputStdout}, []string{OutputStderr}, nil
	}
}

func shortCallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(caller.TrimmedPath())
}

func parseLogLevel(level string) zapcore.Level {
	if strings.EqualFold(level, "warning") {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func ensureLogDir(logFile string) error {
	if logFile == "" {
		return types.ErrLogFileIsEmpty
	}

	dir := filepath.Dir(logFile)
	if dir == "." && !strings.ContainsRune(logFile, filepath.Separator) {
		return types.ErrLogFileWrongFormat
	}

	return types.WrapError(os.MkdirAll(dir, 0755), "access denied to log directory")
}

// ZapWrapper adapts *zap.Logger to types.Logger.
type ZapWrapper struct {
	Logger   *zap.Logger
	stackOut io.Writer
}

func NewZapWrapper(logger *zap.Logger) types.Logger {
	return &ZapWrapper{Logger: logger, stackOut: os.Stderr}
}

// NewNop returns a logger that discards everything.
func NewNop() types.Logger {
	return &ZapWrapper{Logger: zap.NewNop(), stackOut: io.Discard}
}

func (z *ZapWrapper) Sync() error {
	return z.Logger.Sync()
}

func (z *ZapWrapper) Error(msg string, fields ...zap.Field) {
	z.log(zapcore.ErrorLevel, msg, fields)
}

func (z *ZapWrapper) Warn(msg string, fields ...zap.Field) {
	z.log(zapcore.WarnLevel, msg, fields)
}

func (z *ZapWrapper) Info(msg string, fields ...zap.Field) {
	z.log(zapcore.InfoLevel, msg, fields)
}

func (z *ZapWrapper) Debug(msg string, fields ...zap.Field) {
	z.log(zapcore.DebugLevel, msg, fields)
}

func (z *ZapWrapper) Log(lvl zapcore.Level, msg string, fields ...zap.Field) {
	z.log(lvl, msg, fields)
}

// ErrorWithErrStack logs the root cause of err and, when err carries a
// pkg/errors stack, prints the trimmed frames to the stack writer.
func (z *ZapWrapper) ErrorWithErrStack(msg string, err error, fields ...zap.Field) {
	if err == nil {
		z.log(zapcore.ErrorLevel, msg, fields)
		return
	}

	allFields := make([]zap.Field, 0, len(fields)+1)
	allFields = append(allFields, zap.String("error", errors.Cause(err).Error()))
	allFields = append(allFields, fields...)
	z.log(zapcore.ErrorLevel, msg, allFields)

	if frames := stackFrames(err); len(frames) > 0 {
		z.writeStack(frames)
	}
}

func (z *ZapWrapper) log(lvl zapcore.Level, msg string, fields []zap.Field) {
	z.Logger.WithOptions(zap.AddCallerSkip(3)).Log(lvl, msg, fields...)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackFrames returns the innermost recorded pkg/errors stack of err.
func stackFrames(err error) []string {
	var trace errors.StackTrace
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if st, ok := cur.(stackTracer); ok {
			trace = st.StackTrace()
		}
	}
	if trace == nil {
		return nil
	}

	lines := strings.Split(fmt.Sprintf("%+v", trace), "\n")
	frames := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || noisyFrame(line) {
			continue
		}
		frames = append(frames, line)
	}
	return frames
}

func noisyFrame(line string) bool {
	for _, marker := range []string{"types/errors.go:", "runtime.goexit", "runtime/panic.go", "asm_amd64.s:", "asm_arm64.s:"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func (z *ZapWrapper) writeStack(frames []string) {
	out := z.stackOut
	if out == nil {
		out = os.Stderr
	}

	fmt.Fprintln(out, "ERROR STACK TRACE")
	for _, frame := range frames {
		if len(frame) > 90 {
			frame = frame[:87] + "..."
		}
		fmt.Fprintf(out, "%-95s\n", frame)
	}
}
