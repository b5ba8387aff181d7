package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepnoodle-ai/regvm"
	"github.com/deepnoodle-ai/regvm/errz"
	"github.com/deepnoodle-ai/regvm/gc"
	"github.com/deepnoodle-ai/regvm/value"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = red(msg)
	case errz.FormattableError:
		s = errz.NewFormatter(!color.NoColor).Format(msg.ToFormatted())
	case error:
		s = red(msg.Error())
	default:
		s = red(fmt.Sprintf("%v", msg))
	}
	fmt.Fprintf(os.Stderr, "%s\n", strings.TrimRight(s, "\n"))
	os.Exit(1)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
}

// newLogger returns a console logger on stderr at the configured level.
func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level: %w", err)
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: color.NoColor}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// newHeap builds a region from the heap settings.
func newHeap(logger zerolog.Logger) *gc.Region {
	cfg := gc.DefaultConfig()
	if n := viper.GetInt("heap-size"); n > 0 {
		cfg.HeapSize = n
	}
	if n := viper.GetInt("growth-budget"); n > 0 {
		cfg.GrowthBudget = n
	}
	cfg.Logger = &logger
	cfg.OnOutOfMemory = func(requested int) {
		logger.Error().Int("requested", requested).Msg("heap exhausted")
	}
	return gc.NewRegion(cfg)
}

// regvmOptions collects the library options shared by every command.
func regvmOptions(filename string) ([]regvm.Option, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return []regvm.Option{
		regvm.WithFilename(filename),
		regvm.WithLogger(logger),
		regvm.WithHeap(newHeap(logger)),
		regvm.WithVerify(viper.GetBool("verify")),
	}, nil
}

// readTree reads a JSON syntax tree from the path in args, or stdin when
// the path is "-" or absent.
func readTree(cmd *cobra.Command, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", err
		}
		return data, "<stdin>", nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, "", err
	}
	return data, args[0], nil
}

var outputFormatsCompletion = []string{"json", "text"}

func getOutput(result value.Value, format string) (string, error) {
	switch strings.ToLower(format) {
	case "":
		// An Empty result prints nothing; anything else prints as JSON.
		if result.IsEmpty() {
			return "", nil
		}
		output, err := getOutputJSON(result)
		if err != nil {
			return result.String(), nil
		}
		return string(output), nil
	case "json":
		output, err := getOutputJSON(result)
		if err != nil {
			return "", err
		}
		return string(output), nil
	case "text":
		return result.String(), nil
	default:
		return "", fmt.Errorf("unknown output format: %s", format)
	}
}

func getOutputJSON(result value.Value) ([]byte, error) {
	if color.NoColor {
		return json.MarshalIndent(result, "", "  ")
	}
	return prettyjson.Marshal(result)
}
