package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
	"github.com/openmined/tablesync/internal/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	// https://github.com/fidian/ansi
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	bold      = lipgloss.NewStyle().Bold(true)
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", outputText, "output format (text, json, yaml)")
}

// render writes v as json or yaml, or calls text for the default format.
func render(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	format, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()

	switch format {
	case "", outputText:
		return text(w)
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// parseInstant accepts RFC3339 timestamps and unix epoch milliseconds.
func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("instant cannot be empty")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: want RFC3339 or epoch milliseconds", s)
	}
	return ts.UTC(), nil
}

func addSinceFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("since", "s", "", "last sync instant (RFC3339 or epoch millis)")
	_ = cmd.MarkFlagRequired("since")
}

func sinceFlag(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("since")
	return parseInstant(raw)
}

func addIncludeFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("include", "i", "", "only show data files whose table relative path matches this glob")
}

// fileFilter matches data files against the --include glob, relative to the
// table base path.
type fileFilter struct {
	pattern  string
	basePath string
}

func newFileFilter(cmd *cobra.Command, basePath string) (*fileFilter, error) {
	pattern, _ := cmd.Flags().GetString("include")
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid include pattern %q", pattern)
	}
	return &fileFilter{pattern: pattern, basePath: strings.TrimSuffix(basePath, "/")}, nil
}

func (f *fileFilter) Match(file *model.DataFile) bool {
	if f.pattern == "" {
		return true
	}
	rel := strings.TrimPrefix(file.PhysicalPath, f.basePath+"/")
	ok, _ := doublestar.Match(f.pattern, rel)
	return ok
}

func (f *fileFilter) Filter(files []*model.DataFile) []*model.DataFile {
	if f.pattern == "" {
		return files
	}
	out := make([]*model.DataFile, 0, len(files))
	for _, file := range files {
		if f.Match(file) {
			out = append(out, file)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
