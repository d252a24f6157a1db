// Package ffmpeg provides command construction, probing, and split planning
// for ffmpeg-based transcode jobs.
//
// Commands are built and carried as structured argument lists end to end.
// Nothing in this package ever joins arguments into a string that a shell
// re-parses, which rules out injection by construction.
package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strings"
)

// allowedPrograms is the allow-list of media tools a CommandSpec may invoke.
var allowedPrograms = map[string]bool{
	"ffmpeg":  true,
	"ffprobe": true,
}

// shellMetaChars are characters that would require shell reinterpretation.
// Parameter values containing any of them are rejected, never escaped.
const shellMetaChars = ";&|$`\"'\\<>(){}*?~#\n\t "

// TemplateError reports an invalid or unresolvable command template.
type TemplateError struct {
	Placeholder string
	Value       string
	Reason      string
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template: placeholder %q: %s", e.Placeholder, e.Reason)
	}
	return fmt.Sprintf("template: %s", e.Reason)
}

// ValidationError reports a command that resolved cleanly but is not allowed.
type ValidationError struct {
	Program string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command validation: %s: %s", e.Program, e.Reason)
}

// CommandSpec is a validated, fully-resolved executable command. It is
// immutable once built: Args must not be mutated by callers.
type CommandSpec struct {
	Program    string
	Args       []string
	InputPath  string
	OutputPath string
}

// NewCommandSpec validates the program against the media-tool allow-list
// and returns an immutable spec.
func NewCommandSpec(program string, args []string, inputPath, outputPath string) (CommandSpec, error) {
	base := filepath.Base(program)
	if ext := filepath.Ext(base); ext == ".exe" {
		base = strings.TrimSuffix(base, ext)
	}
	if !allowedPrograms[base] {
		return CommandSpec{}, &ValidationError{Program: program, Reason: "not an allowed media tool"}
	}

	spec := CommandSpec{
		Program:    program,
		Args:       append([]string(nil), args...),
		InputPath:  inputPath,
		OutputPath: outputPath,
	}
	return spec, nil
}

// String renders the command for display only. The rendered string is never
// executed.
func (c CommandSpec) String() string {
	return c.Program + " " + strings.Join(c.Args, " ")
}

// ResolveTemplate resolves {placeholder} occurrences in template against
// params. Every placeholder must resolve, and no resolved value may contain
// characters that a shell would reinterpret.
func ResolveTemplate(template []string, params map[string]string) ([]string, error) {
	for name, value := range params {
		if strings.ContainsAny(value, shellMetaChars) {
			return nil, &TemplateError{
				Placeholder: name,
				Value:       value,
				Reason:      "value contains shell metacharacters",
			}
		}
	}

	resolved := make([]string, 0, len(template))
	for _, arg := range template {
		out, err := resolveArg(arg, params)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, out)
	}
	return resolved, nil
}

// ValidateArgs rejects any argument containing shell metacharacters or
// whitespace. It guards transfer paths that carry the argument list as one
// joined string the far side re-splits: such an argument cannot survive the
// round trip verbatim, so it is rejected, never escaped.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, shellMetaChars) {
			return &TemplateError{
				Value:  arg,
				Reason: fmt.Sprintf("argument %q contains shell metacharacters", arg),
			}
		}
	}
	return nil
}

// resolveArg substitutes all {name} placeholders within a single argument.
func resolveArg(arg string, params map[string]string) (string, error) {
	var b strings.Builder
	rest := arg
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", &TemplateError{Reason: fmt.Sprintf("unterminated placeholder in %q", arg)}
		}

		name := rest[open+1 : open+closing]
		value, ok := params[name]
		if !ok {
			return "", &TemplateError{Placeholder: name, Reason: "no value provided"}
		}

		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[open+closing+1:]
	}
}
