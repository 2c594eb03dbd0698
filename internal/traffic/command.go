package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// commandSeparator splits the command line from the working directory.
const commandSeparator = ":SUT_SEP:"

// CommandLine is the decoded payload of a command invocation.
type CommandLine struct {
	Args []string
	Dir  string
}

// ParseCommandLine decodes a command payload.
func ParseCommandLine(payload string) (CommandLine, error) {
	line, dir, _ := strings.Cut(payload, commandSeparator)
	args, err := shellquote.Split(line)
	if err != nil {
		return CommandLine{}, fmt.Errorf("parsing command line %q: %w", line, err)
	}
	return CommandLine{Args: args, Dir: dir}, nil
}

// Payload encodes c for the wire.
func (c CommandLine) Payload() string {
	line := shellquote.Join(c.Args...)
	if c.Dir == "" {
		return line
	}
	return line + commandSeparator + c.Dir
}

// Name returns the base name of the program being run.
func (c CommandLine) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return filepath.Base(c.Args[0])
}

// CommandOptions configures command-line interception.
type CommandOptions struct {
	// InterceptDir holds the PATH intercepts and is skipped when looking up the
	// real program.
	InterceptDir string
	// Asynchronous names commands whose file edits may land after they exit.
	Asynchronous []string
	// Enquiry names read-only status commands that are never recorded.
	Enquiry []string
}

type commandRunner struct {
	opts CommandOptions
	// lookupEnv is os.Getenv; replaced in tests.
	lookupEnv func(string) string
}

func commandBehavior(opts CommandOptions) Behavior {
	r := &commandRunner{opts: opts, lookupEnv: os.Getenv}
	return Behavior{
		Kind:         KindCommand,
		WirePrefix:   "SUT_COMMAND_LINE",
		RecordTag:    "CMD",
		RecordText:   commandRecordText,
		Group:        commandGroup,
		FileEdits:    commandFileEdits,
		Asynchronous: r.asynchronous,
		EnquiryOnly:  r.enquiryOnly,
		Forward:      r.forward,
		Failure:      commandFailure,
	}
}

func commandRecordText(u Unit) string {
	cl, err := ParseCommandLine(u.Payload)
	if err != nil {
		line, _, _ := strings.Cut(u.Payload, commandSeparator)
		return line
	}
	return shellquote.Join(cl.Args...)
}

func commandGroup(u Unit) string {
	cl, err := ParseCommandLine(u.Payload)
	if err != nil {
		return ""
	}
	return cl.Name()
}

// commandFileEdits treats every non-flag argument naming an existing path, or a
// path whose parent exists, as a possible edit root.
func commandFileEdits(u Unit) []string {
	cl, err := ParseCommandLine(u.Payload)
	if err != nil || len(cl.Args) < 2 {
		return nil
	}
	var paths []string
	for _, arg := range cl.Args[1:] {
		if strings.HasPrefix(arg, "-") {
			_, value, ok := strings.Cut(arg, "=")
			if !ok {
				continue
			}
			arg = value
		}
		if arg == "" {
			continue
		}
		path := arg
		if !filepath.IsAbs(path) {
			if cl.Dir == "" {
				continue
			}
			path = filepath.Join(cl.Dir, path)
		}
		path = filepath.Clean(path)
		if _, err := os.Lstat(path); err == nil {
			paths = append(paths, path)
			continue
		}
		if strings.ContainsRune(arg, filepath.Separator) {
			if info, err := os.Stat(filepath.Dir(path)); err == nil && info.IsDir() {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

func (r *commandRunner) asynchronous(u Unit) bool {
	return containsName(r.opts.Asynchronous, commandGroup(u))
}

func (r *commandRunner) enquiryOnly(u Unit, responses []Unit) bool {
	if !containsName(r.opts.Enquiry, commandGroup(u)) {
		return false
	}
	for _, resp := range responses {
		if resp.Kind == KindFileEdit {
			return false
		}
	}
	return true
}

func (r *commandRunner) forward(ctx context.Context, u Unit) ([]Unit, error) {
	cl, err := ParseCommandLine(u.Payload)
	if err != nil {
		return nil, err
	}
	if len(cl.Args) == 0 {
		return nil, errors.New("empty command line")
	}
	path, err := r.lookPath(cl.Args[0])
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, cl.Args[1:]...)
	cmd.Dir = cl.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		exitCode = exitErr.ExitCode()
	}

	var responses []Unit
	if stdout.Len() > 0 {
		responses = append(responses, Unit{Kind: KindStdout, Payload: stdout.String(), IsResponse: true})
	}
	if stderr.Len() > 0 {
		responses = append(responses, Unit{Kind: KindStderr, Payload: stderr.String(), IsResponse: true})
	}
	if exitCode != 0 {
		responses = append(responses, Unit{Kind: KindExitCode, Payload: strconv.Itoa(exitCode), IsResponse: true})
	}
	return responses, nil
}

// lookPath finds the real program on PATH, skipping the intercept directory
// so the server never runs its own intercept.
func (r *commandRunner) lookPath(name string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return name, nil
	}
	skip := ""
	if r.opts.InterceptDir != "" {
		skip = filepath.Clean(r.opts.InterceptDir)
	}
	for _, dir := range filepath.SplitList(r.lookupEnv("PATH")) {
		if dir == "" || filepath.Clean(dir) == skip {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func commandFailure(u Unit, err error) []Unit {
	return []Unit{
		{Kind: KindStderr, Payload: err.Error() + "\n", IsResponse: true},
		{Kind: KindExitCode, Payload: "127", IsResponse: true},
	}
}

func containsName(names []string, name string) bool {
	if name == "" {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
