package cmdutil

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/spf13/cobra"
)

// RunBoundedArgs returns a cobra run function that checks there are between min and max
// arguments, inclusive, before calling run.  A negative max means no upper bound.  An error from
// run ends the process.
func RunBoundedArgs(min, max int, run func([]string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := checkArgCount(min, max, len(args)); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			cmd.Usage() //nolint:errcheck
			os.Exit(2)
		}
		if err := run(args); err != nil {
			ErrorAndExit("%v", err)
		}
	}
}

// RunFixedArgs is RunBoundedArgs for exactly numArgs arguments.
func RunFixedArgs(numArgs int, run func([]string) error) func(*cobra.Command, []string) {
	return RunBoundedArgs(numArgs, numArgs, run)
}

// RunMinimumArgs is RunBoundedArgs with no upper bound.
func RunMinimumArgs(min int, run func([]string) error) func(*cobra.Command, []string) {
	return RunBoundedArgs(min, -1, run)
}

func checkArgCount(min, max, n int) error {
	switch {
	case min == max && n != min:
		return errors.Errorf("expected %d arguments, got %d", min, n)
	case max < 0 && n < min:
		return errors.Errorf("expected at least %d arguments, got %d", min, n)
	case n < min || (max >= 0 && n > max):
		return errors.Errorf("expected %d to %d arguments, got %d", min, max, n)
	}
	return nil
}

// ErrorAndExit prints the formatted message to stderr and exits non-zero.
func ErrorAndExit(format string, args ...interface{}) {
	if msg := strings.TrimSpace(fmt.Sprintf(format, args...)); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}

// ParseInt64 parses a numeric id argument, naming the argument in the error.
func ParseInt64(name, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s %q: expected an integer", name, arg)
	}
	return id, nil
}

// RepeatedStringArg is a flag value that collects every occurrence of the flag.
type RepeatedStringArg []string

func (r *RepeatedStringArg) String() string {
	return "[" + strings.Join(*r, ", ") + "]"
}

// Set appends s.
func (r *RepeatedStringArg) Set(s string) error {
	*r = append(*r, s)
	return nil
}

// Type implements pflag.Value.
func (r *RepeatedStringArg) Type() string {
	return "[]string"
}

// CreateAlias generates a nested command tree for the invocation specified,
// which should be space-delimited as on the command-line.  The 'Use' field of
// 'cmd' should specify '{{alias}}' instead of the command name as that will be
// filled in based on each invocation.  Similarly, for the 'Example' field,
// '{{alias}}' will be replaced with the full command path.  These commands can
// later be merged into the final Command tree using 'MergeCommands' below.
func CreateAlias(cmd *cobra.Command, invocation string) *cobra.Command {
	return createAlias(cmd, invocation)
}

// CreateAliases is like CreateAlias, except it allows us to specify one or more synonyms for the
// last argument in the command with the assumption that the last argument in the command is a resource
// such as 'job' or 'folder'.
func CreateAliases(cmd *cobra.Command, invocation string, synonyms ...string) *cobra.Command {
	return createAlias(cmd, invocation, synonyms...)
}

func createAlias(cmd *cobra.Command, invocation string, synonyms ...string) *cobra.Command {
	// Create logical commands for each substring in each invocation
	var root, prev *cobra.Command
	args := strings.Split(invocation, " ")

	for i, arg := range args {
		cur := &cobra.Command{}

		// The leaf command node should include the usage from the given cmd,
		// while logical nodes just need one piece of the invocation.
		if i == len(args)-1 {
			*cur = *cmd
			if cmd.Use == "" {
				cur.Use = arg
			} else {
				cur.Use = strings.ReplaceAll(cmd.Use, "{{alias}}", arg)
			}
			cur.Example = strings.ReplaceAll(cmd.Example, "{{alias}}", fmt.Sprintf("%s %s", os.Args[0], invocation))

			if len(synonyms) != 0 {
				cur.Aliases = append([]string{}, synonyms...)
			}

		} else {
			cur.Use = arg
		}

		if root == nil {
			root = cur
		} else if prev != nil {
			prev.AddCommand(cur)
		}
		prev = cur
	}

	return root
}

// MergeCommands merges several command aliases (generated by 'CreateAlias'
// above) into a single coherent cobra command tree (with root command 'root').
// Intermediate commands that already exist under root are reused, so that
// 'job create' and 'job stale' end up under a single 'job' command.
func MergeCommands(root *cobra.Command, children []*cobra.Command) {
	// Implement our own 'find' function because Command.Find is not reliable?
	findCommand := func(parent *cobra.Command, name string) *cobra.Command {
		for _, cmd := range parent.Commands() {
			if cmd.Name() == name {
				return cmd
			}
		}
		return nil
	}

	// Sort children by max nesting depth, so that shallow commands carrying
	// their own Short text are added before the empty logical ones.
	var depth func(*cobra.Command) int
	depth = func(cmd *cobra.Command) int {
		maxDepth := 0
		for _, subcmd := range cmd.Commands() {
			subcmdDepth := depth(subcmd)
			if subcmdDepth > maxDepth {
				maxDepth = subcmdDepth
			}
		}
		return maxDepth + 1
	}

	sort.Slice(children, func(i, j int) bool {
		return depth(children[i]) < depth(children[j])
	})

	// Move each child command over to the main command tree recursively
	for _, cmd := range children {
		parent := findCommand(root, cmd.Name())
		if parent == nil {
			root.AddCommand(cmd)
		} else {
			MergeCommands(parent, cmd.Commands())
		}
	}
}
