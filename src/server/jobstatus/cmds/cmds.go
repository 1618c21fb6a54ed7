// Package cmds implements hootjobs commands for job status.
package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootctl"
	"github.com/hootenanny/jobtrack/src/internal/hootsql"
	"github.com/hootenanny/jobtrack/src/internal/jobdb"
	"github.com/hootenanny/jobtrack/src/server/jobstatus"
	"github.com/spf13/cobra"
)

func withTracker(ctx context.Context, cfg *hootctl.Config, f func(context.Context, *hootsql.DB, *jobstatus.Tracker) error) error {
	ctx, db, done, err := cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	return f(ctx, db, jobstatus.NewTracker(jobstatus.EnvFromConfig(db, cfg.Env)))
}

// CreateCmd records a new job.
func CreateCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var parents cmdutil.RepeatedStringArg
	var mapID int64
	var trackable int
	create := &cobra.Command{
		Use:   "{{alias}} <job-id>",
		Short: "Record a new running job.",
		Long:  "Record a new running job, with the jobs it was spawned by and the dataset it produces.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			job := &jobdb.Job{ID: jobdb.JobID(args[0]), TrackableCommandCount: trackable}
			for _, p := range parents {
				job.Parents = append(job.Parents, jobdb.JobID(p))
			}
			if mapID != 0 {
				job.ResourceID = &mapID
			}
			return withTracker(ctx, cfg, func(ctx context.Context, db *hootsql.DB, _ *jobstatus.Tracker) error {
				return jobdb.CreateJob(ctx, db, job)
			})
		}),
	}
	create.Flags().VarP(&parents, "parent", "p", "A job this job was spawned by; may be repeated.")
	create.Flags().Int64Var(&mapID, "map", 0, "The dataset the job produces.")
	create.Flags().IntVar(&trackable, "trackable", 0, "How many commands the job expects to run.")
	return cmdutil.CreateAlias(create, "job create")
}

// ProgressCmd prints a job's percent complete.
func ProgressCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	progress := &cobra.Command{
		Use:   "{{alias}} <job-id>",
		Short: "Print a job's percent complete.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				p, err := t.JobProgress(ctx, jobdb.JobID(args[0]))
				if err != nil {
					return err
				}
				fmt.Println(p)
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(progress, "job progress")
}

// RecomputeCmd refreshes a job's percent complete from its commands.
func RecomputeCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	recompute := &cobra.Command{
		Use:   "{{alias}} <job-id>",
		Short: "Recompute a job's percent complete from its commands.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				if t.RecomputeProgress(ctx, jobdb.JobID(args[0])) {
					fmt.Println("updated")
				} else {
					fmt.Println("unchanged")
				}
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(recompute, "job recompute")
}

// StaleCmd marks jobs and their ancestors stale.
func StaleCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	stale := &cobra.Command{
		Use:   "{{alias}} <job-id>...",
		Short: "Mark jobs and every job above them stale.",
		Long:  "Mark jobs and every job above them stale.  Jobs with changeset conflicts keep that status.",
		Run: cmdutil.RunMinimumArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				for _, id := range args {
					fmt.Printf("%s: %d jobs marked\n", id, t.SetStale(ctx, jobdb.JobID(id)))
				}
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(stale, "job stale")
}

// ConflictsCmd checks the parent job's changesets directory for unapplied changes.
func ConflictsCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	conflicts := &cobra.Command{
		Use:   "{{alias}} <job-id> <parent-job-id>",
		Short: "Mark a job CONFLICTS if its parent's changesets directory holds unapplied changes.",
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				fmt.Println(t.CheckConflicted(ctx, jobdb.JobID(args[0]), jobdb.JobID(args[1])))
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(conflicts, "job conflicts")
}

func parseComplete(args []string) (jobdb.CommandID, int, error) {
	id, err := cmdutil.ParseInt64("command id", args[0])
	if err != nil {
		return 0, 0, err
	}
	exitCode, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, errors.Errorf("invalid exit code %q", args[1])
	}
	return jobdb.CommandID(id), exitCode, nil
}

// CompleteCmd records a command's exit.
func CompleteCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	complete := &cobra.Command{
		Use:   "{{alias}} <command-id> <exit-code>",
		Short: "Record that a command exited.",
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			id, exitCode, err := parseComplete(args)
			if err != nil {
				return err
			}
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				return t.CompleteCommand(ctx, id, exitCode, time.Now())
			})
		}),
	}
	return cmdutil.CreateAlias(complete, "job complete")
}

func printCommands(w io.Writer, cmds []*jobdb.Command) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMMAND\tPERCENT\tEXIT\tSTARTED")
	for _, c := range cmds {
		exit := "-"
		if !c.Running() {
			exit = strconv.Itoa(int(c.ExitCode.Int32))
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", c.ID, c.Command, c.PercentComplete, exit, c.Start.Format(time.RFC3339))
	}
	return errors.EnsureStack(tw.Flush())
}

// CommandsCmd lists a job's commands.
func CommandsCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	commands := &cobra.Command{
		Use:   "{{alias}} <job-id>",
		Short: "List a job's commands.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, db *hootsql.DB, _ *jobstatus.Tracker) error {
				cmds, err := jobdb.ListCommands(ctx, db, jobdb.JobID(args[0]))
				if err != nil {
					return err
				}
				return printCommands(os.Stdout, cmds)
			})
		}),
	}
	return cmdutil.CreateAlias(commands, "job commands")
}

// SweepCmd runs one stale sweep.
func SweepCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var before cmdutil.TimeFlag
	sweep := &cobra.Command{
		Use:   "{{alias}}",
		Short: "Mark stale the jobs of every dataset not accessed recently.",
		Long:  "Mark stale the jobs of every dataset not accessed since --before, which defaults to STALE_MAP_AGE ago.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			threshold := before.AsTime()
			if threshold.IsZero() {
				threshold = time.Now().Add(-cfg.Env.Sweep.StaleMapAge)
			}
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				res, err := t.SweepStale(ctx, threshold)
				if err != nil {
					return err
				}
				fmt.Printf("%d stale datasets, %d jobs, %d marked\n", res.StaleMaps, res.Jobs, res.Marked)
				return nil
			})
		}),
	}
	sweep.Flags().Var(&before, "before", "Datasets not accessed since this time are stale.")
	return cmdutil.CreateAlias(sweep, "job sweep")
}

func printJobInfo(w io.Writer, info *jobstatus.JobInfo) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	j := info.Job
	fmt.Fprintf(tw, "ID:\t%s\n", j.ID)
	fmt.Fprintf(tw, "STATUS:\t%s (%s)\n", j.Status, j.Detail)
	fmt.Fprintf(tw, "PROGRESS:\t%d%%\n", j.PercentComplete)
	fmt.Fprintf(tw, "STARTED:\t%s\n", j.Start.Format(time.RFC3339))
	if len(j.Parents) > 0 {
		parents := make([]string, len(j.Parents))
		for i, p := range j.Parents {
			parents[i] = string(p)
		}
		fmt.Fprintf(tw, "PARENTS:\t%s\n", strings.Join(parents, ", "))
	}
	if j.ResourceID != nil {
		fmt.Fprintf(tw, "MAP:\t%d\n", *j.ResourceID)
	}
	if info.Bounds != "" {
		fmt.Fprintf(tw, "BOUNDS:\t%s\n", info.Bounds)
	}
	if p := info.LastPushed; p != nil {
		fmt.Fprintf(tw, "LAST PUSHED:\t%s %s %s v%s\n", p.OperationType, p.FeatureType, p.FeatureID, p.Version)
	}
	fmt.Fprintf(tw, "CHANGESETS UPLOADED:\t%t\n", info.ChangesetsUploaded)
	if err := tw.Flush(); err != nil {
		return errors.EnsureStack(err)
	}
	if info.Stats != "" {
		fmt.Fprintf(w, "\n%s\n", info.Stats)
	}
	return nil
}

// InfoCmd describes a job from its row and its commands' output.
func InfoCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	info := &cobra.Command{
		Use:   "{{alias}} <job-id>",
		Short: "Describe a job: status, bounds, upload results and conflation stats.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				info, err := t.JobInfo(ctx, jobdb.JobID(args[0]))
				if err != nil {
					return err
				}
				return printJobInfo(os.Stdout, info)
			})
		}),
	}
	return cmdutil.CreateAlias(info, "job info")
}

// taskName joins a tasking manager project and optional task number the way taskInfo tags
// name them.
func taskName(args []string) (string, error) {
	if _, err := cmdutil.ParseInt64("project id", args[0]); err != nil {
		return "", err
	}
	if len(args) == 1 {
		return args[0], nil
	}
	if _, err := cmdutil.ParseInt64("task number", args[1]); err != nil {
		return "", err
	}
	return args[0] + "_" + args[1], nil
}

// TaskCmd prints the newest job of a tasking manager task.
func TaskCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	task := &cobra.Command{
		Use:   "{{alias}} <project-id> [<task-number>]",
		Short: "Print the newest job of a tasking manager task.",
		Run: cmdutil.RunBoundedArgs(1, 2, func(args []string) error {
			name, err := taskName(args)
			if err != nil {
				return err
			}
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				id, err := t.JobForTask(ctx, name)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(task, "job task")
}

// TimeoutCmd flags jobs as timed out.
func TimeoutCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	timeout := &cobra.Command{
		Use:   "{{alias}} <job-id>...",
		Short: "Flag jobs as timed out.",
		Run: cmdutil.RunMinimumArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				for _, id := range args {
					if err := t.MarkTimedOut(ctx, jobdb.JobID(id)); err != nil {
						return err
					}
				}
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(timeout, "job timeout")
}

// ClearTimeoutCmd clears the timeout flag of a task's jobs.
func ClearTimeoutCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	clearTimeout := &cobra.Command{
		Use:   "{{alias}} <project-id> [<task-number>]",
		Short: "Clear the timeout flag of every job of a tasking manager task.",
		Run: cmdutil.RunBoundedArgs(1, 2, func(args []string) error {
			name, err := taskName(args)
			if err != nil {
				return err
			}
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				return t.ClearTimeout(ctx, name)
			})
		}),
	}
	return cmdutil.CreateAlias(clearTimeout, "job clear-timeout")
}

// TimeoutsCmd lists the timed-out tasks of a project.
func TimeoutsCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	timeouts := &cobra.Command{
		Use:   "{{alias}} <project-id>",
		Short: "List the task numbers of a tasking manager project's timed-out jobs.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withTracker(ctx, cfg, func(ctx context.Context, _ *hootsql.DB, t *jobstatus.Tracker) error {
				tasks, err := t.TimedOutTasks(ctx, args[0])
				if err != nil {
					return err
				}
				for _, task := range tasks {
					fmt.Println(task)
				}
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(timeouts, "job timeouts")
}

// Cmds returns the job commands.
func Cmds(ctx context.Context, cfg *hootctl.Config) []*cobra.Command {
	var commands []*cobra.Command

	job := &cobra.Command{
		Short: "Inspect and update job status.",
		Long:  "Inspect and update job status: progress, staleness and changeset conflicts.",
	}
	commands = append(commands, cmdutil.CreateAlias(job, "job"))
	commands = append(commands, CreateCmd(ctx, cfg))
	commands = append(commands, ProgressCmd(ctx, cfg))
	commands = append(commands, RecomputeCmd(ctx, cfg))
	commands = append(commands, StaleCmd(ctx, cfg))
	commands = append(commands, ConflictsCmd(ctx, cfg))
	commands = append(commands, CompleteCmd(ctx, cfg))
	commands = append(commands, CommandsCmd(ctx, cfg))
	commands = append(commands, SweepCmd(ctx, cfg))
	commands = append(commands, InfoCmd(ctx, cfg))
	commands = append(commands, TaskCmd(ctx, cfg))
	commands = append(commands, TimeoutCmd(ctx, cfg))
	commands = append(commands, ClearTimeoutCmd(ctx, cfg))
	commands = append(commands, TimeoutsCmd(ctx, cfg))

	return commands
}
