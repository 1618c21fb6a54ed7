// Package cmds implements hootjobs commands for the dataset catalog.
package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hootenanny/jobtrack/src/internal/cmdutil"
	"github.com/hootenanny/jobtrack/src/internal/errors"
	"github.com/hootenanny/jobtrack/src/internal/hootctl"
	"github.com/hootenanny/jobtrack/src/internal/mapdb"
	"github.com/hootenanny/jobtrack/src/internal/reaper"
	"github.com/hootenanny/jobtrack/src/server/catalog"
	"github.com/spf13/cobra"
)

func withService(ctx context.Context, cfg *hootctl.Config, f func(context.Context, *catalog.Service) error) error {
	ctx, db, done, err := cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer done()
	return f(ctx, catalog.NewService(catalog.Env{DB: db}))
}

func threshold(cfg *hootctl.Config, before cmdutil.TimeFlag) time.Time {
	if t := before.AsTime(); !t.IsZero() {
		return t
	}
	return time.Now().Add(-cfg.Env.Sweep.StaleMapAge)
}

func printMaps(w io.Writer, maps []*mapdb.Map) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tLAST ACCESSED\tIDLE")
	for _, m := range maps {
		since := m.CreatedAt
		last, ok := m.Tags.Get(mapdb.TagLastAccessed)
		if !ok {
			last = "never (created " + m.CreatedAt.UTC().Format(mapdb.LastAccessedLayout) + ")"
		} else if t, err := time.Parse(mapdb.LastAccessedLayout, last); err == nil {
			since = t
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", m.ID, m.DisplayName, m.UserID, last, humanize.Time(since))
	}
	return errors.EnsureStack(tw.Flush())
}

func printSummary(w io.Writer, summary map[string]int64) error {
	owners := make([]string, 0, len(summary))
	for o := range summary {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tSTALE DATASETS")
	for _, o := range owners {
		fmt.Fprintf(tw, "%s\t%d\n", o, summary[o])
	}
	return errors.EnsureStack(tw.Flush())
}

func printFolders(w io.Writer, folders []*mapdb.Folder) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPARENT\tOWNER\tPUBLIC")
	for _, f := range folders {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%t\n", f.ID, f.DisplayName, f.ParentID, f.UserID, f.Public)
	}
	return errors.EnsureStack(tw.Flush())
}

// StaleCmd lists datasets not accessed recently.
func StaleCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var before cmdutil.TimeFlag
	stale := &cobra.Command{
		Use:   "{{alias}}",
		Short: "List datasets not accessed recently.",
		Long:  "List datasets not accessed since --before, which defaults to STALE_MAP_AGE ago.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				maps, err := s.StaleMaps(ctx, threshold(cfg, before))
				if err != nil {
					return err
				}
				return printMaps(os.Stdout, maps)
			})
		}),
	}
	stale.Flags().Var(&before, "before", "Datasets not accessed since this time are stale.")
	return cmdutil.CreateAlias(stale, "map stale")
}

// SummaryCmd counts stale datasets per owner.
func SummaryCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var before cmdutil.TimeFlag
	summary := &cobra.Command{
		Use:   "{{alias}}",
		Short: "Count stale datasets per owner.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				sum, err := s.StaleMapsSummary(ctx, threshold(cfg, before))
				if err != nil {
					return err
				}
				return printSummary(os.Stdout, sum)
			})
		}),
	}
	summary.Flags().Var(&before, "before", "Datasets not accessed since this time are stale.")
	return cmdutil.CreateAlias(summary, "map summary")
}

func mapCmd(ctx context.Context, cfg *hootctl.Config, invocation, short string, run func(context.Context, *catalog.Service, mapdb.MapID) error) *cobra.Command {
	return cmdutil.CreateAlias(newMapCmd(ctx, cfg, short, run), invocation)
}

func newMapCmd(ctx context.Context, cfg *hootctl.Config, short string, run func(context.Context, *catalog.Service, mapdb.MapID) error) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "{{alias}} <map-id-or-name>",
		Short: short,
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				id, err := s.ResolveMap(ctx, args[0], mapdb.UserID(owner))
				if err != nil {
					return err
				}
				return run(ctx, s, id)
			})
		}),
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "The user whose dataset a name refers to.")
	return cmd
}

func printReport(w io.Writer, r *reaper.Report) {
	fmt.Fprintf(w, "%d of %d generated objects dropped\n", len(r.Dropped), len(r.Existed))
}

// TeardownCmd drops a dataset's generated tables and deletes it.
func TeardownCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return mapCmd(ctx, cfg, "map teardown", "Drop a dataset's generated tables and sequences, then delete it.",
		func(ctx context.Context, s *catalog.Service, id mapdb.MapID) error {
			report, err := s.TeardownMap(ctx, id)
			if report != nil {
				printReport(os.Stdout, report)
			}
			return err
		})
}

// DropCmd drops a dataset's generated tables, keeping its catalog entry.
func DropCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return mapCmd(ctx, cfg, "map drop", "Drop a dataset's generated tables and sequences, keeping the dataset.",
		func(ctx context.Context, s *catalog.Service, id mapdb.MapID) error {
			report, err := s.DropMapObjects(ctx, id)
			if report != nil {
				printReport(os.Stdout, report)
			}
			return err
		})
}

// ResidualCmd counts a dataset's generated objects that still exist.
func ResidualCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return mapCmd(ctx, cfg, "map residual", "Count a dataset's generated tables and sequences that still exist.",
		func(ctx context.Context, s *catalog.Service, id mapdb.MapID) error {
			n, err := s.ResidualObjects(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		})
}

func printMapInfo(w io.Writer, info *catalog.MapInfo) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	m := info.Map
	fmt.Fprintf(tw, "ID:\t%d\n", m.ID)
	fmt.Fprintf(tw, "NAME:\t%s\n", m.DisplayName)
	fmt.Fprintf(tw, "OWNER:\t%d\n", m.UserID)
	fmt.Fprintf(tw, "CREATED:\t%s\n", humanize.Time(m.CreatedAt))
	if info.Bounds != "" {
		fmt.Fprintf(tw, "BOUNDS:\t%s\n", info.Bounds)
	}
	if info.ConflationType != "" {
		fmt.Fprintf(tw, "CONFLATION TYPE:\t%s\n", info.ConflationType)
	}
	fmt.Fprintf(tw, "GRAIL ELIGIBLE:\t%t\n", info.GrailEligible)
	return errors.EnsureStack(tw.Flush())
}

// InfoCmd describes a dataset from its tags.
func InfoCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	return mapCmd(ctx, cfg, "map info", "Describe a dataset: bounds, conflation type and grail eligibility.",
		func(ctx context.Context, s *catalog.Service, id mapdb.MapID) error {
			info, err := s.MapInfo(ctx, id)
			if err != nil {
				return err
			}
			return printMapInfo(os.Stdout, info)
		})
}

// FolderListCmd lists the folders a user can see.
func FolderListCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var user int64
	list := &cobra.Command{
		Use:   "{{alias}}",
		Short: "List the folders a user can see.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				folders, err := s.ListFolders(ctx, mapdb.UserID(user))
				if err != nil {
					return err
				}
				return printFolders(os.Stdout, folders)
			})
		}),
	}
	list.Flags().Int64VarP(&user, "user", "u", 0, "The requesting user.")
	return cmdutil.CreateAliases(list, "folder list", "ls")
}

// FolderCreateCmd creates a folder.
func FolderCreateCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var parent, owner int64
	var private bool
	create := &cobra.Command{
		Use:   "{{alias}} <name>",
		Short: "Create a folder, or print the id of the existing one.",
		Run: cmdutil.RunFixedArgs(1, func(args []string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				id, err := s.CreateFolder(ctx, args[0], mapdb.FolderID(parent), mapdb.UserID(owner), !private)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		}),
	}
	create.Flags().Int64Var(&parent, "parent", int64(mapdb.RootFolder), "The parent folder.")
	create.Flags().Int64Var(&owner, "owner", 0, "The owning user.")
	create.Flags().BoolVar(&private, "private", false, "Hide the folder from other users.")
	return cmdutil.CreateAlias(create, "folder create")
}

// FolderMoveCmd moves a folder.
func FolderMoveCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	move := &cobra.Command{
		Use:   "{{alias}} <folder-id> <new-parent-id>",
		Short: "Move a folder under another folder, or to the root with parent 0.",
		Run: cmdutil.RunFixedArgs(2, func(args []string) error {
			folder, err := cmdutil.ParseInt64("folder id", args[0])
			if err != nil {
				return err
			}
			parent, err := cmdutil.ParseInt64("parent id", args[1])
			if err != nil {
				return err
			}
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				return s.MoveFolder(ctx, mapdb.FolderID(folder), mapdb.FolderID(parent))
			})
		}),
	}
	return cmdutil.CreateAlias(move, "folder move")
}

// FolderFileCmd files a dataset in a folder.
func FolderFileCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	var folder int64
	file := newMapCmd(ctx, cfg, "File a dataset in the folder given by --folder.",
		func(ctx context.Context, s *catalog.Service, id mapdb.MapID) error {
			return s.FileMap(ctx, id, mapdb.FolderID(folder))
		})
	file.Flags().Int64Var(&folder, "folder", int64(mapdb.RootFolder), "The folder to file the dataset in.")
	return cmdutil.CreateAlias(file, "folder file")
}

// FolderPruneCmd deletes empty folders.
func FolderPruneCmd(ctx context.Context, cfg *hootctl.Config) *cobra.Command {
	prune := &cobra.Command{
		Use:   "{{alias}}",
		Short: "Delete folders holding no datasets and no folders.",
		Run: cmdutil.RunFixedArgs(0, func([]string) error {
			return withService(ctx, cfg, func(ctx context.Context, s *catalog.Service) error {
				n, err := s.PruneFolders(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%d folders deleted\n", n)
				return nil
			})
		}),
	}
	return cmdutil.CreateAlias(prune, "folder prune")
}

// Cmds returns the map and folder commands.
func Cmds(ctx context.Context, cfg *hootctl.Config) []*cobra.Command {
	var commands []*cobra.Command

	maps := &cobra.Command{
		Short: "Inspect and tear down datasets.",
	}
	commands = append(commands, cmdutil.CreateAlias(maps, "map"))
	commands = append(commands, StaleCmd(ctx, cfg))
	commands = append(commands, SummaryCmd(ctx, cfg))
	commands = append(commands, TeardownCmd(ctx, cfg))
	commands = append(commands, DropCmd(ctx, cfg))
	commands = append(commands, ResidualCmd(ctx, cfg))
	commands = append(commands, InfoCmd(ctx, cfg))

	folders := &cobra.Command{
		Short: "Manage the folder tree datasets are filed in.",
	}
	commands = append(commands, cmdutil.CreateAlias(folders, "folder"))
	commands = append(commands, FolderListCmd(ctx, cfg))
	commands = append(commands, FolderCreateCmd(ctx, cfg))
	commands = append(commands, FolderMoveCmd(ctx, cfg))
	commands = append(commands, FolderFileCmd(ctx, cfg))
	commands = append(commands, FolderPruneCmd(ctx, cfg))

	return commands
}
