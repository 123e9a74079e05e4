package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/creator-ingest/internal/config"
	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

var stageCommands = map[ingest.Stage]struct {
	use   string
	short string
	long  string
}{
	ingest.StageDiscovery: {
		use:   "discover",
		short: "Walk a creator directory and save new creators",
		long: `Fetches directory pages from --page-start to --page-end (or until a page comes
back empty) and saves every creator not already stored. --target fetches a
single page.`,
	},
	ingest.StageListing: {
		use:   "list-media",
		short: "List the media of every creator not yet listed",
		long: `Pages through each creator's media listing and saves new media items.
Creators already marked as listed are skipped unless --force is set.
--target lists a single creator by id.`,
	},
	ingest.StageEnrichment: {
		use:   "enrich",
		short: "Fetch detail pages for media missing playable URLs",
		long: `Opens the detail page of every media item that still lacks a playable or
poster URL. --force includes complete items. --target enriches a single
media item by id.`,
	},
}

type stageFlags struct {
	source    string
	runID     string
	pageStart int
	pageEnd   int
	force     bool
	pacing    time.Duration
	target    int64
}

func newStageCmd(stage ingest.Stage) *cobra.Command {
	cmd, _ := stageCommand(stage)
	return cmd
}

func stageCommand(stage ingest.Stage) (*cobra.Command, *stageFlags) {
	meta := stageCommands[stage]
	flags := &stageFlags{}
	cmd := &cobra.Command{
		Use:   meta.use,
		Short: meta.short,
		Long:  meta.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd, stage, flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.source, "source", "", "configured source id")
	f.StringVar(&flags.runID, "run-id", "", "run id (generated when empty)")
	f.BoolVar(&flags.force, "force", false, "ignore stage flags and redo finished work")
	f.DurationVar(&flags.pacing, "pacing", 0, "delay between fetches; negative disables (default from config)")
	f.Int64Var(&flags.target, "target", 0, "restrict the run to one page, creator or media id")
	if stage == ingest.StageDiscovery {
		f.IntVar(&flags.pageStart, "page-start", 0, "first directory page (default from config)")
		f.IntVar(&flags.pageEnd, "page-end", 0, "last directory page, 0 for open ended (default from config)")
	}
	_ = cmd.MarkFlagRequired("source")
	return cmd, flags
}

func runStage(cmd *cobra.Command, stage ingest.Stage, flags *stageFlags) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	req := buildRunRequest(cmd, stage, flags, appInstance.Config().Pipeline)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := appInstance.Orchestrator().Run(ctx, req)
	if err != nil {
		return fmt.Errorf("start %s run: %w", stage, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
	if report.FatalError != "" {
		return errors.New("run aborted: " + report.FatalError)
	}
	return nil
}

// buildRunRequest starts from the pipeline config and applies the flags the user set.
func buildRunRequest(cmd *cobra.Command, stage ingest.Stage, flags *stageFlags, pc config.PipelineConfig) ingest.RunRequest {
	req := ingest.RunRequest{
		RunID:    flags.runID,
		SourceID: flags.source,
		Stage:    stage,
		Force:    pc.ForceRescrape,
		TargetID: flags.target,
	}
	if stage == ingest.StageDiscovery {
		req.PageStart = pc.PageStart
		req.PageEnd = pc.PageEnd
	}
	changed := cmd.Flags().Changed
	if changed("page-start") {
		req.PageStart = flags.pageStart
	}
	if changed("page-end") {
		req.PageEnd = flags.pageEnd
	}
	if changed("force") {
		req.Force = flags.force
	}
	if changed("pacing") {
		req.Pacing = flags.pacing
		if req.Pacing == 0 {
			req.Pacing = -1
		}
	}
	return req
}
