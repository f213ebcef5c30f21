package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alexdfirestone/national-parks/internal/bootstrap"
	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/repository"
	"github.com/alexdfirestone/national-parks/internal/seed"
	cmssync "github.com/alexdfirestone/national-parks/internal/sync"

	"github.com/spf13/cobra"
)

// env is what every command needs once config is loaded.
type env struct {
	cfg *config.Config
	rt  *bootstrap.Runtime
}

// connect loads config and opens the runtime. Overridden in tests.
var connect = func(ctx context.Context, opts bootstrap.Options) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := bootstrap.InitRuntime(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, rt: rt}, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "parksctl",
		Short:        "Operate the national parks content backend",
		SilenceUsage: true,
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror CMS documents into the content store",
	}
	syncCmd.AddCommand(
		&cobra.Command{
			Use:   "full",
			Short: "Reconcile every park and category and prune rows the CMS no longer has",
			Args:  cobra.NoArgs,
			RunE:  runSyncFull,
		},
		&cobra.Command{
			Use:       "doc <park|category> <id>",
			Short:     "Fetch one document from the CMS and reconcile it",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{cms.TypePark, cms.TypeCategory},
			RunE:      runSyncDoc,
		},
	)

	revalidateCmd := &cobra.Command{
		Use:   "revalidate <park|category|thing> [slug]",
		Short: "Invalidate the cache tags of a park, category or thing",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runRevalidate,
	}
	revalidateCmd.Flags().Uint("id", 0, "thing id")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in parks and categories",
	}
	seedCMSCmd := &cobra.Command{
		Use:   "cms",
		Short: "Write the fixtures to the CMS with createOrReplace",
		Args:  cobra.NoArgs,
		RunE:  runSeedCMS,
	}
	seedCMSCmd.Flags().Int("batch", 20, "mutations per CMS transaction")

	seedDBCmd := &cobra.Command{
		Use:   "db",
		Short: "Upsert the fixtures into the database and generate demo activity",
		Args:  cobra.NoArgs,
		RunE:  runSeedDB,
	}
	seedDBCmd.Flags().Int("users", seed.DefaultOptions.Users, "demo users")
	seedDBCmd.Flags().Int("things", seed.DefaultOptions.Things, "demo things, 0 for reference content only")
	seedDBCmd.Flags().Int("comments", seed.DefaultOptions.CommentsPerThing, "top-level comments per thing")
	seedDBCmd.Flags().Int("voters", seed.DefaultOptions.VotersPerThing, "votes per thing")
	seedDBCmd.Flags().Int64("rand-seed", 0, "fixed seed for reproducible demo content")
	seedCmd.AddCommand(seedCMSCmd, seedDBCmd)

	root.AddCommand(syncCmd, revalidateCmd, seedCmd)
	return root
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reconciler(e *env) *cmssync.Reconciler {
	return cmssync.NewReconciler(
		repository.NewParkRepository(e.rt.DB),
		repository.NewCategoryRepository(e.rt.DB),
		e.rt.CMS,
		e.rt.Transformer(e.cfg),
	)
}

func runSyncFull(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := connect(ctx, bootstrap.Options{RequireCMS: true, SkipBlobs: true})
	if err != nil {
		return err
	}
	defer e.rt.Close()

	report, err := reconciler(e).FullSync(ctx)
	if err != nil {
		return fmt.Errorf("full sync: %w", err)
	}
	if err := cache.NewDispatcher(e.rt.Redis).Invalidate(ctx, report.Tags()...); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func runSyncDoc(cmd *cobra.Command, args []string) error {
	docType, id := args[0], args[1]
	if docType != cms.TypePark && docType != cms.TypeCategory {
		return fmt.Errorf("unsupported document type %q", docType)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := connect(ctx, bootstrap.Options{RequireCMS: true, SkipBlobs: true})
	if err != nil {
		return err
	}
	defer e.rt.Close()

	res, err := reconciler(e).SyncDocument(ctx, docType, id)
	if err != nil {
		return fmt.Errorf("sync %s %s: %w", docType, id, err)
	}
	if err := cache.NewDispatcher(e.rt.Redis).Invalidate(ctx, res.Tags()...); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

// revalidateTarget maps command arguments onto a cache target.
func revalidateTarget(args []string, id uint) cache.Target {
	t := cache.Target{Type: args[0], ID: id}
	if len(args) > 1 {
		t.Slug = args[1]
		if t.Type == cache.TargetThing && id == 0 {
			if n, err := strconv.ParseUint(args[1], 10, 64); err == nil {
				t.ID = uint(n)
				t.Slug = ""
			}
		}
	}
	return t
}

func runRevalidate(cmd *cobra.Command, args []string) error {
	id, err := cmd.Flags().GetUint("id")
	if err != nil {
		return err
	}
	tags, err := cache.TagsFor(revalidateTarget(args, id))
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := connect(ctx, bootstrap.Options{SkipBlobs: true})
	if err != nil {
		return err
	}
	defer e.rt.Close()

	if err := cache.NewDispatcher(e.rt.Redis).Invalidate(ctx, tags...); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"revalidated": true, "tags": tags})
}

func runSeedCMS(cmd *cobra.Command, _ []string) error {
	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}
	fx, err := seed.LoadFixtures()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := connect(ctx, bootstrap.Options{RequireCMS: true, SkipBlobs: true})
	if err != nil {
		return err
	}
	defer e.rt.Close()

	res, err := seed.SeedCMS(ctx, e.rt.CMS, fx, batch)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func seedOptions(cmd *cobra.Command) (seed.Options, error) {
	flags := cmd.Flags()
	var opts seed.Options
	var err error
	if opts.Users, err = flags.GetInt("users"); err != nil {
		return opts, err
	}
	if opts.Things, err = flags.GetInt("things"); err != nil {
		return opts, err
	}
	if opts.CommentsPerThing, err = flags.GetInt("comments"); err != nil {
		return opts, err
	}
	if opts.VotersPerThing, err = flags.GetInt("voters"); err != nil {
		return opts, err
	}
	if opts.RandSeed, err = flags.GetInt64("rand-seed"); err != nil {
		return opts, err
	}
	if opts.Users < 0 || opts.Things < 0 || opts.CommentsPerThing < 0 || opts.VotersPerThing < 0 {
		return opts, fmt.Errorf("counts must not be negative")
	}
	return opts, nil
}

func runSeedDB(cmd *cobra.Command, _ []string) error {
	opts, err := seedOptions(cmd)
	if err != nil {
		return err
	}
	fx, err := seed.LoadFixtures()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	e, err := connect(ctx, bootstrap.Options{SkipBlobs: true})
	if err != nil {
		return err
	}
	defer e.rt.Close()

	sum, err := seed.NewSeeder(seed.NewRepos(e.rt.DB), opts, e.rt.Transformer(e.cfg)).Seed(ctx, fx)
	if err != nil {
		return err
	}
	if err := cache.NewDispatcher(e.rt.Redis).Invalidate(ctx, cache.TagParks, cache.TagCategories, cache.TagNav); err != nil {
		return fmt.Errorf("invalidate: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), sum)
}
