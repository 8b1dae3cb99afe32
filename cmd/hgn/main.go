package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/hgn/internal/automation"
	"github.com/san-kum/hgn/internal/config"
	"github.com/san-kum/hgn/internal/dataset"
	"github.com/san-kum/hgn/internal/experiment"
	"github.com/san-kum/hgn/internal/export"
	"github.com/san-kum/hgn/internal/physics"
	"github.com/san-kum/hgn/internal/storage"
	"github.com/san-kum/hgn/internal/telemetry"
	"github.com/san-kum/hgn/internal/viz"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	dataDir    string
	logLevel   string
	logFormat  string
	configFile string
	preset     string
	live       bool

	environment  string
	integrator   string
	dt           float64
	seqLen       int
	seed         int64
	iterations   int
	batchSize    int
	learningRate float64
	klWeight     float64
	optimizer    string

	sweepParams []string
	format      string
	outFile     string
	frames      int
	numSeeds    int
	parallel    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "hgn",
		Short:        "hamiltonian generative network lab",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run directory (defaults to logging.output_dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "train a model on simulated rollouts",
		RunE:  runTrain,
	}
	addModelFlags(trainCmd)
	trainCmd.Flags().BoolVar(&live, "live", false, "show a live dashboard")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search over hyper-parameters",
		Long:  "grid search over hyper-parameters, e.g. --param learning_rate=1e-3,1e-4 --param dt=0.05,0.1",
		RunE:  runSweep,
	}
	addModelFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, "name=v1,v2,... (repeatable)")

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "render a ground-truth rollout in the terminal",
		RunE:  runPreview,
	}
	addModelFlags(previewCmd)
	previewCmd.Flags().IntVar(&frames, "frames", 4, "frames to show")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the loss history of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as json or svg",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "output format (json, svg)")
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [environment]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			envs := config.Environments()
			if len(args) == 1 {
				envs = args
			}
			for _, env := range envs {
				presets := config.ListPresets(env)
				if len(presets) == 0 {
					fmt.Printf("no presets for environment: %s\n", env)
					continue
				}
				fmt.Printf("%s:\n", env)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the resolved configuration as yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		},
	}
	addModelFlags(configCmd)

	envsCmd := &cobra.Command{
		Use:   "envs",
		Short: "list environments",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range physics.Names() {
				fmt.Println(name)
			}
		},
	}

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of trainings",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	seedsCmd := &cobra.Command{
		Use:   "seeds",
		Short: "train once per seed and summarize the spread",
		RunE:  runSeeds,
	}
	addModelFlags(seedsCmd)
	seedsCmd.Flags().IntVar(&numSeeds, "count", 5, "number of seeds, counted up from --seed")
	seedsCmd.Flags().IntVar(&parallel, "parallel", 1, "concurrent trainings (0 = unlimited)")

	rootCmd.AddCommand(trainCmd, sweepCmd, previewCmd, listCmd, plotCmd, exportCmd, presetsCmd, configCmd, envsCmd, scenarioCmd, seedsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&environment, "env", "pendulum", "environment")
	cmd.Flags().StringVar(&integrator, "integrator", "euler", "integrator (euler, leapfrog, rk4)")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().IntVar(&seqLen, "seq-len", config.DefaultSeqLen, "frames per rollout")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&iterations, "iterations", config.DefaultIterations, "training iterations")
	cmd.Flags().IntVar(&batchSize, "batch", config.DefaultBatchSize, "batch size")
	cmd.Flags().Float64Var(&learningRate, "lr", config.DefaultLearningRate, "learning rate")
	cmd.Flags().Float64Var(&klWeight, "kl-weight", 0, "weight of the KL term")
	cmd.Flags().StringVar(&optimizer, "optimizer", "adam", "optimizer (adam, sgd)")
}

// resolveConfig layers defaults, preset, config file and changed flags, in
// that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(environment, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(environment))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		cfg.Environment = environment
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("seq-len") {
		cfg.SeqLen = seqLen
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("iterations") {
		cfg.Training.Iterations = iterations
	}
	if flags.Changed("batch") {
		cfg.Training.BatchSize = batchSize
	}
	if flags.Changed("lr") {
		cfg.Training.LearningRate = learningRate
	}
	if flags.Changed("kl-weight") {
		cfg.Training.KLWeight = klWeight
	}
	if flags.Changed("optimizer") {
		cfg.Training.Optimizer = optimizer
	}
	if dataDir != "" {
		cfg.Logging.OutputDir = dataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	switch logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format: %s", logFormat)
	}
	return log, nil
}

func openStore(dir string) (*storage.Store, error) {
	if dir == "" {
		dir = config.DefaultConfig().Logging.OutputDir
	}
	st := storage.New(dir)
	if err := st.Init(); err != nil {
		return nil, err
	}
	return st, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg.Logging.OutputDir)
	if err != nil {
		return err
	}

	// the dashboard owns the terminal, so logs go to a file
	logOut := io.Writer(os.Stderr)
	if live {
		f, err := os.OpenFile(filepath.Join(st.BaseDir(), "train.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	log, err := newLogger(logOut)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var result *experiment.Result
	train := func(progress func(telemetry.Progress)) (map[string]float64, error) {
		opts := []experiment.Option{experiment.WithStore(st)}
		if progress != nil {
			opts = append(opts, experiment.WithObserver(progress))
		}
		exp, err := experiment.New(cfg, log, opts...)
		if err != nil {
			return nil, err
		}
		result, err = exp.Run(ctx)
		if result == nil {
			return nil, err
		}
		return result.Metrics, err
	}

	if live {
		err = viz.Watch(cfg.ExperimentID, cfg.Training.Iterations, cancel, train)
	} else {
		fmt.Printf("training on %s for %d iterations...\n", cfg.Environment, cfg.Training.Iterations)
		_, err = train(nil)
	}
	if result != nil {
		printResult(result)
	}
	return err
}

func printResult(r *experiment.Result) {
	if r.RunID != "" {
		fmt.Printf("run id: %s\n", r.RunID)
	}
	fmt.Printf("iterations: %d\n", r.Iterations)
	if len(r.Metrics) == 0 {
		return
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, r.Metrics[name])
	}
}

// parseSweepParam splits "name=v1,v2" into its name and values.
func parseSweepParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("invalid --param %q, want name=v1,v2", s)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid value in --param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if len(sweepParams) == 0 {
		return errors.New("at least one --param is required")
	}
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(sweepParams))
	ranges := make([][]float64, 0, len(sweepParams))
	for _, s := range sweepParams {
		name, values, err := parseSweepParam(s)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	best, score, trials, err := experiment.Sweep(ctx, cfg, log, names, ranges)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\tRECONSTRUCTION")
	for _, tr := range trials {
		cols := make([]string, 0, len(names)+1)
		for _, name := range names {
			cols = append(cols, strconv.FormatFloat(tr.Params[name], 'g', 6, 64))
		}
		if tr.Err != nil {
			cols = append(cols, "error: "+tr.Err.Error())
		} else {
			cols = append(cols, fmt.Sprintf("%.6f", tr.Score))
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nbest: %v (reconstruction %.6f)\n", best, score)
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	env, renderer, err := experiment.BuildEnvironment(cfg)
	if err != nil {
		return err
	}
	gen := &dataset.Generator{
		Env:      env,
		Renderer: renderer,
		Dt:       cfg.Dt,
		SeqLen:   cfg.SeqLen,
		Substeps: cfg.Data.Substeps,
		Seed:     cfg.Seed,
	}
	ds, err := gen.Generate(1)
	if err != nil {
		return err
	}
	rollout, err := ds.All()
	if err != nil {
		return err
	}
	fs, err := export.RolloutFrames(rollout, 0, cfg.Frame.Channels)
	if err != nil {
		return err
	}

	n := frames
	if n > len(fs) {
		n = len(fs)
	}
	stride := 1
	if n > 0 {
		stride = len(fs) / n
	}
	panels := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		t := i * stride
		panels = append(panels, viz.Panel(fmt.Sprintf("t=%d", t),
			viz.FrameString(fs[t], cfg.Frame.Channels, cfg.Frame.Height, cfg.Frame.Width, 12, 6)))
	}

	states := ds.States(0)
	qs := make([]float64, len(states))
	ps := make([]float64, len(states))
	for i, s := range states {
		q, p := s.Split()
		qs[i], ps[i] = q[0], p[0]
	}
	panels = append(panels, viz.Panel("q0 vs p0", viz.PhaseString(qs, ps, 12, 6)))

	fmt.Printf("%s, %d frames, dt=%g\n", env.Name(), len(fs), cfg.Dt)
	fmt.Println(viz.Row(panels...))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore(dataDir)
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENV\tTIME\tITERS\tDT\tINTEG\tRECON")

	for _, run := range runs {
		recon := "-"
		if v, ok := run.Metrics["final_reconstruction"]; ok {
			recon = fmt.Sprintf("%.6f", v)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\t%s\n",
			run.ID,
			run.Environment,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Iterations,
			run.Dt,
			run.Integrator,
			recon,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := openStore(dataDir)
	if err != nil {
		return err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	h, err := st.LoadLosses(runID)
	if err != nil {
		return err
	}
	if len(h.Reconstruction) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("environment: %s\n", meta.Environment)
	fmt.Printf("samples: %d\n\n", len(h.Reconstruction))

	curves := []struct {
		caption string
		data    []float64
	}{
		{"reconstruction loss", h.Reconstruction},
		{"kl divergence", h.KL},
	}
	for _, c := range curves {
		graph := asciigraph.Plot(c.data,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption(c.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st, err := openStore(dataDir)
	if err != nil {
		return err
	}
	data, err := st.Export(runID)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "svg":
		svg := export.LossSVG(data.Iterations, map[string][]float64{
			"reconstruction": data.Reconstruction,
			"kl":             data.KL,
		}, 800, 400)
		_, err := io.WriteString(out, svg)
		return err
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	st, err := openStore(dataDir)
	if err != nil {
		return err
	}
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	results, err := automation.RunScenario(ctx, sc, st, log)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN\tITERS\tRECON\tDRIFT")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.6f\t%.2e\n",
			r.Step.Name,
			r.Result.RunID,
			r.Result.Iterations,
			r.Result.Final.Reconstruction,
			r.Result.Drift.Max,
		)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runSeeds(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	seeds := make([]int64, numSeeds)
	for i := range seeds {
		seeds[i] = cfg.Seed + int64(i)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	trials, err := automation.RunSeeds(ctx, cfg, seeds, parallel, log)
	for _, tr := range trials {
		if tr.Err != nil {
			fmt.Printf("seed %d: %v\n", tr.Seed, tr.Err)
			continue
		}
		fmt.Printf("seed %d: reconstruction %.6f\n", tr.Seed, tr.Reconstruction)
	}
	if err != nil {
		return err
	}

	summary, stable, unstable := automation.SeedStats(trials)
	fmt.Printf("\nstable: %d, unstable: %d\n", stable, unstable)
	fmt.Printf("reconstruction mean %.6f std %.6f min %.6f max %.6f\n", summary.Mean, summary.Std, summary.Min, summary.Max)
	return nil
}
