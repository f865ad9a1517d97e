package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anskarl/lomrf/infer"
	"github.com/anskarl/lomrf/mln"
	"github.com/anskarl/lomrf/mrf"
)

type options struct {
	paramsFile  string
	evidence    []string
	output      string
	metricsAddr string
	logLevel    string

	maxConstraints int
	workers        int
	chains         int

	params infer.Params

	log logrus.FieldLogger
}

func main() {
	debug.SetGCPercent(300)
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{params: infer.DefaultParams()}

	cmd := &cobra.Command{
		Use:           "lomrf",
		Short:         "Markov Logic Network inference over ground weighted CNF",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.Flags())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.paramsFile, "params", "", "YAML file with solver parameter overrides")
	pf.StringSliceVarP(&opts.evidence, "evidence", "e", nil, "additional evidence file(s), one ground literal per line")
	pf.StringVarP(&opts.output, "output", "o", "", "result file (default stdout)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.IntVar(&opts.maxConstraints, "max-constraints", 0, "abort grounding above this many ground constraints (0 = default bound)")
	pf.IntVar(&opts.workers, "workers", 0, "grounding goroutines (0 = GOMAXPROCS)")

	p := &opts.params
	pf.IntVar(&p.Samples, "samples", p.Samples, "number of MC-SAT samples")
	pf.Float64Var(&p.PBest, "p-best", p.PBest, "probability of a greedy flip")
	pf.Float64Var(&p.PSA, "p-sa", p.PSA, "probability of a simulated-annealing flip (MC-SAT)")
	pf.Float64Var(&p.SATemperature, "sa-temperature", p.SATemperature, "annealing temperature")
	pf.IntVar(&p.MaxFlips, "max-flips", p.MaxFlips, "flip bound per search try")
	pf.IntVar(&p.MaxTries, "max-tries", p.MaxTries, "restart bound per search")
	pf.Float64Var(&p.TargetCost, "target-cost", p.TargetCost, "stop a search at or below this cost")
	pf.IntVar(&p.TabuLength, "tabu-length", p.TabuLength, "flips before a flipped atom is free again")
	pf.IntVar(&p.NumSolutions, "num-solutions", p.NumSolutions, "MC-SAT per-sample solution pool size")
	pf.BoolVar(&p.LateSA, "late-sa", p.LateSA, "anneal only once the active subset is satisfied")
	pf.BoolVar(&p.UnitProp, "unit-prop", p.UnitProp, "propagate active unit clauses before each MC-SAT search")
	pf.BoolVar(&p.SatHardUnit, "sat-hard-unit", p.SatHardUnit, "repair unsatisfied hard unit clauses first")
	pf.BoolVar(&p.SatHardPriority, "sat-hard-priority", p.SatHardPriority, "pick unsatisfied hard constraints first")
	pf.Int64Var(&p.Seed, "seed", p.Seed, "random seed")
	pf.BoolVar(&p.OutputAll, "output-all", p.OutputAll, "report false query atoms too")

	cmd.AddCommand(newMAPCmd(opts), newMarginalCmd(opts))
	return cmd
}

// setup finalizes the run configuration once flags are parsed: .env
// defaults, then the params file, then explicit flags, in increasing
// precedence.
func (o *options) setup(fs *pflag.FlagSet) error {
	_ = godotenv.Load()
	if o.metricsAddr == "" {
		o.metricsAddr = os.Getenv("LOMRF_METRICS_ADDR")
	}
	if !fs.Changed("log-level") {
		if lvl := os.Getenv("LOMRF_LOG_LEVEL"); lvl != "" {
			o.logLevel = lvl
		}
	}

	if o.paramsFile != "" {
		fromFile, err := infer.LoadParams(o.paramsFile)
		if err != nil {
			return err
		}
		o.params = mergeParams(fs, fromFile, o.params)
	}
	if err := o.params.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return errors.Wrap(err, "parsing log level")
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	o.log = log.WithField("run", uuid.New().String())
	return nil
}

// mergeParams starts from the file values and re-applies every parameter
// flag the user set explicitly.
func mergeParams(fs *pflag.FlagSet, fromFile, fromFlags infer.Params) infer.Params {
	p := fromFile
	for name, apply := range map[string]func(){
		"samples":           func() { p.Samples = fromFlags.Samples },
		"p-best":            func() { p.PBest = fromFlags.PBest },
		"p-sa":              func() { p.PSA = fromFlags.PSA },
		"sa-temperature":    func() { p.SATemperature = fromFlags.SATemperature },
		"max-flips":         func() { p.MaxFlips = fromFlags.MaxFlips },
		"max-tries":         func() { p.MaxTries = fromFlags.MaxTries },
		"target-cost":       func() { p.TargetCost = fromFlags.TargetCost },
		"tabu-length":       func() { p.TabuLength = fromFlags.TabuLength },
		"num-solutions":     func() { p.NumSolutions = fromFlags.NumSolutions },
		"late-sa":           func() { p.LateSA = fromFlags.LateSA },
		"unit-prop":         func() { p.UnitProp = fromFlags.UnitProp },
		"sat-hard-unit":     func() { p.SatHardUnit = fromFlags.SatHardUnit },
		"sat-hard-priority": func() { p.SatHardPriority = fromFlags.SatHardPriority },
		"seed":              func() { p.Seed = fromFlags.Seed },
		"output-all":        func() { p.OutputAll = fromFlags.OutputAll },
	} {
		if fs.Changed(name) {
			apply()
		}
	}
	return p
}

func newMAPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "map theory.yaml",
		Short: "Most probable world of the ground network (MaxWalkSAT)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(args[0], func(ctx context.Context, net *mrf.Network, out *os.File) (*infer.Stats, error) {
				m, err := infer.NewMaxWalkSAT(net, opts.params, opts.log)
				if err != nil {
					return nil, err
				}
				sol, err := m.Solve(ctx)
				if err != nil {
					return nil, err
				}
				opts.log.WithFields(logrus.Fields{
					"cost":      sol.Cost,
					"converged": sol.Converged,
					"flips":     m.Stats.Flips,
				}).Info("MAP search finished")
				return &m.Stats, infer.WriteMAP(out, net, sol, opts.params.OutputAll)
			})
		},
	}
}

func newMarginalCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marginal theory.yaml",
		Short: "Marginal probabilities of the query atoms (MC-SAT)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(args[0], func(ctx context.Context, net *mrf.Network, out *os.File) (*infer.Stats, error) {
				var (
					m     *infer.Marginals
					stats infer.Stats
					err   error
				)
				if opts.chains > 1 {
					m, err = infer.MarginalChains(ctx, net, opts.params, opts.chains, opts.log)
				} else {
					mc, cerr := infer.NewMCSAT(net, opts.params, opts.log)
					if cerr != nil {
						return nil, cerr
					}
					m, err = mc.Run(ctx)
					stats = mc.Stats
				}
				if err != nil {
					return nil, err
				}
				stats.Samples = m.Samples()
				opts.log.WithField("samples", m.Samples()).Info("sampling finished")
				return &stats, infer.WriteMarginals(out, net, m)
			})
		},
	}
	cmd.Flags().IntVar(&opts.chains, "chains", 1, "independent MC-SAT chains run in parallel")
	return cmd
}

// run grounds the theory and hands the network to the solver closure,
// reporting metrics and classifying fatal errors afterwards. Nothing is
// written to the output on a fatal error.
func (o *options) run(theoryPath string, solve func(context.Context, *mrf.Network, *os.File) (*infer.Stats, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := newMetrics()
	if o.metricsAddr != "" {
		go o.serveMetrics(metrics)
	}

	net, err := o.ground(ctx, theoryPath)
	if err != nil {
		return o.fatal(err)
	}

	out := os.Stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return o.fatal(errors.Wrap(err, "creating output"))
		}
		defer f.Close()
		out = f
	}

	start := time.Now()
	stats, err := solve(ctx, net, out)
	if err != nil {
		return o.fatal(err)
	}
	metrics.observe(stats)
	o.log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("done")
	return nil
}

func (o *options) ground(ctx context.Context, theoryPath string) (*mrf.Network, error) {
	theory, err := mln.LoadTheory(theoryPath)
	if err != nil {
		return nil, err
	}
	for _, path := range o.evidence {
		if err := theory.AddFactsFile(path); err != nil {
			return nil, err
		}
	}
	_, ev, err := theory.Build()
	if err != nil {
		return nil, err
	}
	g, err := mrf.NewGrounder(theory.Schema, theory.Domains, ev, mrf.GrounderOptions{
		MaxConstraints: o.maxConstraints,
		Workers:        o.workers,
		Logger:         o.log,
	})
	if err != nil {
		return nil, err
	}
	return g.Ground(ctx, theory.Clauses)
}

// fatal logs err with a class field so operators can tell input problems
// from infeasible theories.
func (o *options) fatal(err error) error {
	var (
		serr *mln.SchemaError
		nerr *mln.NumericWeightError
		uerr *mrf.UnsatError
		oerr *mrf.OverflowError
	)
	switch {
	case errors.As(err, &uerr):
		o.log.WithField("class", "unsatisfiable").Error(err)
	case errors.As(err, &oerr):
		o.log.WithField("class", "overflow").Error(err)
	case errors.As(err, &serr), errors.As(err, &nerr):
		o.log.WithField("class", "input").Error(err)
	default:
		o.log.Error(err)
	}
	return err
}

type runMetrics struct {
	flips     prometheus.Counter
	nullFlips prometheus.Counter
	restarts  prometheus.Counter
	samples   prometheus.Counter
	registry  *prometheus.Registry
}

func newMetrics() *runMetrics {
	m := &runMetrics{
		flips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lomrf_flips_total", Help: "Atom flips performed by the search.",
		}),
		nullFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lomrf_null_flips_total", Help: "Search iterations that flipped nothing.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lomrf_restarts_total", Help: "Search restarts beyond the first try.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lomrf_samples_total", Help: "MC-SAT samples drawn.",
		}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.flips, m.nullFlips, m.restarts, m.samples)
	return m
}

func (m *runMetrics) observe(s *infer.Stats) {
	m.flips.Add(float64(s.Flips))
	m.nullFlips.Add(float64(s.NullFlips))
	m.restarts.Add(float64(s.Restarts))
	m.samples.Add(float64(s.Samples))
}

func (o *options) serveMetrics(m *runMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	o.log.WithField("addr", o.metricsAddr).Info("serving metrics")
	if err := http.ListenAndServe(o.metricsAddr, mux); err != nil {
		o.log.WithError(err).Warn("metrics server stopped")
	}
}
