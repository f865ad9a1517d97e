package infer

import (
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Params are the tunable knobs of both inference engines. They are plain
// configuration, not an algorithmic contract: changing them trades result
// quality against run time but never changes what is being estimated.
type Params struct {
	// Samples is the number of MC-SAT samples to draw.
	Samples int `yaml:"samples"`
	// PBest is the probability of a greedy (cost-minimizing) move; the
	// complement picks a random atom of the chosen constraint.
	PBest float64 `yaml:"pBest"`
	// PSA is the probability of attempting a simulated-annealing move
	// per MC-SAT search flip.
	PSA float64 `yaml:"pSA"`
	// SATemperature governs acceptance of uphill annealing moves:
	// exp(-delta/SATemperature).
	SATemperature float64 `yaml:"saTemperature"`
	// MaxFlips bounds the flips of one search try.
	MaxFlips int `yaml:"maxFlips"`
	// MaxTries bounds the independent restarts of one search.
	MaxTries int `yaml:"maxTries"`
	// TargetCost stops a search as soon as the assignment cost drops
	// to it or below.
	TargetCost float64 `yaml:"targetCost"`
	// TabuLength is the number of flips during which a flipped atom may
	// only be re-flipped to reach a new global best.
	TabuLength int `yaml:"tabuLength"`
	// NumSolutions is the size of the MC-SAT per-sample solution pool;
	// the next sample is drawn uniformly from the pool.
	NumSolutions int `yaml:"numSolutions"`
	// LateSA delays annealing moves until the active subset is fully
	// satisfied, diversifying among valid states instead of interfering
	// with the search for one.
	LateSA bool `yaml:"lateSA"`
	// UnitProp propagates forced values from active unit clauses before
	// each MC-SAT search.
	UnitProp bool `yaml:"unitProp"`
	// SatHardUnit directly satisfies unsatisfied hard unit clauses
	// before any other MaxWalkSAT move.
	SatHardUnit bool `yaml:"satHardUnit"`
	// SatHardPriority restricts the constraint pick to unsatisfied hard
	// constraints while any exist.
	SatHardPriority bool `yaml:"satHardPriority"`
	// Seed makes runs reproducible.
	Seed int64 `yaml:"seed"`
	// OutputAll reports all query groundings rather than only the true
	// ones.
	OutputAll bool `yaml:"outputAll"`
}

// DefaultParams returns the documented engine defaults.
func DefaultParams() Params {
	return Params{
		Samples:         1000,
		PBest:           0.5,
		PSA:             0.5,
		SATemperature:   0.8,
		MaxFlips:        100_000,
		MaxTries:        1,
		TargetCost:      0.0001,
		TabuLength:      10,
		NumSolutions:    10,
		LateSA:          true,
		UnitProp:        true,
		SatHardUnit:     false,
		SatHardPriority: false,
		Seed:            1,
		OutputAll:       true,
	}
}

// Validate reports the first nonsensical parameter value.
func (p Params) Validate() error {
	switch {
	case p.Samples < 1:
		return errors.New("samples must be at least 1")
	case p.PBest < 0 || p.PBest > 1:
		return errors.Errorf("pBest %g outside [0,1]", p.PBest)
	case p.PSA < 0 || p.PSA > 1:
		return errors.Errorf("pSA %g outside [0,1]", p.PSA)
	case p.SATemperature <= 0:
		return errors.Errorf("saTemperature %g must be positive", p.SATemperature)
	case p.MaxFlips < 1:
		return errors.New("maxFlips must be at least 1")
	case p.MaxTries < 1:
		return errors.New("maxTries must be at least 1")
	case p.TargetCost < 0:
		return errors.Errorf("targetCost %g must not be negative", p.TargetCost)
	case p.TabuLength < 0:
		return errors.New("tabuLength must not be negative")
	case p.NumSolutions < 1:
		return errors.New("numSolutions must be at least 1")
	}
	return nil
}

// LoadParams reads parameter overrides from a YAML file on top of the
// defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrap(err, "reading params")
	}
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return p, errors.Wrapf(err, "parsing params file %q", path)
	}
	return p, p.Validate()
}
