package infer

import (
	"bufio"
	"io"
	"strconv"

	"github.com/anskarl/lomrf/mrf"
)

// WriteMAP writes the MAP assignment of every query atom, one line per
// grounding in id order: "<atom> <0|1>". When outputAll is false only the
// true atoms are written.
func WriteMAP(w io.Writer, net *mrf.Network, sol *Solution, outputAll bool) error {
	bw := bufio.NewWriter(w)
	enc := net.Encoder()
	for _, a := range net.QueryAtoms() {
		v := sol.Values[a]
		if !v && !outputAll {
			continue
		}
		bit := "0"
		if v {
			bit = "1"
		}
		if _, err := bw.WriteString(enc.AtomStringOf(int(a)) + " " + bit + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteMarginals writes the estimated marginal probability of every query
// atom, one line per grounding in id order: "<atom> <probability>".
func WriteMarginals(w io.Writer, net *mrf.Network, m *Marginals) error {
	bw := bufio.NewWriter(w)
	enc := net.Encoder()
	for i := 0; i < m.NumAtoms(); i++ {
		a := m.AtomAt(i)
		p := strconv.FormatFloat(m.ProbAt(i), 'g', 6, 64)
		if _, err := bw.WriteString(enc.AtomStringOf(int(a)) + " " + p + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
