// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"

	"github.com/524D/mzpeaks/internal/batch"
)

// debugDumpChromatogram prints the points of a chromatogram, marking the
// points that are part of a resolved peak, followed by the peaks
func debugDumpChromatogram(w io.Writer, r batch.Result) {
	c := r.Chromatogram
	fmt.Fprintf(w, "Chromatogram:%d mz:%f scans:%d\n", r.Index, c.Mz(), c.Len())
	if r.Err != nil {
		fmt.Fprintf(w, "error: %v\n", r.Err)
		return
	}

	inPeak := make([]int, c.Len())
	for i := range inPeak {
		inPeak[i] = -1
	}
	for k, p := range r.Peaks {
		for i := p.Start; i <= p.End; i++ {
			inPeak[i] = k
		}
	}
	nums := c.ScanNumbers()
	for i, num := range nums {
		intens := c.Intensity(i)
		if intens == 0 && inPeak[i] < 0 {
			continue
		}
		used := `-`
		if inPeak[i] >= 0 {
			used = fmt.Sprintf("+%d", inPeak[i])
		}
		fmt.Fprintf(w, "%d scan:%d rt:%f intens:%f %s\n",
			i, num, c.RetentionTime(i), intens, used)
	}
	for k, p := range r.Peaks {
		fmt.Fprintf(w, "peak %d: %d-%d mz:%f rt:%f duration:%f height:%f area:%f sn:%0.2f",
			k, p.Start, p.End, p.Mz, p.RT, p.Duration(), p.Height, p.Area, p.SN)
		if p.FragmentScan != 0 {
			fmt.Fprintf(w, " msms:%d", p.FragmentScan)
		}
		fmt.Fprintf(w, "\n")
	}
}
