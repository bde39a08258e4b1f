package tracker

import (
	"fmt"

	"github.com/user/frameflow/pkg/history"
	"github.com/user/frameflow/pkg/scene"
)

// Commands converts samples into x/y keyframes of target, placing the
// target's box centre on each centroid. Lost samples are left out.
// offsetMs shifts sample times into the target's own time base.
func Commands(p *scene.Project, target string, samples []Sample, width, height, offsetMs float64) *history.Batch {
	cmds := make([]history.Command, 0, 2*len(samples))
	for _, s := range samples {
		if s.Lost {
			continue
		}
		t := s.TimeMs + offsetMs
		cmds = append(cmds,
			history.NewSetKeyframe(p, target, scene.PropX, t, s.X-width/2),
			history.NewSetKeyframe(p, target, scene.PropY, t, s.Y-height/2),
		)
	}
	return history.NewBatch(fmt.Sprintf("Track %s", target), cmds...)
}

// LostCount returns how many samples were flagged Lost.
func LostCount(samples []Sample) int {
	n := 0
	for _, s := range samples {
		if s.Lost {
			n++
		}
	}
	return n
}
