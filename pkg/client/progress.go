package client

// Progress summarizes the provisioning ledger. PRE_INSTALLATION never counts.
type Progress struct {
	Completed   int
	Total       int
	AllTerminal bool
	AllSuccess  bool
	FirstFailed *Step
}

// Aggregate computes progress over the provisioning steps. A missing step counts as
// not terminal.
func Aggregate(steps []Step) Progress {
	byType := make(map[string]Step, len(steps))
	for _, s := range steps {
		byType[s.Type] = s
	}

	p := Progress{Total: len(ProvisioningSteps), AllTerminal: true, AllSuccess: true}
	for _, stepType := range ProvisioningSteps {
		s, ok := byType[stepType]
		if !ok {
			p.AllTerminal, p.AllSuccess = false, false
			continue
		}
		switch s.Status {
		case StatusSuccess:
			p.Completed++
		case StatusFailed:
			p.AllSuccess = false
			if p.FirstFailed == nil {
				failed := s
				p.FirstFailed = &failed
			}
		default:
			p.AllTerminal, p.AllSuccess = false, false
		}
	}
	return p
}

// Percent is the share of succeeded steps, 0 to 100.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}
