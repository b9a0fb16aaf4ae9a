package synod

// admit runs ahead of every handler. It drops everything once the process is
// silent and, in crash mode, silences the process with probability alpha per
// inbound message. The message that triggers the crash is dropped as well.
func (p *Process) admit(msg Message) bool {
	if p.silent {
		return false
	}

	if p.crashMode && p.rand.Float64() < p.alpha {
		p.silent = true
		p.logger.Infof("Process %d went silent on %s", p.index, msg)
		return false
	}

	return true
}
