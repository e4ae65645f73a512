package engine

// Observer receives scheduler events. Calls for TagAdvanced are serialized
// by the global lock; the worker callbacks arrive concurrently from every
// worker and must be safe for concurrent use.
type Observer interface {
	// TagAdvanced is called for the first tag (from StartTag) and for every
	// tag bound by an elected worker.
	TagAdvanced(info TagInfo)

	// ReactionStarted is called when worker is handed a queued reaction.
	ReactionStarted(worker int, info TagInfo, r *Reaction)

	// ReactionFinished is called after the body returned, with its error.
	ReactionFinished(worker int, info TagInfo, r *Reaction, err error)

	// ReactionSkipped is called for an Execute of a reaction that was not
	// queued.
	ReactionSkipped(worker int, info TagInfo, reaction int)

	// WorkerIdle is called when worker reaches the end of its stream.
	WorkerIdle(worker int, info TagInfo)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) TagAdvanced(TagInfo)                             {}
func (NopObserver) ReactionStarted(int, TagInfo, *Reaction)         {}
func (NopObserver) ReactionFinished(int, TagInfo, *Reaction, error) {}
func (NopObserver) ReactionSkipped(int, TagInfo, int)               {}
func (NopObserver) WorkerIdle(int, TagInfo)                         {}

type multiObserver []Observer

// Observers combines observers into one, dropping nils and NopObservers.
func Observers(obs ...Observer) Observer {
	var out multiObserver
	for _, o := range obs {
		switch o := o.(type) {
		case nil, NopObserver:
		case multiObserver:
			out = append(out, o...)
		default:
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return NopObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiObserver) TagAdvanced(info TagInfo) {
	for _, o := range m {
		o.TagAdvanced(info)
	}
}

func (m multiObserver) ReactionStarted(worker int, info TagInfo, r *Reaction) {
	for _, o := range m {
		o.ReactionStarted(worker, info, r)
	}
}

func (m multiObserver) ReactionFinished(worker int, info TagInfo, r *Reaction, err error) {
	for _, o := range m {
		o.ReactionFinished(worker, info, r, err)
	}
}

func (m multiObserver) ReactionSkipped(worker int, info TagInfo, reaction int) {
	for _, o := range m {
		o.ReactionSkipped(worker, info, reaction)
	}
}

func (m multiObserver) WorkerIdle(worker int, info TagInfo) {
	for _, o := range m {
		o.WorkerIdle(worker, info)
	}
}
