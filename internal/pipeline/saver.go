package pipeline

import "context"

// saver coalesces save requests: any number of requests made while a
// write is in flight collapse into one follow-up write of the latest list.
type saver struct {
	p       *Pipeline
	pending chan struct{}
}

func newSaver(p *Pipeline) *saver {
	return &saver{p: p, pending: make(chan struct{}, 1)}
}

func (s *saver) request() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

func (s *saver) loop(ctx context.Context) {
	for {
		select {
		case <-s.pending:
			s.p.save(ctx)
		case <-ctx.Done():
			select {
			case <-s.pending:
				s.p.save(context.WithoutCancel(ctx))
			default:
			}
			return
		}
	}
}
