package layer

import (
	"context"

	"github.com/fd1az/go-exc/exc"
)

// Buffer is a bounded mpsc queue in front of a single-flight inner
// service: concurrent callers enqueue FIFO and a single worker
// drains the queue into sequential inner.Call invocations. This is what
// lets a Service be safely shared (cloned) across goroutines even when
// the inner transport only tolerates one in-flight call at a time.
func Buffer(bound int) exc.Layer {
	return func(inner exc.Service) exc.Service {
		s := &bufferService{
			inner: inner,
			queue: make(chan bufferJob, bound),
			done:  make(chan struct{}),
		}
		go s.run()
		return s
	}
}

type bufferJob struct {
	ctx    context.Context
	req    exc.Request
	replyC chan bufferResult
}

type bufferResult struct {
	resp exc.Response
	err  error
}

type bufferService struct {
	inner exc.Service
	queue chan bufferJob
	done  chan struct{}
}

func (s *bufferService) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

func (s *bufferService) Call(ctx context.Context, req exc.Request) (exc.Response, error) {
	job := bufferJob{ctx: ctx, req: req, replyC: make(chan bufferResult, 1)}

	select {
	case s.queue <- job:
	case <-ctx.Done():
		return exc.Response{}, ctx.Err()
	case <-s.done:
		return exc.Response{}, exc.NewTransientError(exc.CodeMuxTornDown, "buffer layer stopped", nil)
	}

	select {
	case res := <-job.replyC:
		return res.resp, res.err
	case <-ctx.Done():
		return exc.Response{}, ctx.Err()
	}
}

// run drains the queue FIFO, one inner.Call at a time.
func (s *bufferService) run() {
	for job := range s.queue {
		if job.ctx.Err() != nil {
			job.replyC <- bufferResult{err: job.ctx.Err()}
			continue
		}

		resp, err := s.inner.Call(job.ctx, job.req)
		job.replyC <- bufferResult{resp: resp, err: err}
	}
}
