// Package compress is the PNG compression pipeline: it validates a request on
// the caller's goroutine, then runs the optional downscale and the lossless
// optimization as one unit of work on a worker pool, resolving a Future
// exactly once.
package compress

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/pngpress/codec"
	"github.com/leeforge/pngpress/concurrency"
	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/logging"
	"github.com/leeforge/pngpress/optimizer"
)

// Compressor schedules compressions on a worker pool. It is safe for
// concurrent use.
type Compressor struct {
	pipeline  pipeline
	pool      *concurrency.WorkerPool
	ownsPool  bool
	workers   int
	queueSize int
	// rejectBusy makes scheduling fail instead of waiting for queue space.
	rejectBusy bool
	logger     logging.Logger
}

// CompressorOption configures a Compressor.
type CompressorOption func(*Compressor)

// WithCodec sets both the decoder and the encoder.
func WithCodec(c codec.Codec) CompressorOption {
	return func(cp *Compressor) {
		cp.pipeline.decoder = c
		cp.pipeline.encoder = c
	}
}

func WithDecoder(d codec.Decoder) CompressorOption {
	return func(c *Compressor) { c.pipeline.decoder = d }
}

func WithEncoder(e codec.Encoder) CompressorOption {
	return func(c *Compressor) { c.pipeline.encoder = e }
}

func WithResampler(r codec.Resampler) CompressorOption {
	return func(c *Compressor) { c.pipeline.resampler = r }
}

func WithOptimizer(o Optimizer) CompressorOption {
	return func(c *Compressor) { c.pipeline.optimizer = o }
}

// WithMaxPixels rejects resize requests for images whose header declares
// more than n pixels with a Decode error. Values <= 0 keep the default,
// optimizer.DefaultMaxPixels.
func WithMaxPixels(n int64) CompressorOption {
	return func(c *Compressor) {
		if n > 0 {
			c.pipeline.maxPixels = n
		}
	}
}

// WithPool runs work on an existing pool. The caller keeps ownership: Close
// does not stop it.
func WithPool(p *concurrency.WorkerPool) CompressorOption {
	return func(c *Compressor) { c.pool = p }
}

// WithWorkers sets the size of the Compressor's own pool. Values <= 0 use
// runtime.NumCPU().
func WithWorkers(n int) CompressorOption {
	return func(c *Compressor) { c.workers = n }
}

// WithQueueSize bounds how many compressions may wait for a worker.
func WithQueueSize(n int) CompressorOption {
	return func(c *Compressor) { c.queueSize = n }
}

// WithRejectWhenBusy makes Compress fail with Unavailable when the queue
// is full instead of blocking until a slot frees up.
func WithRejectWhenBusy() CompressorOption {
	return func(c *Compressor) { c.rejectBusy = true }
}

func WithLogger(l logging.Logger) CompressorOption {
	return func(c *Compressor) { c.logger = l }
}

// NewCompressor 创建压缩器. Without options it uses the standard PNG codec,
// the Lanczos-3 nfnt resampler and the built-in optimizer.
func NewCompressor(opts ...CompressorOption) *Compressor {
	c := &Compressor{
		pipeline: pipeline{
			decoder:   codec.PNG,
			encoder:   codec.PNG,
			resampler: codec.NfntResampler{},
			optimizer: optimizer.New(),
			maxPixels: optimizer.DefaultMaxPixels,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.Named("compress")

	if c.pool == nil {
		poolOpts := []concurrency.PoolOption{
			concurrency.WithErrorHandler(func(err error) {
				c.logger.Error("compress.worker_error", zap.Error(err))
			}),
		}
		if c.queueSize > 0 {
			poolOpts = append(poolOpts, concurrency.WithQueueSize(c.queueSize))
		}
		c.pool = concurrency.NewWorkerPool(c.workers, poolOpts...)
		c.ownsPool = true
	}
	c.pool.Start()
	return c
}

// Compress validates opts and schedules the compression of data. data is
// owned by the Compressor from here on. Invalid options fail synchronously
// with an InvalidArgument error and nothing is scheduled; a closed
// Compressor fails with Unavailable.
func (c *Compressor) Compress(data []byte, opts *Options) (*Future, error) {
	return c.CompressBuffer(NewBuffer(data), opts)
}

// CompressBuffer is Compress with an explicit single-owner buffer.
func (c *Compressor) CompressBuffer(buf *Buffer, opts *Options) (*Future, error) {
	req, err := Validate(buf, opts)
	if err != nil {
		return nil, err
	}
	return c.schedule(req, nil)
}

// CompressFunc schedules a compression and calls done exactly once, on a
// worker goroutine, with its Result. The returned error covers validation
// and scheduling only; done is not called when it is non-nil.
func (c *Compressor) CompressFunc(data []byte, opts *Options, done func(Result)) error {
	req, err := Validate(NewBuffer(data), opts)
	if err != nil {
		return err
	}
	_, err = c.schedule(req, done)
	return err
}

func (c *Compressor) schedule(req *Request, done func(Result)) (*Future, error) {
	future := newFuture()
	future.setState(StateScheduled)

	job := concurrency.JobFunc(func() error {
		res := c.execute(future, req)
		future.resolve(res)
		if done != nil {
			done(res)
		}
		return nil
	})

	submit := c.pool.SubmitWait
	if c.rejectBusy {
		submit = c.pool.Submit
	}
	if err := submit(job); err != nil {
		if stderrors.Is(err, concurrency.ErrQueueFull) {
			return nil, errors.NewUnavailable("compressor queue is full").WithInnerError(err)
		}
		return nil, errors.NewUnavailable("compressor is closed").WithInnerError(err)
	}
	c.logger.Debug("compress.scheduled", requestFields(req)...)
	return future, nil
}

// execute runs the pipeline, turning a collaborator panic into an Internal
// failure so the Future still resolves.
func (c *Compressor) execute(future *Future, req *Request) (res Result) {
	future.setState(StateRunning)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: errors.Recover(r)}
		}
		if res.Err != nil {
			c.logger.Warn("compress.failed", append(requestFields(req),
				zap.String("kind", string(errors.Kind(res.Err))),
				zap.Error(res.Err),
				zap.Duration("took", time.Since(start)),
			)...)
		}
	}()

	out, st, err := c.pipeline.run(req)
	if err != nil {
		return Result{Err: err}
	}

	c.logger.Debug("compress.succeeded", append(requestFields(req),
		zap.Int("in", st.inputSize),
		zap.Int("out", len(out)),
		zap.Bool("resized", st.resized),
		zap.Duration("took", time.Since(start)),
	)...)
	return Result{Data: out}
}

func requestFields(req *Request) []zap.Field {
	fields := make([]zap.Field, 0, 6)
	if w, ok := req.Width(); ok {
		fields = append(fields, zap.Uint32("width", w))
	}
	if l, ok := req.Level(); ok {
		fields = append(fields, zap.Uint8("level", l))
	}
	if s, ok := req.Strip(); ok {
		fields = append(fields, zap.Stringer("strip", s))
	}
	return fields
}

// Workers is the number of compressions that can run at once.
func (c *Compressor) Workers() int {
	return c.pool.Size()
}

// Close stops accepting work and waits for scheduled compressions to
// finish, or for ctx to end. A pool passed with WithPool is left running.
func (c *Compressor) Close(ctx context.Context) error {
	if !c.ownsPool {
		return nil
	}
	return c.pool.Stop(ctx)
}
