package compress

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/pngpress/codec"
	"github.com/leeforge/pngpress/errors"
	"github.com/leeforge/pngpress/optimizer"
	"github.com/leeforge/pngpress/testutil"
)

// countingCodec wraps the real collaborators and counts every call.
type countingCodec struct {
	decodes, encodes, resizes, optimizes atomic.Int32

	codec     codec.Codec
	resampler codec.Resampler
	optimizer Optimizer

	resizedTo [2]uint32
	mu        sync.Mutex
}

func newCountingCodec() *countingCodec {
	return &countingCodec{
		codec:     codec.PNG,
		resampler: codec.NfntResampler{},
		optimizer: optimizer.New(),
	}
}

func (c *countingCodec) Decode(data []byte) (image.Image, error) {
	c.decodes.Add(1)
	return c.codec.Decode(data)
}

func (c *countingCodec) Encode(img image.Image) ([]byte, error) {
	c.encodes.Add(1)
	return c.codec.Encode(img)
}

func (c *countingCodec) Resize(img image.Image, width, height uint32) image.Image {
	c.resizes.Add(1)
	c.mu.Lock()
	c.resizedTo = [2]uint32{width, height}
	c.mu.Unlock()
	return c.resampler.Resize(img, width, height)
}

func (c *countingCodec) Optimize(data []byte, opts optimizer.Options) ([]byte, error) {
	c.optimizes.Add(1)
	return c.optimizer.Optimize(data, opts)
}

func (c *countingCodec) options() []CompressorOption {
	return []CompressorOption{WithCodec(c), WithResampler(c), WithOptimizer(c), WithWorkers(2)}
}

func newTestCompressor(t *testing.T, opts ...CompressorOption) *Compressor {
	t.Helper()
	c := NewCompressor(opts...)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c
}

func compressSync(t *testing.T, c *Compressor, data []byte, opts *Options) ([]byte, error) {
	t.Helper()
	future, err := c.Compress(data, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return future.Await(ctx)
}

func TestCompress_ZeroWidthIsNeverScheduled(t *testing.T) {
	cc := newCountingCodec()
	c := newTestCompressor(t, cc.options()...)

	future, err := c.Compress(testutil.GradientPNG(t, 10, 10), &Options{Width: Ptr[uint32](0)})
	require.Error(t, err)
	assert.Nil(t, future)
	assert.True(t, errors.IsKind(err, errors.ErrorTypeInvalidArgument))
	assert.Equal(t, "width must be greater than 0", err.Error())

	require.NoError(t, c.Close(context.Background()))
	assert.Zero(t, cc.decodes.Load())
	assert.Zero(t, cc.optimizes.Load())
}

func TestCompress_OptimizeOnlyIsDeterministic(t *testing.T) {
	c := newTestCompressor(t)
	input := testutil.EncodePNG(t, testutil.TranslucentGradient(40, 30))
	opts := &Options{Level: Ptr[uint8](2), Strip: Ptr("safe")}

	first, err := compressSync(t, c, append([]byte(nil), input...), opts)
	require.NoError(t, err)
	second, err := compressSync(t, c, append([]byte(nil), input...), opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompress_DownscaleSkip(t *testing.T) {
	input := testutil.GradientPNG(t, 64, 32)
	want, err := optimizer.Optimize(input, optimizer.Default())
	require.NoError(t, err)

	for _, width := range []uint32{64, 65, 4096} {
		t.Run(fmt.Sprint(width), func(t *testing.T) {
			cc := newCountingCodec()
			c := newTestCompressor(t, cc.options()...)

			got, err := compressSync(t, c, append([]byte(nil), input...), &Options{Width: Ptr(width)})
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, int32(1), cc.decodes.Load())
			assert.Zero(t, cc.resizes.Load())
			assert.Zero(t, cc.encodes.Load())
		})
	}
}

func TestCompress_DownscaleDimensions(t *testing.T) {
	tests := []struct {
		w, h   int
		width  uint32
		height uint32
	}{
		{100, 50, 50, 25},
		{100, 50, 99, 50},
		{100, 1, 10, 1},
		{300, 2, 1, 1},
		{4, 3, 2, 2},
		{3, 2, 2, 1},
		{7, 100, 3, 43},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d_to_%d", tt.w, tt.h, tt.width), func(t *testing.T) {
			cc := newCountingCodec()
			c := newTestCompressor(t, cc.options()...)

			out, err := compressSync(t, c, testutil.GradientPNG(t, tt.w, tt.h), &Options{Width: Ptr(tt.width)})
			require.NoError(t, err)

			assert.Equal(t, [2]uint32{tt.width, tt.height}, cc.resizedTo)
			img := testutil.DecodePNG(t, out)
			assert.Equal(t, int(tt.width), img.Bounds().Dx())
			assert.Equal(t, int(tt.height), img.Bounds().Dy())
		})
	}
}

func TestTargetHeight(t *testing.T) {
	assert.Equal(t, uint32(25), targetHeight(100, 50, 50))
	assert.Equal(t, uint32(2), targetHeight(4, 3, 2), "1.5 rounds away from zero")
	assert.Equal(t, uint32(1), targetHeight(1000, 1, 1), "zero height becomes one")
	assert.Equal(t, uint32(1), targetHeight(3, 2, 2))
}

func TestCompress_MalformedInput(t *testing.T) {
	c := newTestCompressor(t)
	junk := []byte("this is not an image at all")

	_, err := compressSync(t, c, junk, &Options{Width: Ptr[uint32](10)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeDecode, errors.Kind(err))
	assert.Contains(t, err.Error(), "invalid PNG buffer: ")

	_, err = compressSync(t, c, junk, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeOptimization, errors.Kind(err))
	assert.Contains(t, err.Error(), "optimization failed: ")
}

func TestCompress_OversizedHeader(t *testing.T) {
	cc := newCountingCodec()
	c := newTestCompressor(t, cc.options()...)

	hostile := map[string][]byte{
		"rgba16 40000 square": testutil.HeaderPNG(40000, 40000, 16, 6),
		"max dimensions":      testutil.HeaderPNG(1<<31-1, 1<<31-1, 16, 6),
	}
	for name, data := range hostile {
		t.Run(name, func(t *testing.T) {
			_, err := compressSync(t, c, append([]byte(nil), data...), &Options{Width: Ptr[uint32](10)})
			require.Error(t, err)
			assert.Equal(t, errors.ErrorTypeDecode, errors.Kind(err))

			_, err = compressSync(t, c, append([]byte(nil), data...), nil)
			require.Error(t, err)
			assert.Equal(t, errors.ErrorTypeOptimization, errors.Kind(err))
			assert.ErrorIs(t, err, optimizer.ErrTooLarge)
		})
	}
	assert.Zero(t, cc.decodes.Load())
}

func TestCompress_MaxPixelsOnResize(t *testing.T) {
	c := newTestCompressor(t, WithMaxPixels(100))
	input := testutil.GradientPNG(t, 20, 10)

	_, err := compressSync(t, c, input, &Options{Width: Ptr[uint32](10)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeDecode, errors.Kind(err))
	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 20, appErr.Details["width"])
	assert.Equal(t, int64(100), appErr.Details["maxPixels"])

	// 同一张图在限制内可以缩放
	out, err := compressSync(t, newTestCompressor(t, WithMaxPixels(200)), input, &Options{Width: Ptr[uint32](10)})
	require.NoError(t, err)
	assert.Equal(t, 10, testutil.DecodePNG(t, out).Bounds().Dx())
}

func TestCompress_ResizeLevelThreeStripAll(t *testing.T) {
	c := newTestCompressor(t)
	input := testutil.InsertChunk(t, testutil.GradientPNG(t, 100, 50), "tEXt", testutil.TextChunk("Comment", "drop me"))

	out, err := compressSync(t, c, input, &Options{
		Width: Ptr[uint32](50),
		Level: Ptr[uint8](3),
		Strip: Ptr("all"),
	})
	require.NoError(t, err)

	img := testutil.DecodePNG(t, out)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
	assert.NotContains(t, testutil.ChunkTypes(t, out), "tEXt")

	decoded, err := codec.PNG.Decode(input)
	require.NoError(t, err)
	naive, err := codec.PNG.Encode(codec.NfntResampler{}.Resize(decoded, 50, 25))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), len(naive))
	assert.True(t, testutil.SamePixels(testutil.DecodePNG(t, naive), img))
}

func TestCompress_StripOnlyMatchesOptimizer(t *testing.T) {
	input := testutil.InsertChunk(t, testutil.GradientPNG(t, 100, 50), "tEXt", testutil.TextChunk("Author", "someone"))
	want, err := optimizer.Optimize(input, optimizer.Default().WithStrip(optimizer.StripSafe))
	require.NoError(t, err)

	cc := newCountingCodec()
	c := newTestCompressor(t, cc.options()...)

	got, err := compressSync(t, c, append([]byte(nil), input...), &Options{Strip: Ptr("SAFE")})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, cc.decodes.Load())
	assert.Zero(t, cc.resizes.Load())
	assert.Equal(t, int32(1), cc.optimizes.Load())
}

type failingEncoder struct{}

func (failingEncoder) Encode(image.Image) ([]byte, error) {
	return nil, fmt.Errorf("disk full")
}

func TestCompress_EncodeFailure(t *testing.T) {
	c := newTestCompressor(t, WithEncoder(failingEncoder{}))

	_, err := compressSync(t, c, testutil.GradientPNG(t, 20, 20), &Options{Width: Ptr[uint32](10)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeEncode, errors.Kind(err))
	assert.Equal(t, "failed to encode resized PNG: disk full", err.Error())
}

type optimizerFunc func([]byte, optimizer.Options) ([]byte, error)

func (f optimizerFunc) Optimize(data []byte, opts optimizer.Options) ([]byte, error) {
	return f(data, opts)
}

func TestCompress_OptimizerFailureIsNotSwallowed(t *testing.T) {
	c := newTestCompressor(t, WithOptimizer(optimizerFunc(func([]byte, optimizer.Options) ([]byte, error) {
		return nil, fmt.Errorf("crc mismatch")
	})))

	out, err := compressSync(t, c, testutil.OnePixel(t), nil)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, "optimization failed: crc mismatch", err.Error())
}

func TestCompress_PassesPresetAndStrip(t *testing.T) {
	var got optimizer.Options
	c := newTestCompressor(t, WithOptimizer(optimizerFunc(func(data []byte, opts optimizer.Options) ([]byte, error) {
		got = opts
		return data, nil
	})))

	_, err := compressSync(t, c, testutil.OnePixel(t), &Options{Level: Ptr[uint8](5), Strip: Ptr("All")})
	require.NoError(t, err)
	assert.Equal(t, optimizer.FromPreset(5).WithStrip(optimizer.StripAll), got)

	_, err = compressSync(t, c, testutil.OnePixel(t), &Options{Level: Ptr[uint8](0)})
	require.NoError(t, err)
	assert.Equal(t, optimizer.FromPreset(0), got)

	_, err = compressSync(t, c, testutil.OnePixel(t), nil)
	require.NoError(t, err)
	assert.Equal(t, optimizer.Default(), got)
}

func TestCompress_PanicResolvesFuture(t *testing.T) {
	c := newTestCompressor(t, WithOptimizer(optimizerFunc(func([]byte, optimizer.Options) ([]byte, error) {
		panic("optimizer bug")
	})))

	future, err := c.Compress(testutil.OnePixel(t), nil)
	require.NoError(t, err)

	res := future.Result()
	require.Error(t, res.Err)
	assert.Equal(t, errors.ErrorTypeInternal, errors.Kind(res.Err))
	assert.Equal(t, StateFailed, future.State())
}

func TestCompress_AwaitDoesNotCancelWork(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	c := newTestCompressor(t, WithOptimizer(optimizerFunc(func(data []byte, _ optimizer.Options) ([]byte, error) {
		<-release
		finished.Store(true)
		return data, nil
	})))

	future, err := c.Compress(testutil.OnePixel(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = future.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	res := future.Result()
	require.NoError(t, res.Err)
	assert.True(t, finished.Load())
	assert.Equal(t, StateSucceeded, future.State())
}

func TestCompress_RejectWhenBusy(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c := newTestCompressor(t,
		WithWorkers(1),
		WithQueueSize(1),
		WithRejectWhenBusy(),
		WithOptimizer(optimizerFunc(func(data []byte, _ optimizer.Options) ([]byte, error) {
			started <- struct{}{}
			<-release
			return data, nil
		})),
	)
	assert.Equal(t, 1, c.Workers())

	running, err := c.Compress(testutil.OnePixel(t), nil)
	require.NoError(t, err)
	<-started

	queued, err := c.Compress(testutil.OnePixel(t), nil)
	require.NoError(t, err)

	_, err = c.Compress(testutil.OnePixel(t), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeUnavailable, errors.Kind(err))
	assert.Equal(t, "compressor queue is full", err.Error())
	assert.Equal(t, 503, errors.Status(err))

	close(release)
	require.NoError(t, running.Result().Err)
	require.NoError(t, queued.Result().Err)
}

func TestCompressFunc_CallsBackOnce(t *testing.T) {
	c := newTestCompressor(t)

	var calls atomic.Int32
	results := make(chan Result, 2)
	err := c.CompressFunc(testutil.GradientPNG(t, 16, 16), &Options{Width: Ptr[uint32](8)}, func(res Result) {
		calls.Add(1)
		results <- res
	})
	require.NoError(t, err)

	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, 8, testutil.DecodePNG(t, res.Data).Bounds().Dx())

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	err = c.CompressFunc(nil, &Options{Level: Ptr[uint8](9)}, func(Result) { t.Error("callback after validation failure") })
	assert.True(t, errors.IsKind(err, errors.ErrorTypeInvalidArgument))
}

func TestCompress_ClosedCompressor(t *testing.T) {
	c := NewCompressor()
	require.NoError(t, c.Close(context.Background()))

	_, err := c.Compress(testutil.OnePixel(t), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeUnavailable, errors.Kind(err))
}

func TestCompressBuffer_TakesOwnership(t *testing.T) {
	c := newTestCompressor(t)
	buf := NewBuffer(testutil.OnePixel(t))

	future, err := c.CompressBuffer(buf, nil)
	require.NoError(t, err)
	require.NoError(t, future.Result().Err)

	assert.True(t, buf.Consumed())
	assert.Zero(t, buf.Len())

	_, err = c.CompressBuffer(buf, nil)
	assert.True(t, errors.IsKind(err, errors.ErrorTypeInvalidArgument))
}

func TestCompress_ConcurrentRequests(t *testing.T) {
	c := newTestCompressor(t, WithWorkers(4))

	futures := make([]*Future, 16)
	for i := range futures {
		var err error
		futures[i], err = c.Compress(testutil.GradientPNG(t, 20+i, 10), &Options{Width: Ptr[uint32](10)})
		require.NoError(t, err)
	}
	for _, f := range futures {
		res := f.Result()
		require.NoError(t, res.Err)
		assert.Equal(t, 10, testutil.DecodePNG(t, res.Data).Bounds().Dx())
	}
}
