// Package train runs mini-batch SGD on the fixed classifier network.
//
// One epoch is: shuffle, then for every batch zero-grad, forward, loss,
// backward and an optimizer step. Epoch 0 and every EvalEvery-th epoch are
// evaluated on the full dataset and reported through the LogFunc.
//
// The trainer owns no global state: the autodiff backend, random source and
// output sinks are all passed in.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/fasttrain/internal/datasets"
	"github.com/born-ml/fasttrain/internal/model"
)

// Defaults applied to zero-valued Options fields.
const (
	DefaultBatchSize = 10
	DefaultEvalEvery = 10
)

// ErrNonFiniteLoss aborts training when a batch loss is NaN or infinite.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// Options configures a Trainer.
type Options struct {
	Hidden       int
	LearningRate float64
	MaxEpochs    int
	BatchSize    int // Defaults to DefaultBatchSize
	EvalEvery    int // Defaults to DefaultEvalEvery

	Source rand.Source // Weight init and shuffling; time seeded when nil
	Out    io.Writer   // Per-batch timing lines; discarded when nil
	Log    LogFunc     // Epoch reports; WriterLog(Out) when nil
}

// History is the outcome of a Train call.
type History struct {
	Losses  []float64     // Last-batch loss of every epoch
	Reports []EpochReport // One per evaluated epoch
}

// Trainer trains a model.Network on an autodiff-wrapped backend B.
type Trainer[B tensor.Backend] struct {
	opts    Options
	backend *autodiff.Backend[B]
	src     rand.Source
	rng     *rand.Rand
	model   *model.Network[*autodiff.Backend[B]]
}

// New validates opts and builds a trainer with a freshly initialized network.
func New[B tensor.Backend](backend *autodiff.Backend[B], opts Options) (*Trainer[B], error) {
	if opts.Hidden < 1 {
		return nil, fmt.Errorf("trainer: hidden width must be >= 1, got %d", opts.Hidden)
	}
	if !(opts.LearningRate > 0) {
		return nil, fmt.Errorf("trainer: learning rate must be > 0, got %g", opts.LearningRate)
	}
	if opts.MaxEpochs < 0 {
		return nil, fmt.Errorf("trainer: max epochs must be >= 0, got %d", opts.MaxEpochs)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.EvalEvery <= 0 {
		opts.EvalEvery = DefaultEvalEvery
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Log == nil {
		opts.Log = WriterLog(opts.Out)
	}
	src := opts.Source
	if src == nil {
		src = rand.NewSource(uint64(time.Now().UnixNano()))
	}

	t := &Trainer[B]{
		opts:    opts,
		backend: backend,
		src:     src,
		rng:     rand.New(src),
	}
	if err := t.reset(); err != nil {
		return nil, err
	}

	backend.Tape().StartRecording()
	return t, nil
}

// Model returns the current network.
func (t *Trainer[B]) Model() *model.Network[*autodiff.Backend[B]] {
	return t.model
}

func (t *Trainer[B]) reset() error {
	net, err := model.NewNetwork(t.opts.Hidden, t.backend, t.src)
	if err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	t.model = net
	return nil
}

// Train re-initializes the network and runs MaxEpochs epochs over data.
// It stops early, returning ctx.Err(), when ctx is cancelled.
func (t *Trainer[B]) Train(ctx context.Context, data *datasets.Graph) (*History, error) {
	if err := t.reset(); err != nil {
		return nil, err
	}
	return t.run(ctx, data)
}

// run trains the current network without re-initializing it.
func (t *Trainer[B]) run(ctx context.Context, data *datasets.Graph) (*History, error) {
	optimizer := optim.NewSGD(t.model.Parameters(), optim.SGDConfig{LR: float32(t.opts.LearningRate)}, t.backend)

	tape := t.backend.Tape()
	tape.Clear()
	defer tape.Clear()

	hist := &History{}
	var timer stepTimer
	start := time.Now()

	for epoch := 0; epoch < t.opts.MaxEpochs; epoch++ {
		var lastLoss, epochLoss float64

		order := t.shuffled(data.N())
		for batch, lo := 0, 0; lo < len(order); batch, lo = batch+1, lo+t.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			hi := min(lo+t.opts.BatchSize, len(order))

			loss, err := t.step(optimizer, data, order[lo:hi], &timer)
			if err != nil {
				return hist, fmt.Errorf("epoch %d batch %d: %w", epoch, batch, err)
			}
			lastLoss = loss
			epochLoss += loss
		}

		hist.Losses = append(hist.Losses, lastLoss)
		elapsed := time.Since(start)
		timing := timer.snapshot()

		if epoch%t.opts.EvalEvery != 0 {
			continue
		}
		correct, err := t.Evaluate(data)
		if err != nil {
			return hist, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		report := EpochReport{
			Epoch:        epoch,
			Loss:         lastLoss,
			EpochLoss:    epochLoss,
			Correct:      correct,
			Total:        data.N(),
			Losses:       append([]float64(nil), hist.Losses...),
			AvgEpochTime: elapsed / time.Duration(epoch+1),
			TotalTime:    time.Since(start),
			Timing:       timing,
		}
		hist.Reports = append(hist.Reports, report)
		t.opts.Log(report)
	}

	return hist, nil
}

// step runs one zero-grad/forward/backward/update cycle on the examples at
// idx and returns the summed per-example loss of the batch.
func (t *Trainer[B]) step(optimizer optim.Optimizer, data *datasets.Graph, idx []int, timer *stepTimer) (float64, error) {
	tape := t.backend.Tape()
	defer tape.Clear()

	optimizer.ZeroGrad()

	batch := data.Subset(idx)
	n := batch.N()
	x, err := tensor.FromSlice(batch.Features(), tensor.Shape{n, 2}, t.backend)
	if err != nil {
		return 0, fmt.Errorf("batch input: %w", err)
	}

	st := time.Now()
	out := t.model.Forward(x).Reshape(n)
	forward := time.Since(st)
	fmt.Fprintf(t.opts.Out, "forward cost: %fs\n", forward.Seconds())

	loss, err := bernoulliNLL(out, batch.Labels(), t.backend)
	if err != nil {
		return 0, err
	}

	st = time.Now()
	grads, err := t.backward(loss)
	if err != nil {
		return 0, err
	}
	backward := time.Since(st)
	fmt.Fprintf(t.opts.Out, "backward cost: %fs\n", backward.Seconds())
	timer.record(forward, backward)

	perExample := loss.Data()
	values := make([]float64, len(perExample))
	for i, v := range perExample {
		values[i] = float64(v)
	}
	total := floats.Sum(values)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return total, fmt.Errorf("%w: %v", ErrNonFiniteLoss, total)
	}

	optimizer.Step(grads)
	return total, nil
}

// backward seeds the tape with 1/n per example, which is the gradient of
// sum(loss / n), and returns the parameter gradients.
func (t *Trainer[B]) backward(loss *tensor.Tensor[float32, *autodiff.Backend[B]]) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	seed, err := tensor.NewRaw(loss.Shape(), loss.DType(), t.backend.Device())
	if err != nil {
		return nil, fmt.Errorf("backward seed: %w", err)
	}
	scale := 1 / float32(loss.NumElements())
	seedData := seed.AsFloat32()
	for i := range seedData {
		seedData[i] = scale
	}
	return t.backend.Tape().Backward(seed, t.backend), nil
}

func (t *Trainer[B]) shuffled(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	t.rng.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}

// Evaluate counts the examples whose thresholded prediction matches the label.
func (t *Trainer[B]) Evaluate(data *datasets.Graph) (int, error) {
	probs, err := t.RunMany(data.X)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i, p := range probs {
		pred := 0
		if p > 0.5 {
			pred = 1
		}
		if pred == data.Y[i] {
			correct++
		}
	}
	return correct, nil
}

// RunOne returns the class-1 probability of a single point.
func (t *Trainer[B]) RunOne(p datasets.Point) (float64, error) {
	probs, err := t.RunMany([]datasets.Point{p})
	if err != nil {
		return 0, err
	}
	return probs[0], nil
}

// RunMany returns the class-1 probability of every point. Nothing is
// recorded on the gradient tape.
func (t *Trainer[B]) RunMany(points []datasets.Point) ([]float64, error) {
	if len(points) == 0 {
		return nil, nil
	}

	tape := t.backend.Tape()
	if tape.IsRecording() {
		tape.StopRecording()
		defer tape.StartRecording()
	}

	g := datasets.Graph{X: points}
	x, err := tensor.FromSlice(g.Features(), tensor.Shape{len(points), 2}, t.backend)
	if err != nil {
		return nil, fmt.Errorf("evaluate input: %w", err)
	}

	out := t.model.Forward(x).Data()
	probs := make([]float64, len(out))
	for i, v := range out {
		probs[i] = float64(v)
	}
	return probs, nil
}
