package train

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/born-ml/fasttrain/internal/datasets"
)

func newTrainer(t *testing.T, opts Options) *Trainer[*cpu.Backend] {
	t.Helper()
	tr, err := New(autodiff.New(cpu.New()), opts)
	require.NoError(t, err)
	return tr
}

func TestBernoulliNLL_Values(t *testing.T) {
	backend := autodiff.New(cpu.New())

	out, err := tensor.FromSlice([]float32{0.8, 0.3, 0.5}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	loss, err := bernoulliNLL(out, []float32{1, 0, 1}, backend)
	require.NoError(t, err)

	expected := []float64{-math.Log(0.8), -math.Log(0.7), -math.Log(0.5)}
	actual := loss.Data()
	require.Len(t, actual, 3)
	for i, want := range expected {
		assert.InDelta(t, want, float64(actual[i]), 1e-5, "loss[%d]", i)
		assert.Greater(t, actual[i], float32(0))
	}
}

func TestBernoulliNLL_ShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())

	out := tensor.Ones[float32](tensor.Shape{4}, backend)
	_, err := bernoulliNLL(out, []float32{1, 0}, backend)
	assert.Error(t, err)
}

func TestNew_InvalidOptions(t *testing.T) {
	backend := autodiff.New(cpu.New())

	_, err := New(backend, Options{Hidden: 0, LearningRate: 0.1})
	assert.Error(t, err)
	_, err = New(backend, Options{Hidden: 2, LearningRate: 0})
	assert.Error(t, err)
	_, err = New(backend, Options{Hidden: 2, LearningRate: 0.1, MaxEpochs: -1})
	assert.Error(t, err)
}

func TestTrain_ZeroEpochsEmptyDataset(t *testing.T) {
	var logged int
	tr := newTrainer(t, Options{
		Hidden:       2,
		LearningRate: 0.05,
		MaxEpochs:    0,
		Source:       rand.NewSource(1),
		Log:          func(EpochReport) { logged++ },
	})

	hist, err := tr.Train(context.Background(), &datasets.Graph{Name: "empty"})
	require.NoError(t, err)
	assert.Empty(t, hist.Losses)
	assert.Empty(t, hist.Reports)
	assert.Zero(t, logged)
}

func TestTrain_EmptyDatasetWithEpochs(t *testing.T) {
	tr := newTrainer(t, Options{
		Hidden:       2,
		LearningRate: 0.05,
		MaxEpochs:    2,
		Source:       rand.NewSource(1),
	})

	hist, err := tr.Train(context.Background(), &datasets.Graph{Name: "empty"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, hist.Losses)
	require.Len(t, hist.Reports, 1)
	assert.Equal(t, 0, hist.Reports[0].Correct)
	assert.Equal(t, 0, hist.Reports[0].Total)
}

func TestTrain_SimpleOneEpoch(t *testing.T) {
	data, err := datasets.Generate("simple", 50, rand.NewSource(1))
	require.NoError(t, err)

	var out bytes.Buffer
	var reports []EpochReport
	tr := newTrainer(t, Options{
		Hidden:       2,
		LearningRate: 0.05,
		MaxEpochs:    1,
		Source:       rand.NewSource(1),
		Out:          &out,
		Log:          func(r EpochReport) { reports = append(reports, r) },
	})

	hist, err := tr.Train(context.Background(), data)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, 0, r.Epoch)
	assert.False(t, math.IsNaN(r.Loss) || math.IsInf(r.Loss, 0), "loss %v", r.Loss)
	assert.Greater(t, r.Loss, 0.0)
	assert.GreaterOrEqual(t, r.EpochLoss, r.Loss)
	assert.GreaterOrEqual(t, r.Correct, 0)
	assert.LessOrEqual(t, r.Correct, 50)
	assert.Equal(t, 50, r.Total)
	assert.Equal(t, []float64{r.Loss}, r.Losses)
	assert.Equal(t, 5, r.Timing.Batches)
	assert.Equal(t, hist.Reports, reports)

	// 50 points in batches of 10
	assert.Equal(t, 5, strings.Count(out.String(), "forward cost:"))
	assert.Equal(t, 5, strings.Count(out.String(), "backward cost:"))
}

func TestTrain_UpdatesParameters(t *testing.T) {
	data, err := datasets.Generate("xor", 20, rand.NewSource(4))
	require.NoError(t, err)

	tr := newTrainer(t, Options{
		Hidden:       2,
		LearningRate: 0.5,
		MaxEpochs:    1,
		BatchSize:    20,
		Source:       rand.NewSource(4),
	})

	var before [][]float32
	for _, p := range tr.Model().Parameters() {
		before = append(before, append([]float32(nil), p.Tensor().Data()...))
	}

	hist, err := tr.run(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, hist.Losses, 1)

	params := tr.Model().Parameters()
	require.Len(t, params, len(before))
	// The output bias receives a gradient whatever the ReLU pattern.
	assert.NotEqual(t, before[len(before)-1], params[len(params)-1].Tensor().Data(), "layer8.bias")
}

// meanLoss is the mean Bernoulli NLL of the current model on data, in float64.
func meanLoss(t *testing.T, tr *Trainer[*cpu.Backend], data *datasets.Graph) float64 {
	t.Helper()
	probs, err := tr.RunMany(data.X)
	require.NoError(t, err)

	var total float64
	for i, p := range probs {
		if data.Y[i] == 1 {
			total -= math.Log(p)
		} else {
			total -= math.Log(1 - p)
		}
	}
	return total / float64(len(probs))
}

func TestStep_MatchesNumericGradient(t *testing.T) {
	const (
		lr  = 1.0
		eps = 5e-4
	)

	data, err := datasets.Generate("xor", 8, rand.NewSource(7))
	require.NoError(t, err)

	tr := newTrainer(t, Options{
		Hidden:       3,
		LearningRate: lr,
		MaxEpochs:    1,
		BatchSize:    data.N(),
		Source:       rand.NewSource(3),
	})
	params := tr.Model().Parameters()
	require.Len(t, params, 16)

	// Central differences of the mean loss, one entry at a time.
	numeric := make([][]float64, len(params))
	before := make([][]float32, len(params))
	for k, p := range params {
		values := p.Tensor().Raw().AsFloat32()
		before[k] = append([]float32(nil), values...)
		numeric[k] = make([]float64, len(values))
		for j := range values {
			orig := values[j]
			values[j] = orig + eps
			plus := meanLoss(t, tr, data)
			values[j] = orig - eps
			minus := meanLoss(t, tr, data)
			values[j] = orig
			numeric[k][j] = (plus - minus) / (2 * eps)
		}
	}

	optimizer := optim.NewSGD(params, optim.SGDConfig{LR: lr}, tr.backend)
	idx := make([]int, data.N())
	for i := range idx {
		idx[i] = i
	}
	tr.backend.Tape().Clear()
	var timer stepTimer
	_, err = tr.step(optimizer, data, idx, &timer)
	require.NoError(t, err)

	hiddenBiasSignal := false
	for k, p := range params {
		after := p.Tensor().Data()
		for j := range after {
			analytic := float64(before[k][j]-after[j]) / lr
			want := numeric[k][j]
			assert.InDelta(t, want, analytic, 2e-3+0.02*math.Abs(want),
				"param %d[%d] analytic %.5f numeric %.5f", k, j, analytic, want)
			if k%2 == 1 && k < len(params)-1 && math.Abs(want) > 1e-4 {
				hiddenBiasSignal = true
			}
		}
	}
	assert.True(t, hiddenBiasSignal, "no hidden-layer bias received a gradient")
}

func TestTrain_NonFiniteLossAborts(t *testing.T) {
	tr := newTrainer(t, Options{
		Hidden:       1,
		LearningRate: 0.05,
		MaxEpochs:    1,
		Source:       rand.NewSource(1),
	})

	// Saturate the output sigmoid to exactly 1 so class-0 examples hit log(0).
	layers := tr.Model().Layers()
	bias := layers[len(layers)-1].Bias().Tensor().Raw().AsFloat32()
	bias[0] = 1000

	data := &datasets.Graph{
		X: []datasets.Point{{0.1, 0.1}, {0.2, 0.3}},
		Y: []int{0, 0},
	}
	_, err := tr.run(context.Background(), data)
	require.ErrorIs(t, err, ErrNonFiniteLoss)
	assert.Contains(t, err.Error(), "epoch 0 batch 0")
}

func TestTrain_CancelledContext(t *testing.T) {
	data, err := datasets.Generate("simple", 20, rand.NewSource(1))
	require.NoError(t, err)

	tr := newTrainer(t, Options{
		Hidden:       2,
		LearningRate: 0.05,
		MaxEpochs:    3,
		Source:       rand.NewSource(1),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tr.Train(ctx, data)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrain_EvalSchedule(t *testing.T) {
	data, err := datasets.Generate("simple", 10, rand.NewSource(2))
	require.NoError(t, err)

	var epochs []int
	tr := newTrainer(t, Options{
		Hidden:       1,
		LearningRate: 0.05,
		MaxEpochs:    7,
		EvalEvery:    3,
		Source:       rand.NewSource(2),
		Log:          func(r EpochReport) { epochs = append(epochs, r.Epoch) },
	})

	hist, err := tr.Train(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6}, epochs)
	assert.Len(t, hist.Losses, 7)
}

func TestRunMany_DoesNotRecord(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tr, err := New(backend, Options{Hidden: 2, LearningRate: 0.05, Source: rand.NewSource(3)})
	require.NoError(t, err)

	probs, err := tr.RunMany([]datasets.Point{{0.1, 0.2}, {0.9, 0.5}})
	require.NoError(t, err)
	require.Len(t, probs, 2)
	for _, p := range probs {
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
	}

	p, err := tr.RunOne(datasets.Point{0.1, 0.2})
	require.NoError(t, err)
	assert.InDelta(t, probs[0], p, 1e-7)

	assert.Zero(t, backend.Tape().NumOps())
	assert.True(t, backend.Tape().IsRecording())

	empty, err := tr.RunMany(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStepTimer(t *testing.T) {
	var timer stepTimer
	timer.record(2*time.Millisecond, 4*time.Millisecond)
	timer.record(4*time.Millisecond, 2*time.Millisecond)

	snap := timer.snapshot()
	assert.Equal(t, 6*time.Millisecond, snap.Forward)
	assert.Equal(t, 6*time.Millisecond, snap.Backward)
	assert.Equal(t, 2, snap.Batches)
	assert.Equal(t, 6*time.Millisecond, snap.AvgStep())

	assert.Equal(t, Timing{}, timer.snapshot())
	assert.Zero(t, Timing{}.AvgStep())
}

func TestWriterLog(t *testing.T) {
	var buf bytes.Buffer
	WriterLog(&buf)(EpochReport{
		Epoch:        10,
		Loss:         1.5,
		EpochLoss:    6.25,
		Correct:      42,
		Total:        50,
		AvgEpochTime: 500 * time.Millisecond,
		TotalTime:    5 * time.Second,
		Timing: Timing{
			Forward:  300 * time.Millisecond,
			Backward: 500 * time.Millisecond,
			Batches:  4,
		},
	})

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "Epoch 10 loss 1.500000 epoch_loss 6.250000 correct 42/50"), line)
	assert.Contains(t, line, "per-epoch avg time 0.5000s")
	assert.Contains(t, line, "total time 5.0000s")
	assert.Contains(t, line, "forward 0.3000s backward 0.5000s avg step 0.200000s")
}
