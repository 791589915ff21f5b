// Package anomaly holds the online outlier scorer: a bounded sample buffer
// that warms up an isolation forest once and scores every reading after
// that.
package anomaly

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/terminal-bench/motorwatch/internal/features"
)

const (
	// maxBufferSize bounds the FIFO training buffer.
	maxBufferSize = 1000
	// minTrainSize is the warm-up size that triggers the one-shot fit.
	minTrainSize = 100
)

// snapshot is the durable form of a fitted detector.
type snapshot struct {
	Scaler  *StandardScaler  `json:"scaler"`
	Forest  *IsolationForest `json:"forest"`
	Trained bool             `json:"trained"`
}

// Detector scores feature vectors against an isolation forest trained on the
// first readings the process sees. All state is guarded by one mutex; the
// actual fit runs outside the lock so concurrent scoring callers degrade to
// the untrained path instead of queueing behind the training run.
type Detector struct {
	mu       sync.Mutex
	buffer   [][]float64
	scaler   *StandardScaler
	forest   *IsolationForest
	trained  bool
	training bool

	modelPath string
	log       *zap.Logger
}

// NewDetector creates an untrained detector persisting its model to
// modelPath. Call Load to restore a previously fitted model.
func NewDetector(modelPath string, log *zap.Logger) *Detector {
	return &Detector{
		buffer:    make([][]float64, 0, maxBufferSize),
		scaler:    &StandardScaler{},
		forest:    &IsolationForest{},
		modelPath: modelPath,
		log:       log,
	}
}

// Trained reports whether the one-shot training transition has happened.
func (d *Detector) Trained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trained
}

// BufferLen returns the current training-buffer occupancy.
func (d *Detector) BufferLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffer)
}

// Score appends the vector to the training buffer and returns its anomaly
// score in [0,1] plus the outlier flag. Until the detector is trained every
// call returns (0, false). Any internal failure also degrades to (0, false);
// scoring never blocks or fails the pipeline.
func (d *Detector) Score(vector []float64) (float64, bool) {
	if len(vector) != features.Width {
		d.log.Warn("dropping malformed feature vector",
			zap.Int("len", len(vector)),
			zap.Int("want", features.Width))
		return 0, false
	}

	d.mu.Lock()

	d.buffer = append(d.buffer, vector)
	if len(d.buffer) > maxBufferSize {
		d.buffer = d.buffer[1:]
	}

	// One goroutine at a time may run the fit; everyone else keeps scoring
	// untrained in the meantime.
	if !d.trained && !d.training && len(d.buffer) >= minTrainSize {
		d.training = true
		samples := make([][]float64, len(d.buffer))
		copy(samples, d.buffer)
		d.mu.Unlock()
		d.train(samples)
		d.mu.Lock()
	}

	if !d.trained {
		d.mu.Unlock()
		return 0, false
	}
	scaler, forest := d.scaler, d.forest
	d.mu.Unlock()

	raw, err := forest.Score(scaler.Transform(vector))
	if err != nil {
		d.log.Warn("scoring failed", zap.Error(err))
		return 0, false
	}

	// Fold the raw decision value into [0,1]; negative raw scores are
	// outliers, and lower raw means more anomalous.
	score := clamp(-raw+0.5, 0, 1)
	return score, raw < 0
}

// train fits scaler and forest on the copied samples, installs the result,
// and persists the snapshot. Failures leave the detector untrained.
func (d *Detector) train(samples [][]float64) {
	d.log.Info("training anomaly model", zap.Int("samples", len(samples)))

	scaler := &StandardScaler{}
	scaler.Fit(samples)

	scaled := make([][]float64, len(samples))
	for i, s := range samples {
		scaled[i] = scaler.Transform(s)
	}

	forest := &IsolationForest{}
	err := forest.Fit(scaled)

	d.mu.Lock()
	d.training = false
	if err != nil {
		d.mu.Unlock()
		d.log.Error("anomaly model training failed", zap.Error(err))
		return
	}
	d.scaler = scaler
	d.forest = forest
	d.trained = true
	d.mu.Unlock()

	if err := d.Save(); err != nil {
		d.log.Error("failed to persist anomaly model", zap.Error(err))
		return
	}
	d.log.Info("anomaly model trained", zap.String("path", d.modelPath))
}

// Save writes the fitted scaler, forest and trained flag to the model path.
func (d *Detector) Save() error {
	d.mu.Lock()
	snap := snapshot{Scaler: d.scaler, Forest: d.forest, Trained: d.trained}
	d.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if dir := filepath.Dir(d.modelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model dir: %w", err)
		}
	}
	if err := os.WriteFile(d.modelPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// Load restores a persisted model if one exists. A missing file is not an
// error; the detector simply starts untrained.
func (d *Detector) Load() error {
	data, err := os.ReadFile(d.modelPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read model: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if snap.Scaler != nil {
		d.scaler = snap.Scaler
	}
	if snap.Forest != nil {
		d.forest = snap.Forest
	}
	d.trained = snap.Trained
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
