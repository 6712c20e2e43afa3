package predict

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/leaf-api/internal/history"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/postprocess"
)

type fakeClassifier struct {
	scores []float64
	err    error
	calls  atomic.Int32
	meta   model.Metadata
}

func newFake(scores []float64, err error) *fakeClassifier {
	return &fakeClassifier{
		scores: scores,
		err:    err,
		meta: model.Metadata{
			InputShape:  []int64{1, 4, 4, 3},
			OutputShape: []int64{1, 3},
			Classes:     []string{"Healthy", "Rust", "Scab"},
			ImageSize:   4,
			Layout:      model.LayoutNHWC,
		},
	}
}

func (f *fakeClassifier) Classify(ctx context.Context, input []float32) ([]float64, error) {
	f.calls.Add(1)
	return f.scores, f.err
}

func (f *fakeClassifier) Metadata() model.Metadata { return f.meta }

var testCatalog = postprocess.Catalog{
	Labels:       []string{"Healthy", "Rust", "Scab"},
	Descriptions: map[string]string{"Rust": "Orange pustules."},
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newService(t *testing.T, clf Classifier, cacheSize int) (*Service, *history.Ledger) {
	t.Helper()
	ledger := history.NewLedger(history.NewMemoryStore())
	svc, err := NewService(clf, testCatalog, ledger, cacheSize, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, ledger
}

func TestPredictImageRecords(t *testing.T) {
	clf := newFake([]float64{0.1, 0.8, 0.1}, nil)
	svc, ledger := newService(t, clf, 0)

	res, err := svc.PredictImage(context.Background(), pngBytes(t, color.White))
	if err != nil {
		t.Fatalf("PredictImage: %v", err)
	}
	if res.Prediction.Label != "Rust" || res.Prediction.Confidence != 80 {
		t.Errorf("prediction = %+v", res.Prediction)
	}
	if res.Entry == nil || res.Entry.PredictedDisease != "Rust" || res.Entry.Confidence != 80 {
		t.Errorf("entry = %+v", res.Entry)
	}

	entries, _ := ledger.ListRecent(context.Background(), 0)
	if len(entries) != 1 {
		t.Errorf("ledger has %d entries, want 1", len(entries))
	}
}

func TestPredictImageCacheHitStillRecords(t *testing.T) {
	clf := newFake([]float64{0.6, 0.3, 0.1}, nil)
	svc, ledger := newService(t, clf, 8)
	img := pngBytes(t, color.Black)

	for i := 0; i < 3; i++ {
		if _, err := svc.PredictImage(context.Background(), img); err != nil {
			t.Fatalf("PredictImage #%d: %v", i, err)
		}
	}
	if n := clf.calls.Load(); n != 1 {
		t.Errorf("classifier called %d times, want 1", n)
	}
	entries, _ := ledger.ListRecent(context.Background(), 0)
	if len(entries) != 3 {
		t.Errorf("ledger has %d entries, want 3", len(entries))
	}
}

func TestCachedBreakdownIsNotShared(t *testing.T) {
	clf := newFake([]float64{0.6, 0.3, 0.1}, nil)
	svc, _ := newService(t, clf, 8)
	img := pngBytes(t, color.Black)

	first, err := svc.PredictImage(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	first.Prediction.Breakdown[0] = postprocess.ClassScore{Label: "tampered", Confidence: -1}

	second, err := svc.PredictImage(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.Prediction.Breakdown[0]; got.Label != "Healthy" || got.Confidence != 60 {
		t.Errorf("cache hit returned %+v, want {Healthy 60}", got)
	}
	second.Prediction.Breakdown[1].Confidence = -1

	third, err := svc.PredictImage(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if got := third.Prediction.Breakdown[1]; got.Label != "Rust" || got.Confidence != 30 {
		t.Errorf("cache hit returned %+v, want {Rust 30}", got)
	}
	if n := clf.calls.Load(); n != 1 {
		t.Errorf("classifier called %d times, want 1", n)
	}
}

func TestPredictImageFailureRecordsNothing(t *testing.T) {
	clf := newFake(nil, errors.New("onnx exploded"))
	svc, ledger := newService(t, clf, 8)

	_, err := svc.PredictImage(context.Background(), pngBytes(t, color.White))
	if !errors.Is(err, ErrInferenceFailed) {
		t.Fatalf("err = %v, want ErrInferenceFailed", err)
	}
	entries, _ := ledger.ListRecent(context.Background(), 0)
	if len(entries) != 0 {
		t.Errorf("failed prediction recorded %d entries", len(entries))
	}
}

func TestPredictImageInvalidPayload(t *testing.T) {
	svc, _ := newService(t, newFake([]float64{1, 0, 0}, nil), 0)
	for _, data := range [][]byte{nil, []byte("GIF89a?")} {
		if _, err := svc.PredictImage(context.Background(), data); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%q: err = %v, want ErrInvalidInput", data, err)
		}
	}
}

func TestPredictImageBadScores(t *testing.T) {
	svc, _ := newService(t, newFake([]float64{0.5, 0.5}, nil), 0)
	_, err := svc.PredictImage(context.Background(), pngBytes(t, color.White))
	if !errors.Is(err, ErrInferenceFailed) || !errors.Is(err, postprocess.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestPredictTensor(t *testing.T) {
	svc, _ := newService(t, newFake([]float64{0.2, 0.2, 0.6}, nil), 0)

	if _, err := svc.PredictTensor(context.Background(), make([]float32, 5)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short tensor: err = %v", err)
	}
	res, err := svc.PredictTensor(context.Background(), make([]float32, 48))
	if err != nil {
		t.Fatalf("PredictTensor: %v", err)
	}
	if res.Prediction.Label != "Scab" {
		t.Errorf("label = %q", res.Prediction.Label)
	}
}

func TestStorageUnavailableSurfaces(t *testing.T) {
	store := history.NewMemoryStore()
	ledger := history.NewLedger(store)
	svc, err := NewService(newFake([]float64{1, 0, 0}, nil), testCatalog, ledger, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	store.Close()

	_, err = svc.PredictImage(context.Background(), pngBytes(t, color.White))
	if !errors.Is(err, history.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestNewServiceRejectsMismatchedCatalog(t *testing.T) {
	clf := newFake(nil, nil)
	clf.meta.Classes = []string{"Rust", "Healthy", "Scab"}
	if _, err := NewService(clf, testCatalog, nil, 0, zerolog.Nop()); err == nil {
		t.Error("NewService accepted a reordered class list")
	}
}
