// Package predict runs the image-to-history pipeline: decode, preprocess,
// classify, rank and record.
package predict

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/Brownie44l1/leaf-api/internal/history"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/postprocess"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrInferenceFailed = errors.New("prediction failed")
)

// Classifier is the black-box model. *model.Server satisfies it.
type Classifier interface {
	Classify(ctx context.Context, input []float32) ([]float64, error)
	Metadata() model.Metadata
}

// Result is a prediction together with the history entry it produced.
type Result struct {
	Prediction *postprocess.Prediction
	Entry      *history.Entry
}

type Service struct {
	classifier Classifier
	catalog    postprocess.Catalog
	ledger     *history.Ledger
	cache      *lru.Cache[string, postprocess.Prediction]
	logger     zerolog.Logger
}

// NewService checks that the classifier's classes line up with the catalog.
// ledger may be nil, in which case nothing is recorded. cacheSize <= 0
// disables the result cache.
func NewService(classifier Classifier, catalog postprocess.Catalog, ledger *history.Ledger, cacheSize int, logger zerolog.Logger) (*Service, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.Matches(classifier.Metadata().Classes); err != nil {
		return nil, fmt.Errorf("model and catalog disagree: %w", err)
	}

	s := &Service{
		classifier: classifier,
		catalog:    catalog,
		ledger:     ledger,
		logger:     logger.With().Str("component", "predict").Logger(),
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, postprocess.Prediction](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// PredictImage classifies an encoded image and records the outcome.
func (s *Service) PredictImage(ctx context.Context, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	key := digest(data)
	if s.cache != nil {
		if p, ok := s.cache.Get(key); ok {
			s.logger.Debug().Str("digest", key).Msg("result cache hit")
			p = clonePrediction(p)
			return s.record(ctx, &p)
		}
	}

	img, format, err := model.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	s.logger.Debug().
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("image decoded")

	p, err := s.classify(ctx, model.Preprocess(img, s.classifier.Metadata()))
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(key, clonePrediction(*p))
	}
	return s.record(ctx, p)
}

// PredictTensor classifies an already preprocessed input tensor.
func (s *Service) PredictTensor(ctx context.Context, input []float32) (*Result, error) {
	if want := s.classifier.Metadata().InputSize(); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, want, len(input))
	}
	p, err := s.classify(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, p)
}

// Classify runs the model without recording anything.
func (s *Service) Classify(ctx context.Context, data []byte) (*postprocess.Prediction, error) {
	img, _, err := model.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.classify(ctx, model.Preprocess(img, s.classifier.Metadata()))
}

func (s *Service) classify(ctx context.Context, input []float32) (*postprocess.Prediction, error) {
	scores, err := s.classifier.Classify(ctx, input)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTensor) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	p, err := s.catalog.Postprocess(scores)
	if err != nil {
		// The model emitted something that is not a softmax over the catalog.
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}
	return p, nil
}

func (s *Service) record(ctx context.Context, p *postprocess.Prediction) (*Result, error) {
	res := &Result{Prediction: p}
	if s.ledger == nil {
		return res, nil
	}
	entry, err := s.ledger.Record(ctx, p.Label, p.Confidence)
	if err != nil {
		return nil, err
	}
	res.Entry = &entry
	return res, nil
}

// clonePrediction copies p so cached entries never share a breakdown with callers.
func clonePrediction(p postprocess.Prediction) postprocess.Prediction {
	p.Breakdown = append(postprocess.Breakdown(nil), p.Breakdown...)
	return p
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
