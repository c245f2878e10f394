package validator

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/pauljones0/dealanalyzer/internal/models"
)

// scoreSumTolerance is how far the three sentiment scores may drift from 1.
const scoreSumTolerance = 0.02

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	v := validator.New()
	v.RegisterStructValidation(sentimentSumValidation, models.SentimentAnalysis{})
	return &Validator{
		validate: v,
	}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateDeal validates a deal record at the ingestion boundary.
func (v *Validator) ValidateDeal(deal models.Deal) error {
	return v.ValidateStruct(deal)
}

// ValidateSentiment validates an analysis result before it is attached to a deal.
func (v *Validator) ValidateSentiment(s models.SentimentAnalysis) error {
	return v.ValidateStruct(s)
}

func sentimentSumValidation(sl validator.StructLevel) {
	s := sl.Current().Interface().(models.SentimentAnalysis)
	sum := s.Positive + s.Neutral + s.Negative
	if math.Abs(sum-1) > scoreSumTolerance {
		sl.ReportError(s.Positive, "Positive", "Positive", "scoresum", "")
	}
}
