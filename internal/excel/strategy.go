package excel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"placement-credit-sync/internal/model"
	"placement-credit-sync/pkg/errors"
)

// ParsingStrategy turns an uploaded results file into ledger records.
type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.CreditRecord, error)
	Validate(ctx context.Context, records []model.CreditRecord) error
}

type ExcelStrategy struct {
	*Parser
	*Validator
}

func NewExcelStrategy() ParsingStrategy {
	return &ExcelStrategy{Parser: NewParser(), Validator: NewValidator()}
}

// StrategyFor picks a strategy from the uploaded file's extension.
func StrategyFor(key string) (ParsingStrategy, error) {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".xlsx", ".xlsm":
		return NewExcelStrategy(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", errors.ErrInvalidFileFormat, filepath.Ext(key))
	}
}

// Load parses data and validates every record.
func Load(ctx context.Context, s ParsingStrategy, data []byte) ([]model.CreditRecord, error) {
	records, err := s.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}
